package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"memes/internal/domain"
	"memes/internal/metrics"
	"memes/internal/repository"
	"memes/internal/sampler"
)

const (
	DefaultSampleSize       = 10
	DefaultSnapshotInterval = 5 * time.Minute
)

type Source interface {
	FetchAll(ctx context.Context) ([]domain.Meme, error)
}

type Service struct {
	source     Source
	repo       repository.CatalogRepository
	metrics    *metrics.Metrics
	log        *slog.Logger
	rnd        sampler.Source
	sampleSize int

	snapshotInterval time.Duration
	lastSnapshot     atomic.Int64
}

type Option func(*Service)

func WithSampleSize(n int) Option {
	return func(s *Service) { s.sampleSize = n }
}

// WithSnapshots stores every fetched catalog in repo, at most once per
// interval, and serves the stored one while the source is failing.
func WithSnapshots(repo repository.CatalogRepository, interval time.Duration) Option {
	return func(s *Service) {
		s.repo = repo
		s.snapshotInterval = interval
	}
}

func WithRand(src sampler.Source) Option {
	return func(s *Service) { s.rnd = src }
}

func New(source Source, m *metrics.Metrics, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		source:           source,
		metrics:          m,
		log:              log,
		rnd:              sampler.Default,
		sampleSize:       DefaultSampleSize,
		snapshotInterval: DefaultSnapshotInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) DefaultSampleSize() int { return s.sampleSize }

// RandomMemes returns up to k memes in random order. Fewer than k memes in
// the catalog is not an error.
func (s *Service) RandomMemes(ctx context.Context, k int) (domain.Gallery, error) {
	if k < 0 {
		return domain.Gallery{}, fmt.Errorf("%w: sample size %d", domain.ErrInvalidArgument, k)
	}

	memes, stale, err := s.catalog(ctx)
	if err != nil {
		return domain.Gallery{}, err
	}

	sample, err := sampler.Sample(memes, k, s.rnd)
	if err != nil {
		return domain.Gallery{}, fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
	}
	s.metrics.ObserveSample(len(sample))

	return domain.Gallery{Memes: sample, Stale: stale}, nil
}

func (s *Service) catalog(ctx context.Context) ([]domain.Meme, bool, error) {
	start := time.Now()
	memes, err := s.source.FetchAll(ctx)
	s.metrics.ObserveFetch(start, err)
	if err == nil {
		s.saveSnapshot(ctx, memes)
		return memes, false, nil
	}

	if s.repo == nil {
		return nil, false, err
	}

	c, snapErr := s.repo.LatestCatalog(ctx)
	if snapErr != nil {
		if errors.Is(snapErr, domain.ErrNotFound) {
			return nil, false, err
		}
		return nil, false, errors.Join(err, fmt.Errorf("load snapshot: %w", snapErr))
	}

	s.log.Warn("meme source failed, serving stored catalog",
		"error", err,
		"fetched_at", c.FetchedAt,
		"memes", len(c.Memes))
	s.metrics.Fallback()
	return c.Memes, true, nil
}

// saveSnapshot must run before the catalog is shuffled so the stored order
// matches the source.
func (s *Service) saveSnapshot(ctx context.Context, memes []domain.Meme) {
	if s.repo == nil || len(memes) == 0 {
		return
	}
	now := time.Now()
	last := s.lastSnapshot.Load()
	if last != 0 && now.Sub(time.Unix(0, last)) < s.snapshotInterval {
		return
	}
	if !s.lastSnapshot.CompareAndSwap(last, now.UnixNano()) {
		return
	}

	if err := s.repo.SaveCatalog(ctx, memes); err != nil {
		s.lastSnapshot.Store(last)
		s.metrics.SnapshotFailed()
		s.log.Error("failed to store catalog snapshot", "error", err)
	}
}
