package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"memes/internal/domain"
	"memes/internal/logger"
	"memes/internal/metrics"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) FetchAll(ctx context.Context) ([]domain.Meme, error) {
	args := m.Called(ctx)
	memes, _ := args.Get(0).([]domain.Meme)
	return memes, args.Error(1)
}

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) SaveCatalog(ctx context.Context, memes []domain.Meme) error {
	return m.Called(ctx, memes).Error(0)
}

func (m *mockRepo) LatestCatalog(ctx context.Context) (domain.Catalog, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.Catalog), args.Error(1)
}

func catalog(n int) []domain.Meme {
	memes := make([]domain.Meme, n)
	for i := range memes {
		memes[i] = domain.Meme{ID: string(rune('a' + i)), Name: "meme " + string(rune('A'+i))}
	}
	return memes
}

func ids(memes []domain.Meme) []string {
	out := make([]string, len(memes))
	for i, m := range memes {
		out[i] = m.ID
	}
	return out
}

func newService(src Source, opts ...Option) *Service {
	opts = append([]Option{WithRand(rand.New(rand.NewPCG(9, 9)))}, opts...)
	return New(src, metrics.New("test"), logger.Nop(), opts...)
}

func TestService_RandomMemes(t *testing.T) {
	ctx := context.Background()

	t.Run("SamplesTen", func(t *testing.T) {
		src := &mockSource{}
		src.On("FetchAll", ctx).Return(catalog(12), nil)
		svc := newService(src)

		g, err := svc.RandomMemes(ctx, svc.DefaultSampleSize())

		require.NoError(t, err)
		require.Len(t, g.Memes, 10)
		assert.Subset(t, ids(catalog(12)), ids(g.Memes))
		assert.False(t, g.Stale)
		src.AssertExpectations(t)
	})

	t.Run("ShortRead", func(t *testing.T) {
		src := &mockSource{}
		src.On("FetchAll", ctx).Return(catalog(3), nil)

		g, err := newService(src).RandomMemes(ctx, 10)

		require.NoError(t, err)
		assert.ElementsMatch(t, ids(catalog(3)), ids(g.Memes))
	})

	t.Run("EmptyCatalog", func(t *testing.T) {
		src := &mockSource{}
		src.On("FetchAll", ctx).Return([]domain.Meme{}, nil)

		g, err := newService(src).RandomMemes(ctx, 10)

		require.NoError(t, err)
		assert.Empty(t, g.Memes)
	})

	t.Run("NegativeCount", func(t *testing.T) {
		src := &mockSource{}

		_, err := newService(src).RandomMemes(ctx, -1)

		require.ErrorIs(t, err, domain.ErrInvalidArgument)
		src.AssertNotCalled(t, "FetchAll", mock.Anything)
	})

	t.Run("SourceFailsWithoutSnapshots", func(t *testing.T) {
		src := &mockSource{}
		src.On("FetchAll", ctx).Return(nil, fmt.Errorf("%w: timeout", domain.ErrUpstream))

		_, err := newService(src).RandomMemes(ctx, 10)

		require.ErrorIs(t, err, domain.ErrUpstream)
	})
}

func TestService_Snapshots(t *testing.T) {
	ctx := context.Background()
	upstreamErr := fmt.Errorf("%w: 503", domain.ErrUpstream)

	t.Run("SavesSourceOrder", func(t *testing.T) {
		src := &mockSource{}
		src.On("FetchAll", ctx).Return(catalog(5), nil)
		repo := &mockRepo{}
		var saved []string
		repo.On("SaveCatalog", ctx, mock.Anything).Run(func(args mock.Arguments) {
			saved = ids(args.Get(1).([]domain.Meme))
		}).Return(nil).Once()

		_, err := newService(src, WithSnapshots(repo, time.Hour)).RandomMemes(ctx, 2)

		require.NoError(t, err)
		assert.Equal(t, ids(catalog(5)), saved)
		repo.AssertExpectations(t)
	})

	t.Run("ThrottledByInterval", func(t *testing.T) {
		src := &mockSource{}
		src.On("FetchAll", ctx).Return(catalog(5), nil)
		repo := &mockRepo{}
		repo.On("SaveCatalog", ctx, mock.Anything).Return(nil)
		svc := newService(src, WithSnapshots(repo, time.Hour))

		for range 3 {
			_, err := svc.RandomMemes(ctx, 2)
			require.NoError(t, err)
		}

		repo.AssertNumberOfCalls(t, "SaveCatalog", 1)
	})

	t.Run("SaveFailureIsNotFatal", func(t *testing.T) {
		src := &mockSource{}
		src.On("FetchAll", ctx).Return(catalog(5), nil)
		repo := &mockRepo{}
		repo.On("SaveCatalog", ctx, mock.Anything).Return(errors.New("db down"))
		svc := newService(src, WithSnapshots(repo, time.Hour))

		g, err := svc.RandomMemes(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, g.Memes, 2)

		_, err = svc.RandomMemes(ctx, 2)
		require.NoError(t, err)
		repo.AssertNumberOfCalls(t, "SaveCatalog", 2)
	})

	t.Run("FallsBackWhenSourceFails", func(t *testing.T) {
		src := &mockSource{}
		src.On("FetchAll", ctx).Return(nil, upstreamErr)
		repo := &mockRepo{}
		repo.On("LatestCatalog", ctx).Return(domain.Catalog{Memes: catalog(4), FetchedAt: time.Now()}, nil)

		g, err := newService(src, WithSnapshots(repo, time.Hour)).RandomMemes(ctx, 10)

		require.NoError(t, err)
		assert.True(t, g.Stale)
		assert.ElementsMatch(t, ids(catalog(4)), ids(g.Memes))
		repo.AssertNotCalled(t, "SaveCatalog", mock.Anything, mock.Anything)
	})

	t.Run("NoSnapshotYet", func(t *testing.T) {
		src := &mockSource{}
		src.On("FetchAll", ctx).Return(nil, upstreamErr)
		repo := &mockRepo{}
		repo.On("LatestCatalog", ctx).Return(domain.Catalog{}, domain.ErrNotFound)

		_, err := newService(src, WithSnapshots(repo, time.Hour)).RandomMemes(ctx, 10)

		require.ErrorIs(t, err, domain.ErrUpstream)
		assert.NotErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("SnapshotLoadFails", func(t *testing.T) {
		src := &mockSource{}
		src.On("FetchAll", ctx).Return(nil, upstreamErr)
		repo := &mockRepo{}
		dbErr := errors.New("connection refused")
		repo.On("LatestCatalog", ctx).Return(domain.Catalog{}, dbErr)

		_, err := newService(src, WithSnapshots(repo, time.Hour)).RandomMemes(ctx, 10)

		require.ErrorIs(t, err, domain.ErrUpstream)
		assert.ErrorIs(t, err, dbErr)
	})
}
