// Package app builds the HTTP application from a Config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"memes/api"
	"memes/internal/config"
	"memes/internal/domain"
	"memes/internal/handler"
	"memes/internal/imgflip"
	"memes/internal/metrics"
	"memes/internal/repository/postgres"
	"memes/internal/service"
	"memes/internal/telemetry"
	"memes/migrations"
	"memes/web"
)

const (
	metricsNamespace = "memes"
	flushTimeout     = 2 * time.Second
)

type App struct {
	cfg      config.Config
	log      *slog.Logger
	handler  http.Handler
	reporter telemetry.Reporter
	repo     *postgres.Repository
}

// Deps lets callers replace collaborators. Zero values are built from the
// config.
type Deps struct {
	Source   service.Source
	Reporter telemetry.Reporter
	Registry *prometheus.Registry
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger, deps Deps) (*App, error) {
	a := &App{cfg: cfg, log: log}

	reporter := deps.Reporter
	if reporter == nil {
		var err error
		reporter, err = telemetry.New(telemetry.Options{
			DSN:         cfg.SentryDSN,
			Environment: cfg.SentryEnvironment,
		})
		if err != nil {
			return nil, err
		}
	}
	a.reporter = reporter

	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		if err := registry.Register(collectors.NewGoCollector()); err != nil {
			return nil, fmt.Errorf("register go collector: %w", err)
		}
	}
	m := metrics.New(metricsNamespace)
	if err := m.Register(registry); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	source := deps.Source
	if source == nil {
		source = imgflip.New(cfg.ImgflipURL,
			imgflip.WithHTTPClient(&http.Client{Timeout: cfg.FetchTimeout}),
			imgflip.WithRetries(cfg.FetchRetries),
			imgflip.WithAttemptTimeout(cfg.AttemptTimeout()),
			imgflip.WithBackOff(func() backoff.BackOff {
				b := backoff.NewExponentialBackOff()
				b.InitialInterval = cfg.FetchRetryDelay
				return b
			}),
			imgflip.WithLogger(log),
		)
	}

	opts := []service.Option{service.WithSampleSize(cfg.SampleSize)}
	if cfg.DatabaseURL != "" {
		applied, err := migrations.Run(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		log.Info("migrations applied", "count", applied)

		repo, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect snapshot store: %w", err)
		}
		a.repo = repo
		opts = append(opts, service.WithSnapshots(repo, service.DefaultSnapshotInterval))
	} else {
		log.Info("catalog snapshots disabled, DATABASE_URL is empty")
	}
	svc := service.New(timeoutSource{source, cfg.FetchTimeout}, m, log, opts...)

	views, err := web.Templates()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	h := handler.New(svc, log, handler.Options{
		Title:    cfg.PageTitle,
		Views:    views,
		Static:   web.Static(),
		Reporter: reporter,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(reporter.Middleware)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(api.OpenAPI)
	})
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	h.RegisterRoutes(r)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
	}).Handler(r)
	a.handler = gziphandler.GzipHandler(corsHandler)

	return a, nil
}

func (a *App) Handler() http.Handler { return a.handler }

func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Close flushes pending error reports and releases the snapshot store.
func (a *App) Close() {
	if a.reporter != nil && !a.reporter.Flush(flushTimeout) {
		a.log.Warn("error reports still pending at shutdown")
	}
	if a.repo != nil {
		a.repo.Close()
	}
}

// timeoutSource bounds a whole fetch, retries included.
type timeoutSource struct {
	service.Source
	timeout time.Duration
}

func (s timeoutSource) FetchAll(ctx context.Context) ([]domain.Meme, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.Source.FetchAll(ctx)
}
