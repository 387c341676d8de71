// Package telemetry reports failures to an external error tracker.
// Reporting is best effort and never changes how a request is answered.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
)

type Reporter interface {
	Report(ctx context.Context, err error)
	Middleware(next http.Handler) http.Handler
	Flush(timeout time.Duration) bool
}

type Options struct {
	DSN         string
	Environment string
	Release     string
	// Transport overrides the HTTP transport, mostly for tests.
	Transport sentry.Transport
}

// New returns a Sentry reporter, or a no-op one when no DSN is set.
func New(opts Options) (Reporter, error) {
	if opts.DSN == "" {
		return Nop{}, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          opts.Release,
		Transport:        opts.Transport,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, fmt.Errorf("init sentry: %w", err)
	}
	return &Sentry{
		hub:     sentry.NewHub(client, sentry.NewScope()),
		handler: sentryhttp.New(sentryhttp.Options{Repanic: true}),
	}, nil
}

type Sentry struct {
	hub     *sentry.Hub
	handler *sentryhttp.Handler
}

func (s *Sentry) Report(ctx context.Context, err error) {
	if err == nil {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = s.hub
	}
	hub.CaptureException(err)
}

// Middleware gives every request its own hub cloned from the reporter's,
// then lets sentry-go capture panics before re-raising them.
func (s *Sentry) Middleware(next http.Handler) http.Handler {
	inner := s.handler.Handle(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := sentry.SetHubOnContext(r.Context(), s.hub.Clone())
		inner.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Sentry) Flush(timeout time.Duration) bool {
	return s.hub.Flush(timeout)
}

type Nop struct{}

func (Nop) Report(context.Context, error) {}

func (Nop) Middleware(next http.Handler) http.Handler { return next }

func (Nop) Flush(time.Duration) bool { return true }
