// Package imgflip fetches the meme template catalog from the imgflip API.
package imgflip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"memes/internal/domain"
)

const maxBodySize = 8 << 20

type Client struct {
	url            string
	http           *http.Client
	retries        int
	attemptTimeout time.Duration
	backOff        func() backoff.BackOff
	log            *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithRetries(n int) Option {
	return func(cl *Client) { cl.retries = n }
}

// WithAttemptTimeout bounds each attempt separately, so a hanging source
// leaves budget for the retries. Zero means attempts are bounded only by the
// caller's context and the HTTP client.
func WithAttemptTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.attemptTimeout = d }
}

// WithBackOff sets the delay policy between retries.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(cl *Client) { cl.backOff = fn }
}

func WithLogger(log *slog.Logger) Option {
	return func(cl *Client) { cl.log = log }
}

func New(url string, opts ...Option) *Client {
	c := &Client{
		url:  url,
		http: &http.Client{Timeout: 10 * time.Second},
		backOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			return b
		},
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type response struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message"`
	Data         struct {
		Memes []domain.Meme `json:"memes"`
	} `json:"data"`
}

// FetchAll returns every meme the source lists, in source order. Transport
// errors and 5xx responses are retried; anything else fails immediately.
func (c *Client) FetchAll(ctx context.Context) ([]domain.Meme, error) {
	var memes []domain.Meme
	attempt := 0
	op := func() error {
		attempt++
		var err error
		memes, err = c.fetch(ctx)
		if err != nil {
			c.log.Debug("meme fetch attempt failed", "attempt", attempt, "error", err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.backOff(), uint64(c.retries)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	return memes, nil
}

func (c *Client) fetch(ctx context.Context) ([]domain.Meme, error) {
	attemptCtx := ctx
	if c.attemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.attemptTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.url, http.NoBody)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, fmt.Errorf("get memes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("get memes: unexpected status %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, backoff.Permanent(fmt.Errorf("get memes: unexpected status %s", resp.Status))
	}

	var body response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&body); err != nil {
		if attemptCtx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("read memes: %w", attemptCtx.Err())
		}
		return nil, backoff.Permanent(fmt.Errorf("decode memes: %w", err))
	}
	if !body.Success {
		msg := body.ErrorMessage
		if msg == "" {
			msg = "request was not successful"
		}
		return nil, backoff.Permanent(errors.New("imgflip: " + msg))
	}
	return body.Data.Memes, nil
}
