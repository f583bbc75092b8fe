package providers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 500 * time.Millisecond
	defaultMaxDelay   = 20 * time.Second
)

// Transport is an http.RoundTripper that retries rate limits, overload and
// server errors with exponential backoff and full jitter. Requests with a
// body are replayed through req.GetBody, which http.NewRequest sets for
// in-memory bodies.
type Transport struct {
	Base       http.RoundTripper
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// sleep waits for d or until ctx is done. Tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewTransport wraps base, or http.DefaultTransport when base is nil.
// A negative maxRetries disables retries; zero selects the default.
func NewTransport(base http.RoundTripper, maxRetries int) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	switch {
	case maxRetries == 0:
		maxRetries = defaultMaxRetries
	case maxRetries < 0:
		maxRetries = 0
	}
	return &Transport{
		Base:       base,
		MaxRetries: maxRetries,
		BaseDelay:  defaultBaseDelay,
		MaxDelay:   defaultMaxDelay,
		sleep:      sleepCtx,
	}
}

// NewHTTPClient returns a client whose transport retries.
func NewHTTPClient(timeout time.Duration, maxRetries int) *http.Client {
	return &http.Client{Timeout: timeout, Transport: NewTransport(nil, maxRetries)}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	for attempt := 0; ; attempt++ {
		r := req
		if attempt > 0 && req.Body != nil && req.Body != http.NoBody {
			if req.GetBody == nil {
				return nil, fmt.Errorf("retry %s: request body cannot be replayed", req.URL.Path)
			}
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewind request body: %w", err)
			}
			r = req.Clone(ctx)
			r.Body = body
		}

		resp, err := t.Base.RoundTrip(r)
		if ctx.Err() != nil {
			if resp != nil {
				resp.Body.Close()
			}
			return nil, ctx.Err()
		}

		var delay time.Duration
		switch {
		case err != nil:
			if attempt >= t.MaxRetries {
				return nil, err
			}
			delay = t.backoff(attempt + 1)
			slog.Warn("provider request failed, retrying",
				"url", req.URL.Redacted(), "attempt", attempt+1, "err", err)
		case retryableStatus(resp.StatusCode) && attempt < t.MaxRetries:
			delay = retryAfter(resp.Header.Get("Retry-After"), t.MaxDelay)
			if delay == 0 {
				delay = t.backoff(attempt + 1)
			}
			io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			resp.Body.Close()
			slog.Warn("provider returned transient status, retrying",
				"url", req.URL.Redacted(), "status", resp.StatusCode, "attempt", attempt+1, "delay", delay)
		default:
			return resp, err
		}

		if err := t.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// backoff returns a uniformly random delay in [0, min(MaxDelay, BaseDelay·2^(n-1))).
func (t *Transport) backoff(n int) time.Duration {
	ceiling := t.BaseDelay << (n - 1)
	if ceiling <= 0 || ceiling > t.MaxDelay {
		ceiling = t.MaxDelay
	}
	if ceiling <= 0 {
		return 0
	}
	return rand.N(ceiling)
}

// retryAfter parses a delta-seconds Retry-After header, capped at limit.
func retryAfter(v string, limit time.Duration) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, limit)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
