package llm

import (
	"context"
	"errors"
	"log"
	"time"

	llmclient "deepbuild/internal/llmClient"
)

// Middleware decorates a model client to inject cross-cutting concerns
// (rate limiting, retries, logging, caching, timeouts).
type Middleware func(llmclient.Client) llmclient.Client

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner llmclient.Client, mws ...Middleware) llmclient.Client {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		out = mws[i](out)
	}
	return out
}

// -------- Rate Limiting --------

// RateLimit limits request rate using rpsLimiter.
// If rps <= 0, the limiter is effectively disabled.
func RateLimit(rps float64, burst int) Middleware {
	return func(next llmclient.Client) llmclient.Client {
		rl := newRPSLimiter(rps, burst) // nil when disabled
		if rl == nil {
			return next
		}
		return &rateLimited{next: next, rl: rl}
	}
}

type rateLimited struct {
	next llmclient.Client
	rl   *rpsLimiter
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Invoke(ctx context.Context, msgs []llmclient.Message, cfg llmclient.GenerationConfig) (string, error) {
	if err := c.rl.Acquire(ctx); err != nil {
		return "", err
	}
	return c.next.Invoke(ctx, msgs, cfg)
}

// -------- Retry with exponential backoff --------

// Retry retries Invoke up to maxAttempts with exponential backoff starting
// at baseDelay. Permanent errors and context cancellation stop it at once.
// A provider-supplied Retry-After longer than the backoff step wins.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next llmclient.Client) llmclient.Client {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next llmclient.Client
	max  int
	base time.Duration
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Invoke(ctx context.Context, msgs []llmclient.Message, cfg llmclient.GenerationConfig) (string, error) {
	var last error
	for i := 0; i < r.max; i++ {
		out, err := r.next.Invoke(ctx, msgs, cfg)
		if err == nil {
			return out, nil
		}
		last = err
		if llmclient.IsPermanent(err) {
			return "", err
		}
		if i == r.max-1 {
			break
		}
		wait := r.base * time.Duration(1<<i)
		var pe *llmclient.ProviderError
		if errors.As(err, &pe) && pe.RetryAfter > wait {
			wait = pe.RetryAfter
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}
	return "", last
}

// -------- Timeout --------

// WithTimeout bounds each invocation. An expired deadline surfaces as a
// NetworkError wrapping context.DeadlineExceeded.
func WithTimeout(d time.Duration) Middleware {
	return func(next llmclient.Client) llmclient.Client {
		if d <= 0 {
			return next
		}
		return &timeoutClient{next: next, d: d}
	}
}

type timeoutClient struct {
	next llmclient.Client
	d    time.Duration
}

func (c *timeoutClient) Name() string { return c.next.Name() }
func (c *timeoutClient) Invoke(ctx context.Context, msgs []llmclient.Message, cfg llmclient.GenerationConfig) (string, error) {
	d := c.d
	if cfg.Timeout > 0 {
		d = cfg.Timeout
	}
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	out, err := c.next.Invoke(tctx, msgs, cfg)
	if err != nil && errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		var ne *llmclient.NetworkError
		if !errors.As(err, &ne) {
			err = &llmclient.NetworkError{Provider: c.next.Name(), Err: context.DeadlineExceeded}
		}
	}
	return out, err
}

// -------- Logging --------

// WithLogging logs request size and errors. Provide a custom logger or nil
// to use log.Default().
func WithLogging(logger *log.Logger) Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return func(next llmclient.Client) llmclient.Client {
		return &logging{next: next, log: logger}
	}
}

type logging struct {
	next llmclient.Client
	log  *log.Logger
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Invoke(ctx context.Context, msgs []llmclient.Message, cfg llmclient.GenerationConfig) (string, error) {
	size := 0
	for _, m := range msgs {
		size += len(m.Content)
	}
	phase := PhaseFrom(ctx)
	start := time.Now()
	l.log.Printf("LLM request (%s via %s/%s): %d messages, %d bytes", phase, l.next.Name(), cfg.Model, len(msgs), size)
	out, err := l.next.Invoke(ctx, msgs, cfg)
	if err != nil {
		l.log.Printf("LLM error (%s): %v", phase, err)
		return out, err
	}
	l.log.Printf("LLM reply (%s): %d bytes in %s", phase, len(out), time.Since(start).Round(time.Millisecond))
	return out, nil
}
