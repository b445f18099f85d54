package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/deepresearch/internal/cache"
)

// Default retry behavior for the caching wrapper.
const (
	// DefaultAttempts is how many times a request is tried before the
	// error is surfaced.
	DefaultAttempts = 3

	// DefaultRetryDelay is the fixed pause between attempts.
	DefaultRetryDelay = 2 * time.Second
)

// cacheBucket is the cache store bucket holding LLM responses.
const cacheBucket = "llm"

// CachingCompleter wraps a Completer with a prompt-keyed response cache
// and fixed-delay retry. Cache hits cost nothing; misses retry transport
// failures up to the configured attempt count before giving up.
//
// Design decision: responses are cached before any caller-side parsing,
// so a response the caller considers malformed is still served from
// cache within the TTL. Re-asking the model the same prompt tends to
// reproduce the same malformed answer anyway, and callers handle
// malformed responses explicitly.
type CachingCompleter struct {
	inner    Completer
	store    *cache.Store
	attempts int
	delay    time.Duration
	logger   *slog.Logger
}

// CachingOption configures a CachingCompleter.
type CachingOption func(*CachingCompleter)

// WithAttempts sets the number of attempts per request.
// Values below one are ignored.
func WithAttempts(n int) CachingOption {
	return func(c *CachingCompleter) {
		if n >= 1 {
			c.attempts = n
		}
	}
}

// WithRetryDelay sets the fixed pause between attempts.
// Negative values are ignored.
func WithRetryDelay(d time.Duration) CachingOption {
	return func(c *CachingCompleter) {
		if d >= 0 {
			c.delay = d
		}
	}
}

// WithLogger sets the logger used for retry and cache-hit diagnostics.
func WithLogger(logger *slog.Logger) CachingOption {
	return func(c *CachingCompleter) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCachingCompleter wraps inner with caching through store.
func NewCachingCompleter(inner Completer, store *cache.Store, opts ...CachingOption) *CachingCompleter {
	c := &CachingCompleter{
		inner:    inner,
		store:    store,
		attempts: DefaultAttempts,
		delay:    DefaultRetryDelay,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete returns a cached response when one is fresh, otherwise asks
// the wrapped Completer with retry and caches the successful result.
func (c *CachingCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	key := cache.HashKey(system + "\x00" + user)

	if data, ok := c.store.Get(cacheBucket, key); ok {
		c.logger.Debug("llm cache hit", "key", key)
		return string(data), nil
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			c.logger.Debug("retrying llm request", "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.delay):
			}
		}

		response, err := c.inner.Complete(ctx, system, user)
		if err == nil {
			c.store.Put(cacheBucket, key, []byte(response))
			return response, nil
		}
		lastErr = err
	}

	return "", fmt.Errorf("llm request failed after %d attempts: %w", c.attempts, lastErr)
}
