// Package outputcache stores rendered responses in Redis, keyed by the
// resolved configuration and a hash of the request body. Redis trouble
// never fails a request: the breaker opens and rendering proceeds
// uncached.
package outputcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dongwandou/CoreNLP/pkg/metrics"
	pkgredis "github.com/dongwandou/CoreNLP/pkg/redis"
	"github.com/dongwandou/CoreNLP/pkg/resilience"
)

const keyPrefix = "corenlp:out:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

// Cache fronts a Store with single-flight rendering and a circuit breaker.
type Cache struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.Breaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Cache. m may be nil.
func New(store Store, ttl time.Duration, m *metrics.Metrics) *Cache {
	return &Cache{
		store: store,
		ttl:   ttl,
		breaker: resilience.NewBreaker("output-cache", resilience.BreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		}),
		metrics: m,
		logger:  slog.Default().With("component", "output-cache"),
	}
}

// Key derives the cache key from the parts that determine a response.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil)[:16])
}

// GetOrRender returns the cached bytes for key, or calls render, caches
// its result, and returns it. Concurrent callers with the same key share
// one render, which runs detached from any single caller's cancellation;
// each caller stops waiting when its own ctx ends. A nil Cache renders
// directly under ctx.
func (c *Cache) GetOrRender(ctx context.Context, key string, render func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	if c == nil {
		out, err := render(ctx)
		return out, false, err
	}
	if out, ok := c.get(ctx, key); ok {
		return out, true, nil
	}
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if out, ok := c.get(detached, key); ok {
			return rendered{out: out, cached: true}, nil
		}
		out, err := render(detached)
		if err != nil {
			return nil, err
		}
		c.set(detached, key, out)
		return rendered{out: out}, nil
	})
	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("waiting for render: %w", ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, false, r.Err
		}
		v := r.Val.(rendered)
		return v.out, v.cached || r.Shared, nil
	}
}

type rendered struct {
	out    []byte
	cached bool
}

// Invalidate deletes every cached response.
func (c *Cache) Invalidate(ctx context.Context) (int64, error) {
	var n int64
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		n, err = c.store.DeletePrefix(ctx, keyPrefix)
		return err
	})
	return n, err
}

func (c *Cache) get(ctx context.Context, key string) ([]byte, bool) {
	var out []byte
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.store.Get(ctx, key)
		if errors.Is(err, pkgredis.ErrMiss) {
			return nil
		}
		return err
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Warn("cache get failed", "key", key, "error", err)
	}
	if err != nil || out == nil {
		c.count(false)
		return nil, false
	}
	c.count(true)
	return out, true
}

func (c *Cache) set(ctx context.Context, key string, value []byte) {
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		return c.store.Set(ctx, key, value, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (c *Cache) count(hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.OutputCacheHits.Inc()
	} else {
		c.metrics.OutputCacheMisses.Inc()
	}
}
