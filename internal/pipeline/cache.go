package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"
	"weak"

	"golang.org/x/sync/singleflight"

	"github.com/dongwandou/CoreNLP/internal/props"
	"github.com/dongwandou/CoreNLP/pkg/logger"
	"github.com/dongwandou/CoreNLP/pkg/metrics"
	"github.com/dongwandou/CoreNLP/pkg/tracing"
)

// Handle is a cached pipeline. The cache only keeps a weak reference, so a
// caller must hold the Handle for as long as it uses the pipeline; once no
// caller does, the garbage collector may reclaim it and the next Get
// rebuilds.
type Handle struct {
	Pipeline
	key   string
	props props.Properties
}

// Key is the canonical configuration key the pipeline was built for.
func (h *Handle) Key() string { return h.key }

// Properties are the settings the pipeline was built with.
func (h *Handle) Properties() props.Properties { return h.props }

// Cache maps configurations to pipelines with at most one live pipeline
// per distinct configuration.
type Cache struct {
	engine  Engine
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]weak.Pointer[Handle]
	group   singleflight.Group
}

// NewCache creates a cache over engine. m may be nil.
func NewCache(engine Engine, m *metrics.Metrics) *Cache {
	return &Cache{
		engine:  engine,
		metrics: m,
		logger:  logger.WithComponent("pipeline-cache"),
		entries: make(map[string]weak.Pointer[Handle]),
	}
}

// Get returns the live pipeline for p, building it if there is none.
// Concurrent callers with equal configurations share one build; callers
// with different configurations build independently.
func (c *Cache) Get(ctx context.Context, p props.Properties) (*Handle, error) {
	key := p.Key()
	if h := c.lookup(key); h != nil {
		c.hit()
		return h, nil
	}
	v, err, shared := c.group.Do(key, func() (any, error) {
		if h := c.lookup(key); h != nil {
			return found{handle: h, cached: true}, nil
		}
		h, err := c.build(ctx, key, p)
		return found{handle: h}, err
	})
	if err != nil {
		return nil, err
	}
	f := v.(found)
	if shared || f.cached {
		c.hit()
	} else {
		c.miss()
	}
	return f.handle, nil
}

// found is the result of one single-flight lookup. cached is set when the
// handle was already live and no build ran.
type found struct {
	handle *Handle
	cached bool
}

// Len returns the number of entries whose pipelines have not been
// reclaimed yet.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, wp := range c.entries {
		if wp.Value() != nil {
			n++
		}
	}
	return n
}

func (c *Cache) lookup(key string) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if wp, ok := c.entries[key]; ok {
		return wp.Value()
	}
	return nil
}

func (c *Cache) build(ctx context.Context, key string, p props.Properties) (*Handle, error) {
	log := logger.FromContext(ctx).With("component", "pipeline-cache")
	start := time.Now()
	ctx, span := tracing.Start(ctx, "build")
	// A shared build must not fail for every waiter because the first
	// caller went away.
	pl, err := c.engine.Build(context.WithoutCancel(ctx), p)
	span.End()
	elapsed := time.Since(start)
	if err != nil {
		c.observeBuild("error", elapsed)
		log.Warn("pipeline build failed", "properties", p.String(), "error", err)
		return nil, fmt.Errorf("building pipeline: %w", err)
	}
	c.observeBuild("ok", elapsed)

	h := &Handle{Pipeline: pl, key: key, props: p.Clone()}
	c.mu.Lock()
	c.entries[key] = weak.Make(h)
	c.mu.Unlock()
	runtime.AddCleanup(h, c.evict, key)
	c.setLive()

	log.Info("pipeline built", "annotators", pl.Requires(), "duration", elapsed)
	return h, nil
}

// evict runs after a handle is reclaimed. A newer handle may already be
// stored under the same key, so only a dead entry is removed.
func (c *Cache) evict(key string) {
	c.mu.Lock()
	if wp, ok := c.entries[key]; ok && wp.Value() == nil {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	c.setLive()
	c.logger.Debug("pipeline reclaimed", "key", key)
}

func (c *Cache) hit() {
	if c.metrics != nil {
		c.metrics.PipelineCacheHits.Inc()
	}
}

func (c *Cache) miss() {
	if c.metrics != nil {
		c.metrics.PipelineCacheMisses.Inc()
	}
}

func (c *Cache) observeBuild(status string, d time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.PipelineBuilds.WithLabelValues(status).Inc()
	c.metrics.PipelineBuildSeconds.Observe(d.Seconds())
}

func (c *Cache) setLive() {
	if c.metrics != nil {
		c.metrics.PipelinesLive.Set(float64(c.Len()))
	}
}
