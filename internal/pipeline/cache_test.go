package pipeline

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongwandou/CoreNLP/internal/annotation"
	"github.com/dongwandou/CoreNLP/internal/props"
	"github.com/dongwandou/CoreNLP/pkg/metrics"
)

type stubPipeline struct {
	annotators []string
	id         int64
}

func (s *stubPipeline) Annotate(context.Context, *annotation.Document) error { return nil }

func (s *stubPipeline) Render(*annotation.Document, props.Properties) ([]byte, error) {
	return nil, nil
}

func (s *stubPipeline) Requires() []string { return s.annotators }

type countingEngine struct {
	builds atomic.Int64
	delay  time.Duration
	err    error
}

func (e *countingEngine) Build(_ context.Context, p props.Properties) (Pipeline, error) {
	n := e.builds.Add(1)
	time.Sleep(e.delay)
	if e.err != nil {
		return nil, e.err
	}
	return &stubPipeline{annotators: []string{p.Get("annotators")}, id: n}, nil
}

func TestCacheIdentity(t *testing.T) {
	engine := &countingEngine{}
	cache := NewCache(engine, nil)
	ctx := context.Background()

	a, err := cache.Get(ctx, props.New("annotators", "tokenize", "outputFormat", "json"))
	require.NoError(t, err)
	b, err := cache.Get(ctx, props.New("outputFormat", "json", "annotators", "tokenize"))
	require.NoError(t, err)
	c, err := cache.Get(ctx, props.New("annotators", "tokenize", "outputFormat", "xml"))
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, int64(2), engine.builds.Load())
	assert.Equal(t, "xml", c.Properties().Get("outputFormat"))
	runtime.KeepAlive(a)
	runtime.KeepAlive(c)
}

func TestCacheBuildsOnceUnderConcurrency(t *testing.T) {
	engine := &countingEngine{delay: 20 * time.Millisecond}
	m := metrics.New(prometheus.NewRegistry())
	cache := NewCache(engine, m)
	p := props.New("annotators", "tokenize,ssplit")

	const callers = 32
	handles := make([]*Handle, callers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			h, err := cache.Get(context.Background(), p)
			if assert.NoError(t, err) {
				handles[i] = h
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), engine.builds.Load())
	for _, h := range handles[1:] {
		assert.Same(t, handles[0], h)
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PipelineBuilds.WithLabelValues("ok")))
	assert.Equal(t, float64(callers),
		testutil.ToFloat64(m.PipelineCacheHits)+testutil.ToFloat64(m.PipelineCacheMisses))
}

func TestCacheCountsOneMissPerBuild(t *testing.T) {
	engine := &countingEngine{}
	m := metrics.New(prometheus.NewRegistry())
	cache := NewCache(engine, m)

	const rounds, callers = 20, 16
	var keep []*Handle
	var mu sync.Mutex
	for r := range rounds {
		p := props.New("annotators", "tokenize", "round", string(rune('a'+r)))
		var wg sync.WaitGroup
		start := make(chan struct{})
		for range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				h, err := cache.Get(context.Background(), p)
				if assert.NoError(t, err) {
					mu.Lock()
					keep = append(keep, h)
					mu.Unlock()
				}
			}()
		}
		close(start)
		wg.Wait()
	}

	// A caller that finds the pipeline already live is a hit, whichever
	// lookup found it.
	assert.Equal(t, float64(engine.builds.Load()), testutil.ToFloat64(m.PipelineCacheMisses))
	assert.Equal(t, float64(rounds*callers), testutil.ToFloat64(m.PipelineCacheHits)+testutil.ToFloat64(m.PipelineCacheMisses))
	runtime.KeepAlive(keep)
}

func TestCacheDifferentKeysDoNotBlock(t *testing.T) {
	release := make(chan struct{})
	engine := EngineFunc(func(_ context.Context, p props.Properties) (Pipeline, error) {
		if p.Get("annotators") == "slow" {
			<-release
		}
		return &stubPipeline{}, nil
	})
	cache := NewCache(engine, nil)
	defer close(release)

	go func() { _, _ = cache.Get(context.Background(), props.New("annotators", "slow")) }()

	done := make(chan struct{})
	go func() {
		_, err := cache.Get(context.Background(), props.New("annotators", "fast"))
		assert.NoError(t, err)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("build of an unrelated configuration blocked")
	}
}

func TestCacheRebuildsAfterCollection(t *testing.T) {
	engine := &countingEngine{}
	cache := NewCache(engine, nil)
	p := props.New("annotators", "tokenize")

	h, err := cache.Get(context.Background(), p)
	require.NoError(t, err)
	firstID := h.Pipeline.(*stubPipeline).id
	h = nil
	_ = h

	require.Eventually(t, func() bool {
		runtime.GC()
		return cache.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)

	again, err := cache.Get(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, int64(2), engine.builds.Load())
	assert.NotEqual(t, firstID, again.Pipeline.(*stubPipeline).id)
}

func TestCacheBuildError(t *testing.T) {
	boom := errors.New("model missing")
	engine := &countingEngine{err: boom}
	cache := NewCache(engine, nil)

	_, err := cache.Get(context.Background(), props.New("annotators", "tokenize"))
	require.ErrorIs(t, err, boom)

	// Failures are not cached.
	_, err = cache.Get(context.Background(), props.New("annotators", "tokenize"))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(2), engine.builds.Load())
	assert.Equal(t, 0, cache.Len())
}
