package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dongwandou/CoreNLP/pkg/kafka"
)

// Publisher ships batches of events off-box. *kafka.Producer satisfies it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// CollectorConfig sizes the event buffer and the publish batches.
type CollectorConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// Collector takes events off the request path. Each event is folded into
// the aggregator and, when a publisher is set, batched for Kafka. Track
// never blocks; events are dropped when the buffer is full.
type Collector struct {
	agg       *Aggregator
	publisher Publisher
	cfg       CollectorConfig
	events    chan RequestEvent
	logger    *slog.Logger

	mu      sync.Mutex
	dropped int64
	done    chan struct{}
}

// NewCollector creates a Collector. publisher may be nil.
func NewCollector(agg *Aggregator, publisher Publisher, cfg CollectorConfig) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	return &Collector{
		agg:       agg,
		publisher: publisher,
		cfg:       cfg,
		events:    make(chan RequestEvent, cfg.BufferSize),
		logger:    slog.Default().With("component", "analytics-collector"),
		done:      make(chan struct{}),
	}
}

// Start runs the collection loop until ctx ends or Close is called.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", c.cfg.BufferSize,
		"publishing", c.publisher != nil,
	)
}

// Track queues an event.
func (c *Collector) Track(e RequestEvent) {
	select {
	case c.events <- e:
	default:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Dropped returns how many events Track discarded.
func (c *Collector) Dropped() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Close stops accepting events, drains the buffer, and waits for the final
// flush. Track must not be called after Close.
func (c *Collector) Close() {
	close(c.events)
	<-c.done
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()
	batch := make([]kafka.Event, 0, c.cfg.BatchSize)

	flush := func(ctx context.Context) {
		if c.publisher == nil || len(batch) == 0 {
			return
		}
		if err := c.publisher.PublishBatch(ctx, batch); err != nil {
			c.logger.Error("batch flush failed", "batch_size", len(batch), "error", err)
		}
		batch = batch[:0]
	}
	final := func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		flush(flushCtx)
	}
	accept := func(e RequestEvent) {
		c.agg.Record(e)
		if c.publisher == nil {
			return
		}
		batch = append(batch, kafka.Event{Key: string(e.Endpoint), Value: e})
		if len(batch) >= c.cfg.BatchSize {
			flush(ctx)
		}
	}

	stop := ctx.Done()
	for {
		select {
		case e, ok := <-c.events:
			if !ok {
				final()
				return
			}
			accept(e)
		case <-ticker.C:
			flush(ctx)
		case <-stop:
			// Keep collecting until Close, without the cancelled context.
			final()
			stop = nil
			ctx = context.WithoutCancel(ctx)
		}
	}
}
