// Package tracing times the stages of a request. Spans form a tree carried
// in the context; the root span is logged as one structured record when
// the request ends.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dongwandou/CoreNLP/pkg/logger"
)

type contextKey struct{}

// Span is one timed operation. Its methods are safe for concurrent use, so
// a worker can add children while the handler that owns the root logs it.
type Span struct {
	name    string
	traceID string
	start   time.Time

	mu       sync.Mutex
	duration time.Duration
	ended    bool
	attrs    []slog.Attr
	children []*Span
}

// Start opens a span named name. It becomes a child of the span in ctx, or
// a root span traced under the request ID when ctx has none.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	span := &Span{name: name, start: time.Now()}
	if parent := FromContext(ctx); parent != nil {
		span.traceID = parent.traceID
		parent.mu.Lock()
		parent.children = append(parent.children, span)
		parent.mu.Unlock()
	} else {
		span.traceID = logger.RequestID(ctx)
	}
	return context.WithValue(ctx, contextKey{}, span), span
}

// FromContext returns the current span, or nil.
func FromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// End fixes the span's duration. Later calls are no-ops.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.ended = true
		s.duration = time.Since(s.start)
	}
}

// SetAttr attaches an attribute to the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

// Name returns the span name.
func (s *Span) Name() string { return s.name }

// Duration returns the recorded duration, or the time elapsed so far for
// a span that has not ended.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		return time.Since(s.start)
	}
	return s.duration
}

// Children returns a snapshot of the direct children.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// LogValue renders the span tree as nested groups, children keyed by name.
// Children still running are marked unfinished.
func (s *Span) LogValue() slog.Value {
	s.mu.Lock()
	attrs := make([]slog.Attr, 0, len(s.attrs)+len(s.children)+2)
	d := s.duration
	if !s.ended {
		d = time.Since(s.start)
		attrs = append(attrs, slog.Bool("unfinished", true))
	}
	attrs = append(attrs, slog.Float64("duration_ms", float64(d.Microseconds())/1000.0))
	attrs = append(attrs, s.attrs...)
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	for _, c := range children {
		attrs = append(attrs, slog.Any(c.name, c))
	}
	return slog.GroupValue(attrs...)
}

// Log writes the span tree as a single record at level.
func (s *Span) Log(ctx context.Context, log *slog.Logger, level slog.Level) {
	if !log.Enabled(ctx, level) {
		return
	}
	log.LogAttrs(ctx, level, "trace",
		slog.String("trace_id", s.traceID),
		slog.Any(s.name, s),
	)
}
