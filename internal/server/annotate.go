package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dongwandou/CoreNLP/internal/analytics"
	"github.com/dongwandou/CoreNLP/internal/annotation"
	"github.com/dongwandou/CoreNLP/internal/capability"
	"github.com/dongwandou/CoreNLP/internal/engine"
	"github.com/dongwandou/CoreNLP/internal/executor"
	"github.com/dongwandou/CoreNLP/internal/outputcache"
	"github.com/dongwandou/CoreNLP/internal/pipeline"
	"github.com/dongwandou/CoreNLP/internal/props"
	apperrors "github.com/dongwandou/CoreNLP/pkg/errors"
	"github.com/dongwandou/CoreNLP/pkg/logger"
	"github.com/dongwandou/CoreNLP/pkg/tracing"
)

const maxBodyBytes = 32 << 20

const annotateTimeoutMessage = "request timed out"

// Annotate runs the configured pipeline over the request body and writes
// the document in the requested output format. A request without a body
// gets the interactive page instead.
func (s *Server) Annotate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	_, p, body, err := s.readRequest(w, r)
	if err != nil {
		s.writeError(w, r, err, annotateTimeoutMessage)
		return
	}
	if len(body) == 0 {
		log.Debug("interactive connection", "remote_addr", r.RemoteAddr)
		s.writeAsset(w, pageHTML)
		return
	}
	format := p.GetDefault(props.KeyOutputFormat, engine.FormatJSON)
	log.Debug("api call", "annotators", p.Get(props.KeyAnnotators), "output_format", format, "bytes", len(body))

	ctx, span := tracing.Start(ctx, "annotate")
	defer s.finishTrace(ctx, span)

	key := outputcache.Key(p.Key(), string(body))
	out, hit, err := s.output.GetOrRender(ctx, key, func(ctx context.Context) ([]byte, error) {
		return executor.Run(ctx, s.executor, func(ctx context.Context) ([]byte, error) {
			h, err := s.pipelines.Get(ctx, p)
			if err != nil {
				return nil, err
			}
			doc, err := readDocument(h.Pipeline, body, p.GetDefault(props.KeyInputFormat, engine.FormatText))
			if err != nil {
				return nil, err
			}
			if err := h.Annotate(ctx, doc); err != nil {
				return nil, err
			}
			_, render := tracing.Start(ctx, "render")
			defer render.End()
			return h.Render(doc, p)
		})
	})
	span.SetAttr("cache_hit", hit)

	event := analytics.RequestEvent{
		Endpoint:     analytics.EndpointAnnotate,
		Annotators:   capability.Split(p.Get(props.KeyAnnotators)),
		OutputFormat: format,
		InputBytes:   len(body),
		OutputBytes:  len(out),
		CacheHit:     hit,
	}
	if err != nil {
		event.Outcome = s.writeError(w, r, err, annotateTimeoutMessage)
		s.track(ctx, event, start)
		return
	}
	event.Outcome = analytics.OutcomeOK
	s.track(ctx, event, start)

	w.Header().Set("Content-Type", contentType(format))
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

// readRequest decodes the query string, resolves the request's properties
// over the defaults, and reads the body.
func (s *Server) readRequest(w http.ResponseWriter, r *http.Request, fixed ...props.Properties) (map[string]string, props.Properties, []byte, error) {
	params, err := props.ParseQuery(r.URL.RawQuery)
	if err != nil {
		return nil, props.Properties{}, nil, err
	}
	p, err := props.Resolve(s.defaults, params, s.registry, fixed...)
	if err != nil {
		return nil, props.Properties{}, nil, err
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, props.Properties{}, nil, apperrors.Invalidf(apperrors.ErrInvalidInput, "request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, props.Properties{}, nil, apperrors.Invalidf(apperrors.ErrInvalidInput, "reading request body: %v", err)
	}
	return params, p, body, nil
}

// readDocument decodes body with the pipeline's reader when it has one.
// Pipelines without a reader accept plain text only.
func readDocument(p pipeline.Pipeline, body []byte, format string) (*annotation.Document, error) {
	if rd, ok := p.(pipeline.Reader); ok {
		return rd.ReadDocument(body, format)
	}
	if format != engine.FormatText {
		return nil, apperrors.Invalidf(apperrors.ErrUnsupportedFormat, "unsupported input format %q", format)
	}
	return annotation.NewDocument(string(body)), nil
}

func contentType(format string) string {
	switch format {
	case engine.FormatJSON:
		return "text/json"
	case engine.FormatText, engine.FormatCoNLL:
		return "text/plain"
	case engine.FormatXML:
		return "text/xml"
	case engine.FormatSerialized:
		return "application/x-protobuf"
	default:
		return "application/octet-stream"
	}
}

// writeError sends err as a one-line plain-text diagnostic. Timeouts get
// the endpoint's fixed message. It returns the outcome for analytics.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, timeoutMessage string) analytics.Outcome {
	status := apperrors.HTTPStatusCode(err)
	message := apperrors.Diagnostic(err)
	outcome := analytics.OutcomeFailure
	log := logger.FromContext(r.Context())
	switch {
	case errors.Is(err, apperrors.ErrTimeout):
		message = timeoutMessage
		outcome = analytics.OutcomeTimeout
		log.Warn("request timed out", "path", r.URL.Path, "error", err)
	case apperrors.IsClientError(err):
		outcome = analytics.OutcomeClientError
		log.Info("rejected request", "path", r.URL.Path, "error", err)
	default:
		log.Error("request failed", "path", r.URL.Path, "error", err)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, message+"\n")
	return outcome
}

func (s *Server) finishTrace(ctx context.Context, span *tracing.Span) {
	span.End()
	span.Log(ctx, logger.FromContext(ctx), slog.LevelDebug)
}

func (s *Server) track(ctx context.Context, e analytics.RequestEvent, start time.Time) {
	if s.collector == nil {
		return
	}
	e.LatencyMs = time.Since(start).Milliseconds()
	e.Timestamp = time.Now().UTC()
	e.RequestID = logger.RequestID(ctx)
	s.collector.Track(e)
}
