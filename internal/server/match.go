package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dongwandou/CoreNLP/internal/analytics"
	"github.com/dongwandou/CoreNLP/internal/annotation"
	"github.com/dongwandou/CoreNLP/internal/capability"
	"github.com/dongwandou/CoreNLP/internal/engine"
	"github.com/dongwandou/CoreNLP/internal/executor"
	"github.com/dongwandou/CoreNLP/internal/jsonwriter"
	"github.com/dongwandou/CoreNLP/internal/match"
	"github.com/dongwandou/CoreNLP/internal/pattern"
	"github.com/dongwandou/CoreNLP/internal/props"
	apperrors "github.com/dongwandou/CoreNLP/pkg/errors"
	"github.com/dongwandou/CoreNLP/pkg/logger"
	"github.com/dongwandou/CoreNLP/pkg/tracing"
)

// binder attaches a compiled pattern to one sentence.
type binder interface {
	Bind(doc *annotation.Document, s *annotation.Sentence) match.Unit
}

type matchEndpoint struct {
	endpoint       analytics.Endpoint
	annotators     string
	kind           match.Kind
	timeoutMessage string
	compile        func(src string) (binder, error)
}

var tokensRegexEndpoint = matchEndpoint{
	endpoint:       analytics.EndpointTokensRegex,
	annotators:     "tokenize,ssplit,pos,lemma,ner",
	kind:           match.Tokens,
	timeoutMessage: "Timeout when executing TokensRegex query",
	compile: func(src string) (binder, error) {
		p, err := pattern.CompileToken(src)
		if err != nil {
			return nil, err
		}
		return p, nil
	},
}

var semgrexEndpoint = matchEndpoint{
	endpoint:       analytics.EndpointSemgrex,
	annotators:     "tokenize,ssplit,pos,lemma,ner,depparse",
	kind:           match.Graph,
	timeoutMessage: "Timeout when executing Semgrex query",
	compile: func(src string) (binder, error) {
		p, err := pattern.CompileGraph(src)
		if err != nil {
			return nil, err
		}
		return p, nil
	},
}

// TokensRegex matches a token-sequence pattern against every sentence of
// the body.
func (s *Server) TokensRegex(w http.ResponseWriter, r *http.Request) {
	s.serveMatch(w, r, tokensRegexEndpoint)
}

// Semgrex matches a dependency-graph pattern against every sentence of the
// body.
func (s *Server) Semgrex(w http.ResponseWriter, r *http.Request) {
	s.serveMatch(w, r, semgrexEndpoint)
}

func (s *Server) serveMatch(w http.ResponseWriter, r *http.Request, ep matchEndpoint) {
	start := time.Now()
	ctx := r.Context()
	event := analytics.RequestEvent{
		Endpoint:     ep.endpoint,
		Annotators:   capability.Split(ep.annotators),
		OutputFormat: engine.FormatJSON,
	}
	fail := func(err error) {
		event.Outcome = s.writeError(w, r, err, ep.timeoutMessage)
		s.track(ctx, event, start)
	}

	// The annotators and output format are fixed per endpoint; only the
	// input format is taken from the request.
	params, p, body, err := s.readRequest(w, r, props.New(
		props.KeyAnnotators, ep.annotators,
		props.KeyOutputFormat, engine.FormatJSON,
	))
	if err != nil {
		fail(err)
		return
	}
	event.InputBytes = len(body)
	src, ok := params["pattern"]
	if !ok {
		fail(apperrors.Invalidf(apperrors.ErrMissingPattern, "Missing required parameter 'pattern'"))
		return
	}
	filter := filterMode(params)
	compiled, err := ep.compile(src)
	if err != nil {
		fail(err)
		return
	}

	inputFormat := p.GetDefault(props.KeyInputFormat, engine.FormatText)

	logger.FromContext(ctx).Debug("pattern query",
		"endpoint", ep.endpoint,
		"pattern", src,
		"filter", filter,
		"bytes", len(body),
	)

	ctx, span := tracing.Start(ctx, string(ep.endpoint))
	defer s.finishTrace(ctx, span)

	out, err := executor.Run(ctx, s.executor, func(ctx context.Context) ([]byte, error) {
		h, err := s.pipelines.Get(ctx, p)
		if err != nil {
			return nil, err
		}
		doc, err := readDocument(h.Pipeline, body, inputFormat)
		if err != nil {
			return nil, err
		}
		if !doc.Has(annotation.LayerSentences) {
			if err := h.Annotate(ctx, doc); err != nil {
				return nil, err
			}
		}
		units := make([]match.Unit, 0, len(doc.Sentences))
		for _, sentence := range doc.Sentences {
			units = append(units, compiled.Bind(doc, sentence))
		}
		_, project := tracing.Start(ctx, "match")
		defer project.End()
		project.SetAttr("sentences", len(units))
		var projectErr error
		out, err := jsonwriter.Render(func(w jsonwriter.Writer) {
			projectErr = match.Project(w, units, filter, ep.kind)
		})
		if projectErr != nil {
			return nil, projectErr
		}
		return out, err
	})
	if err != nil {
		fail(err)
		return
	}

	event.Outcome = analytics.OutcomeOK
	event.OutputBytes = len(out)
	s.track(ctx, event, start)

	w.Header().Set("Content-Type", "text/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

// filterMode reports whether the request asks for one boolean per sentence
// instead of match details. An empty filter value counts as true.
func filterMode(params map[string]string) bool {
	v, ok := params["filter"]
	if !ok {
		return false
	}
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, "true")
}
