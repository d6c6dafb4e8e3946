// Package engine is the built-in annotation engine. It provides small,
// rule-based annotators for tokenization, sentence splitting, tagging,
// lemmatization, entity recognition and dependency parsing, and renders
// annotated documents in every supported output format.
package engine

import (
	"context"
	"log/slog"
	"slices"

	"github.com/dongwandou/CoreNLP/internal/annotation"
	"github.com/dongwandou/CoreNLP/internal/capability"
	"github.com/dongwandou/CoreNLP/internal/pipeline"
	"github.com/dongwandou/CoreNLP/internal/props"
	apperrors "github.com/dongwandou/CoreNLP/pkg/errors"
	"github.com/dongwandou/CoreNLP/pkg/logger"
	"github.com/dongwandou/CoreNLP/pkg/tracing"
)

// Output and input format names.
const (
	FormatText       = "text"
	FormatJSON       = "json"
	FormatXML        = "xml"
	FormatCoNLL      = "conll"
	FormatSerialized = "serialized"
)

var outputFormats = []string{FormatText, FormatJSON, FormatXML, FormatCoNLL, FormatSerialized}

var inputFormats = []string{FormatText, FormatSerialized}

// annotator adds one layer to a document. Annotators skip documents that
// already carry their layer.
type annotator interface {
	layer() annotation.Layer
	annotate(doc *annotation.Document)
}

var annotators = map[string]annotator{
	capability.Tokenize: tokenizer{},
	capability.SSplit:   sentenceSplitter{},
	capability.POS:      tagger{},
	capability.Lemma:    lemmatizer{},
	capability.NER:      entityTagger{},
	capability.DepParse: parser{},
}

// Engine builds pipelines from resolved properties.
type Engine struct {
	registry *capability.Registry
	logger   *slog.Logger
}

func New(reg *capability.Registry) *Engine {
	return &Engine{registry: reg, logger: logger.WithComponent("engine")}
}

// Build validates p and returns a pipeline running its annotators in
// dependency order.
func (e *Engine) Build(ctx context.Context, p props.Properties) (pipeline.Pipeline, error) {
	names, err := e.registry.Closure(capability.Split(p.Get(props.KeyAnnotators)))
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, apperrors.Invalidf(apperrors.ErrInvalidInput, "no annotators requested")
	}
	out := p.GetDefault(props.KeyOutputFormat, FormatJSON)
	if !slices.Contains(outputFormats, out) {
		return nil, apperrors.Invalidf(apperrors.ErrUnsupportedFormat, "unsupported output format %q", out)
	}
	in := p.GetDefault(props.KeyInputFormat, FormatText)
	if !slices.Contains(inputFormats, in) {
		return nil, apperrors.Invalidf(apperrors.ErrUnsupportedFormat, "unsupported input format %q", in)
	}

	pl := &annotatorPipeline{names: names}
	for _, name := range names {
		a, ok := annotators[name]
		if !ok {
			return nil, apperrors.Invalidf(apperrors.ErrUnknownAnnotator, "annotator %q has no implementation", name)
		}
		pl.stages = append(pl.stages, a)
	}
	logger.FromContext(ctx).Debug("engine pipeline assembled", "annotators", names, "output_format", out)
	return pl, nil
}

type annotatorPipeline struct {
	names  []string
	stages []annotator
}

func (p *annotatorPipeline) Requires() []string {
	return slices.Clone(p.names)
}

// Annotate runs each stage in order, checking ctx between stages.
func (p *annotatorPipeline) Annotate(ctx context.Context, doc *annotation.Document) error {
	for i, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return apperrors.Failf(apperrors.ErrExecution, "annotation interrupted before %s: %v", p.names[i], err)
		}
		if doc.Has(stage.layer()) {
			continue
		}
		_, span := tracing.Start(ctx, p.names[i])
		stage.annotate(doc)
		span.End()
		doc.Mark(stage.layer())
	}
	return nil
}

// requiredLayers lists the layers this pipeline promises to output.
func (p *annotatorPipeline) requiredLayers() []annotation.Layer {
	layers := make([]annotation.Layer, 0, len(p.stages))
	for _, s := range p.stages {
		layers = append(layers, s.layer())
	}
	return layers
}

func (p *annotatorPipeline) Render(doc *annotation.Document, pr props.Properties) ([]byte, error) {
	if err := doc.Require(p.requiredLayers()...); err != nil {
		return nil, err
	}
	switch format := pr.GetDefault(props.KeyOutputFormat, FormatJSON); format {
	case FormatJSON:
		return renderJSON(doc)
	case FormatText:
		return renderText(doc), nil
	case FormatXML:
		return renderXML(doc)
	case FormatCoNLL:
		return renderCoNLL(doc), nil
	case FormatSerialized:
		return marshalDocument(doc)
	default:
		return nil, apperrors.Invalidf(apperrors.ErrUnsupportedFormat, "unsupported output format %q", format)
	}
}

// ReadDocument decodes a request body in the given input format.
func (p *annotatorPipeline) ReadDocument(body []byte, format string) (*annotation.Document, error) {
	switch format {
	case FormatText, "":
		return annotation.NewDocument(string(body)), nil
	case FormatSerialized:
		return unmarshalDocument(body)
	default:
		return nil, apperrors.Invalidf(apperrors.ErrUnsupportedFormat, "unsupported input format %q", format)
	}
}
