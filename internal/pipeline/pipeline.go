// Package pipeline defines the annotation engine contract and caches built
// pipelines by configuration.
package pipeline

import (
	"context"

	"github.com/dongwandou/CoreNLP/internal/annotation"
	"github.com/dongwandou/CoreNLP/internal/props"
)

// Engine constructs pipelines. Build may be slow and is called at most once
// per distinct configuration while a pipeline for it is alive.
type Engine interface {
	Build(ctx context.Context, p props.Properties) (Pipeline, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, p props.Properties) (Pipeline, error)

func (f EngineFunc) Build(ctx context.Context, p props.Properties) (Pipeline, error) {
	return f(ctx, p)
}

// Pipeline annotates documents and renders them. Implementations are
// immutable after Build and safe for concurrent use.
type Pipeline interface {
	// Annotate adds the pipeline's layers to doc in place.
	Annotate(ctx context.Context, doc *annotation.Document) error
	// Render serializes doc in the output format named by p.
	Render(doc *annotation.Document, p props.Properties) ([]byte, error)
	// Requires lists the annotators the pipeline runs, in order.
	Requires() []string
}

// Reader is implemented by pipelines that accept pre-annotated input
// formats besides plain text.
type Reader interface {
	ReadDocument(body []byte, format string) (*annotation.Document, error)
}
