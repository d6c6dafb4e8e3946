// Package annotation holds the per-request document model: raw text plus
// the annotation layers added to it by a pipeline.
package annotation

import (
	"slices"
	"strings"

	apperrors "github.com/dongwandou/CoreNLP/pkg/errors"
)

// Layer names an annotation layer.
type Layer string

const (
	LayerTokens       Layer = "tokens"
	LayerSentences    Layer = "sentences"
	LayerPOS          Layer = "pos"
	LayerLemma        Layer = "lemma"
	LayerNER          Layer = "ner"
	LayerDependencies Layer = "dependencies"
)

// Token is one token of a sentence. Index is 1-based within the sentence;
// Begin and End are character offsets into the document text.
type Token struct {
	Index int    `json:"index"`
	Word  string `json:"word"`
	Begin int    `json:"characterOffsetBegin"`
	End   int    `json:"characterOffsetEnd"`
	Lemma string `json:"lemma,omitempty"`
	POS   string `json:"pos,omitempty"`
	NER   string `json:"ner,omitempty"`
}

// Edge is a dependency arc. Governor 0 is the root.
type Edge struct {
	Governor  int    `json:"governor"`
	Dependent int    `json:"dependent"`
	Relation  string `json:"dep"`
}

type Sentence struct {
	Index        int
	Tokens       []Token
	Dependencies []Edge
}

// Text joins the words of tokens [from, to) using the original spacing.
func (s *Sentence) Text(text string, from, to int) string {
	if from >= to || from < 0 || to > len(s.Tokens) {
		return ""
	}
	begin, end := s.Tokens[from].Begin, s.Tokens[to-1].End
	if begin >= 0 && end <= len(text) && begin <= end {
		return text[begin:end]
	}
	words := make([]string, 0, to-from)
	for _, t := range s.Tokens[from:to] {
		words = append(words, t.Word)
	}
	return strings.Join(words, " ")
}

// Root returns the 1-based index of the root token, or 0 without
// dependencies.
func (s *Sentence) Root() int {
	for _, e := range s.Dependencies {
		if e.Governor == 0 {
			return e.Dependent
		}
	}
	return 0
}

// Document is the mutable container a pipeline annotates. It is owned by a
// single request and is not safe for concurrent use.
type Document struct {
	Text      string
	Sentences []*Sentence
	layers    []Layer
}

func NewDocument(text string) *Document {
	return &Document{Text: text}
}

// Has reports whether layer has been added.
func (d *Document) Has(layer Layer) bool {
	return slices.Contains(d.layers, layer)
}

// Mark records that layer has been added.
func (d *Document) Mark(layer Layer) {
	if !d.Has(layer) {
		d.layers = append(d.layers, layer)
	}
}

// Layers returns the layers present, in the order they were added.
func (d *Document) Layers() []Layer {
	return slices.Clone(d.layers)
}

// Require returns ErrMissingLayer for the first absent layer.
func (d *Document) Require(layers ...Layer) error {
	for _, l := range layers {
		if !d.Has(l) {
			return apperrors.Failf(apperrors.ErrMissingLayer, "document has no %s annotation", l)
		}
	}
	return nil
}

// Tokens returns every token of every sentence in document order.
func (d *Document) Tokens() []Token {
	var out []Token
	for _, s := range d.Sentences {
		out = append(out, s.Tokens...)
	}
	return out
}
