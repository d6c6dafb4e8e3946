// Package capability models annotator prerequisites as a directed acyclic
// graph and expands a requested annotator list into its prerequisite-closed,
// dependency-ordered form.
package capability

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dominikbraun/graph"

	apperrors "github.com/dongwandou/CoreNLP/pkg/errors"
)

const (
	Tokenize = "tokenize"
	SSplit   = "ssplit"
	POS      = "pos"
	Lemma    = "lemma"
	NER      = "ner"
	DepParse = "depparse"
)

var listSeparator = regexp.MustCompile(`[,\s]+`)

// Registry holds the known annotators, their direct prerequisites, and a
// canonical rank used to order otherwise independent annotators.
type Registry struct {
	graph graph.Graph[string, string]
	rank  map[string]int
}

// Annotator declares one annotator and the annotators it directly requires.
type Annotator struct {
	Name     string
	Requires []string
}

// NewRegistry builds a registry from annotators. Declaration order is the
// canonical order; every prerequisite must be declared before use.
func NewRegistry(annotators ...Annotator) (*Registry, error) {
	r := &Registry{
		graph: graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles()),
		rank:  make(map[string]int, len(annotators)),
	}
	for i, s := range annotators {
		if err := r.graph.AddVertex(s.Name); err != nil {
			return nil, fmt.Errorf("adding annotator %q: %w", s.Name, err)
		}
		r.rank[s.Name] = i
	}
	for _, s := range annotators {
		for _, req := range s.Requires {
			if _, ok := r.rank[req]; !ok {
				return nil, fmt.Errorf("annotator %q requires undeclared %q", s.Name, req)
			}
			// Edges point from prerequisite to dependent.
			if err := r.graph.AddEdge(req, s.Name); err != nil {
				return nil, fmt.Errorf("adding prerequisite %q -> %q: %w", req, s.Name, err)
			}
		}
	}
	return r, nil
}

// Default returns the registry of annotators the built-in engine provides.
func Default() *Registry {
	r, err := NewRegistry(
		Annotator{Name: Tokenize},
		Annotator{Name: SSplit, Requires: []string{Tokenize}},
		Annotator{Name: POS, Requires: []string{Tokenize, SSplit}},
		Annotator{Name: Lemma, Requires: []string{Tokenize, SSplit, POS}},
		Annotator{Name: NER, Requires: []string{Tokenize, SSplit, POS, Lemma}},
		Annotator{Name: DepParse, Requires: []string{Tokenize, SSplit, POS}},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Known reports whether name is a registered annotator.
func (r *Registry) Known(name string) bool {
	_, ok := r.rank[name]
	return ok
}

// Split breaks an annotator list on commas and whitespace.
func Split(list string) []string {
	parts := listSeparator.Split(strings.TrimSpace(list), -1)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Closure returns requested plus every transitive prerequisite, without
// duplicates, prerequisites first. The order is a layered topological
// sort: each time an annotator is emitted, the annotators it unblocks are
// queued in canonical rank order behind those already waiting. The result
// depends only on the set of annotators reached, though it need not follow
// rank across layers (depparse, unblocked by pos, precedes ner, unblocked
// by lemma).
func (r *Registry) Closure(requested []string) ([]string, error) {
	adjacency, err := r.graph.PredecessorMap()
	if err != nil {
		return nil, fmt.Errorf("reading annotator graph: %w", err)
	}
	needed := make(map[string]struct{})
	stack := make([]string, 0, len(requested))
	for _, name := range requested {
		if !r.Known(name) {
			return nil, apperrors.Invalidf(apperrors.ErrUnknownAnnotator, "unknown annotator %q", name)
		}
		stack = append(stack, name)
	}
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := needed[name]; seen {
			continue
		}
		needed[name] = struct{}{}
		for pred := range adjacency[name] {
			stack = append(stack, pred)
		}
	}

	sub := graph.New(graph.StringHash, graph.Directed())
	for name := range needed {
		_ = sub.AddVertex(name)
	}
	for name := range needed {
		for pred := range adjacency[name] {
			_ = sub.AddEdge(pred, name)
		}
	}
	ordered, err := graph.StableTopologicalSort(sub, func(a, b string) bool {
		return r.rank[a] < r.rank[b]
	})
	if err != nil {
		return nil, fmt.Errorf("ordering annotators: %w", err)
	}
	return ordered, nil
}

// Expand is Closure over a comma/whitespace separated list, joined back
// with commas.
func (r *Registry) Expand(list string) (string, error) {
	closed, err := r.Closure(Split(list))
	if err != nil {
		return "", err
	}
	return strings.Join(closed, ","), nil
}
