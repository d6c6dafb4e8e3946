// Package match turns pattern-match results into the nested JSON shape
// returned by the pattern endpoints.
package match

import (
	"iter"
	"strconv"

	"github.com/dongwandou/CoreNLP/internal/jsonwriter"
)

// Kind selects how capture names are keyed.
type Kind int

const (
	// Tokens is token-sequence matching; group names are written as
	// declared.
	Tokens Kind = iota
	// Graph is dependency-graph matching; node names get a "$" prefix.
	Graph
)

// Span is matched text plus the 1-based indices of the tokens or nodes it
// covers, in ascending order.
type Span struct {
	Text  string
	Nodes []int
}

// Group is one capture. An empty Name means the group is positional.
type Group struct {
	Name string
	Span
}

// Occurrence is one match within a unit.
type Occurrence struct {
	Span
	Groups []Group
}

// Unit is one sentence a compiled pattern has been bound to.
type Unit interface {
	// Matches reports whether the pattern matches the unit as a whole.
	Matches() (bool, error)
	// Find returns every match in the unit, in order.
	Find() ([]Occurrence, error)
}

// Project writes units under "sentences": one boolean per unit in filter
// mode, otherwise one object per unit mapping match index to match
// detail, followed by "length". Units are evaluated lazily as they are
// written; the first unit error stops output and is returned.
func Project(w jsonwriter.Writer, units []Unit, filter bool, kind Kind) error {
	var err error
	var sentences iter.Seq[any] = func(yield func(any) bool) {
		for _, u := range units {
			var v any
			if filter {
				v, err = u.Matches()
			} else {
				var occs []Occurrence
				occs, err = u.Find()
				v = occurrences(occs, kind)
			}
			if err != nil || !yield(v) {
				return
			}
		}
	}
	w.Set("sentences", sentences)
	return err
}

func occurrences(occs []Occurrence, kind Kind) func(jsonwriter.Writer) {
	return func(s jsonwriter.Writer) {
		for i, occ := range occs {
			s.Set(strconv.Itoa(i), occurrence(occ, kind))
		}
		s.Set("length", len(occs))
	}
}

func occurrence(occ Occurrence, kind Kind) func(jsonwriter.Writer) {
	return func(m jsonwriter.Writer) {
		m.Set("text", occ.Text)
		begin, end := occ.bounds()
		m.Set("begin", begin)
		m.Set("end", end)
		for i, g := range occ.Groups {
			m.Set(groupKey(g, i, kind), capture(g))
		}
	}
}

func capture(g Group) func(jsonwriter.Writer) {
	return func(c jsonwriter.Writer) {
		c.Set("text", g.Text)
		if len(g.Nodes) > 0 {
			begin, end := g.bounds()
			c.Set("begin", begin)
			c.Set("end", end)
		}
	}
}

func groupKey(g Group, i int, kind Kind) string {
	switch {
	case g.Name == "":
		return strconv.Itoa(i + 1)
	case kind == Graph:
		return "$" + g.Name
	default:
		return g.Name
	}
}

// bounds converts 1-based node indices to a 0-based, end-exclusive range.
func (s Span) bounds() (begin, end int) {
	if len(s.Nodes) == 0 {
		return 0, 0
	}
	return s.Nodes[0] - 1, s.Nodes[len(s.Nodes)-1]
}
