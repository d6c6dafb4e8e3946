package pattern

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dongwandou/CoreNLP/internal/annotation"
	"github.com/dongwandou/CoreNLP/internal/match"
)

// GraphPattern is a compiled dependency-graph pattern. A node is written
// {attr:value;attr:/regex/} ({} matches any node) and may be named with
// =name. Relations follow the node they constrain:
//
//	A >label B   A governs B through label (any label when omitted)
//	A <label B   A is governed by B
//
// All relations after a node apply to that node; parenthesise to chain,
// as in {pos:VBD} >nsubj ({} >det {}).
type GraphPattern struct {
	source string
	root   *graphNode
	names  []string
}

type graphNode struct {
	test constraints
	name string
	rels []graphRel
}

type graphRel struct {
	governs bool
	label   *valueMatcher
	target  *graphNode
}

// CompileGraph parses a dependency-graph pattern.
func CompileGraph(src string) (*GraphPattern, error) {
	p := &GraphPattern{source: src}
	sc := newScanner("graph", src)
	sc.skipSpace()
	if sc.eof() {
		return nil, sc.errorf("empty pattern")
	}
	root, err := p.parseExpr(sc)
	if err != nil {
		return nil, err
	}
	sc.skipSpace()
	if !sc.eof() {
		return nil, sc.errorf("unexpected %q", sc.peek())
	}
	p.root = root
	return p, nil
}

func (p *GraphPattern) String() string { return p.source }

// Names returns the node names in declaration order.
func (p *GraphPattern) Names() []string {
	return slices.Clone(p.names)
}

// parseExpr reads a node and every relation attached to it.
func (p *GraphPattern) parseExpr(sc *scanner) (*graphNode, error) {
	n, err := p.parseTarget(sc)
	if err != nil {
		return nil, err
	}
	for {
		sc.skipSpace()
		var governs bool
		switch sc.peek() {
		case '>':
			governs = true
		case '<':
			governs = false
		default:
			return n, nil
		}
		sc.pos++
		rel := graphRel{governs: governs}
		if c := sc.peek(); c != 0 && c != '{' && c != '(' && c != ' ' && c != '\t' {
			v, err := sc.value("{(")
			if err != nil {
				return nil, err
			}
			rel.label = &v
		}
		sc.skipSpace()
		target, err := p.parseTarget(sc)
		if err != nil {
			return nil, err
		}
		rel.target = target
		n.rels = append(n.rels, rel)
	}
}

// parseTarget reads a single node or a parenthesised expression.
func (p *GraphPattern) parseTarget(sc *scanner) (*graphNode, error) {
	sc.skipSpace()
	if sc.accept('(') {
		n, err := p.parseExpr(sc)
		if err != nil {
			return nil, err
		}
		if err := sc.expect(')'); err != nil {
			return nil, err
		}
		return n, nil
	}
	if err := sc.expect('{'); err != nil {
		return nil, err
	}
	test, err := sc.attributes(';', '}')
	if err != nil {
		return nil, err
	}
	n := &graphNode{test: test}
	if sc.peek() == '=' {
		sc.pos++
		n.name = sc.bare("(){}<>=")
		if n.name == "" {
			return nil, sc.errorf("empty node name")
		}
		if !slices.Contains(p.names, n.name) {
			p.names = append(p.names, n.name)
		}
	}
	return n, nil
}

// Bind returns the pattern applied to one sentence of doc.
func (p *GraphPattern) Bind(_ *annotation.Document, s *annotation.Sentence) match.Unit {
	g := &graphUnit{pattern: p, sentence: s,
		children: make(map[int][]annotation.Edge),
		parents:  make(map[int][]annotation.Edge),
	}
	for _, e := range s.Dependencies {
		g.children[e.Governor] = append(g.children[e.Governor], e)
		g.parents[e.Dependent] = append(g.parents[e.Dependent], e)
	}
	return g
}

type graphUnit struct {
	pattern  *GraphPattern
	sentence *annotation.Sentence
	children map[int][]annotation.Edge
	parents  map[int][]annotation.Edge
}

// Matches reports whether the pattern matches anywhere in the sentence's
// dependency graph.
func (g *graphUnit) Matches() (bool, error) {
	for idx := 1; idx <= len(g.sentence.Tokens); idx++ {
		if g.search(g.pattern.root, idx, map[string]int{}, func() bool { return true }) {
			return true, nil
		}
	}
	return false, nil
}

// Find returns one occurrence per distinct assignment of the root node
// and named nodes, ordered by root position.
func (g *graphUnit) Find() ([]match.Occurrence, error) {
	var out []match.Occurrence
	seen := make(map[string]struct{})
	for idx := 1; idx <= len(g.sentence.Tokens); idx++ {
		bind := map[string]int{}
		g.search(g.pattern.root, idx, bind, func() bool {
			key := g.bindingKey(idx, bind)
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				out = append(out, g.occurrence(idx, bind))
			}
			return false
		})
	}
	return out, nil
}

func (g *graphUnit) search(n *graphNode, idx int, bind map[string]int, k func() bool) bool {
	if !n.test.match(g.sentence.Tokens[idx-1]) {
		return false
	}
	if n.name == "" {
		return g.relations(n.rels, idx, bind, k)
	}
	if bound, ok := bind[n.name]; ok {
		return bound == idx && g.relations(n.rels, idx, bind, k)
	}
	bind[n.name] = idx
	if g.relations(n.rels, idx, bind, k) {
		return true
	}
	delete(bind, n.name)
	return false
}

func (g *graphUnit) relations(rels []graphRel, idx int, bind map[string]int, k func() bool) bool {
	if len(rels) == 0 {
		return k()
	}
	r := rels[0]
	edges := g.parents[idx]
	if r.governs {
		edges = g.children[idx]
	}
	for _, e := range edges {
		if r.label != nil && !r.label.match(e.Relation) {
			continue
		}
		other := e.Governor
		if r.governs {
			other = e.Dependent
		}
		if other < 1 || other > len(g.sentence.Tokens) {
			continue
		}
		if g.search(r.target, other, bind, func() bool {
			return g.relations(rels[1:], idx, bind, k)
		}) {
			return true
		}
	}
	return false
}

func (g *graphUnit) occurrence(idx int, bind map[string]int) match.Occurrence {
	occ := match.Occurrence{Span: g.node(idx)}
	for _, name := range g.pattern.names {
		grp := match.Group{Name: name}
		if b, ok := bind[name]; ok {
			grp.Span = g.node(b)
		}
		occ.Groups = append(occ.Groups, grp)
	}
	return occ
}

func (g *graphUnit) node(idx int) match.Span {
	return match.Span{Text: g.sentence.Tokens[idx-1].Word, Nodes: []int{idx}}
}

func (g *graphUnit) bindingKey(idx int, bind map[string]int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", idx)
	for _, name := range g.pattern.names {
		fmt.Fprintf(&b, ";%d", bind[name])
	}
	return b.String()
}
