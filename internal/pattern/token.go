package pattern

import (
	"github.com/dongwandou/CoreNLP/internal/annotation"
	"github.com/dongwandou/CoreNLP/internal/match"
)

// TokenPattern is a compiled token-sequence pattern. The syntax is a
// whitespace separated sequence of:
//
//	cat  "cat"          a token whose word is cat
//	/ca.+/              a token whose word matches the regex
//	[pos:/NN.*/ & !ner:O]  attribute tests (word, lemma, pos/tag, ner)
//	[]                  any token
//	( ... )             a positional capture group
//	(?$name ... )       a named capture group
//
// Any element may be followed by ?, * or +.
type TokenPattern struct {
	source string
	seq    []*tokenNode
	groups []string
}

type tokenKind int

const (
	tokenElem tokenKind = iota
	tokenGroup
	tokenRepeat
)

type tokenNode struct {
	kind     tokenKind
	test     constraints
	children []*tokenNode
	group    int
	child    *tokenNode
	min, max int
}

const literalStops = "()[]{}?*+\"/"

// CompileToken parses a token-sequence pattern.
func CompileToken(src string) (*TokenPattern, error) {
	p := &TokenPattern{source: src}
	sc := newScanner("token", src)
	seq, err := p.parseSeq(sc, 0)
	if err != nil {
		return nil, err
	}
	if len(seq) == 0 {
		return nil, sc.errorf("empty pattern")
	}
	p.seq = seq
	return p, nil
}

func (p *TokenPattern) String() string { return p.source }

// Groups returns the capture group names in order; positional groups are "".
func (p *TokenPattern) Groups() []string {
	return append([]string(nil), p.groups...)
}

func (p *TokenPattern) parseSeq(sc *scanner, end rune) ([]*tokenNode, error) {
	var seq []*tokenNode
	for {
		sc.skipSpace()
		if sc.eof() {
			if end != 0 {
				return nil, sc.errorf("missing %q", end)
			}
			return seq, nil
		}
		if end != 0 && sc.accept(end) {
			return seq, nil
		}
		n, err := p.parseAtom(sc)
		if err != nil {
			return nil, err
		}
		seq = append(seq, p.parseQuantifier(sc, n))
	}
}

func (p *TokenPattern) parseAtom(sc *scanner) (*tokenNode, error) {
	switch sc.peek() {
	case '(':
		sc.pos++
		name := ""
		if sc.peek() == '?' {
			sc.pos++
			if sc.peek() != '$' {
				return nil, sc.errorf("expected '$' after '(?'")
			}
			name = sc.bare("()")
			if len(name) < 2 {
				return nil, sc.errorf("empty group name")
			}
		}
		p.groups = append(p.groups, name)
		n := &tokenNode{kind: tokenGroup, group: len(p.groups)}
		children, err := p.parseSeq(sc, ')')
		if err != nil {
			return nil, err
		}
		n.children = children
		return n, nil
	case '[':
		sc.pos++
		var test constraints
		var err error
		if sc.accept('{') {
			test, err = sc.attributes('&', '}')
			if err == nil {
				err = sc.expect(']')
			}
		} else {
			test, err = sc.attributes('&', ']')
		}
		if err != nil {
			return nil, err
		}
		return &tokenNode{kind: tokenElem, test: test}, nil
	case ')', ']', '{', '}', '?', '*', '+':
		return nil, sc.errorf("unexpected %q", sc.peek())
	}
	v, err := sc.value(literalStops)
	if err != nil {
		return nil, err
	}
	return &tokenNode{kind: tokenElem, test: constraints{{attr: "word", value: v}}}, nil
}

func (p *TokenPattern) parseQuantifier(sc *scanner, n *tokenNode) *tokenNode {
	for {
		var lo, hi int
		switch sc.peek() {
		case '?':
			lo, hi = 0, 1
		case '*':
			lo, hi = 0, -1
		case '+':
			lo, hi = 1, -1
		default:
			return n
		}
		sc.pos++
		n = &tokenNode{kind: tokenRepeat, child: n, min: lo, max: hi}
	}
}

// Bind returns the pattern applied to one sentence of doc.
func (p *TokenPattern) Bind(doc *annotation.Document, s *annotation.Sentence) match.Unit {
	return &tokenUnit{pattern: p, text: doc.Text, sentence: s}
}

type tokenUnit struct {
	pattern  *TokenPattern
	text     string
	sentence *annotation.Sentence
}

// Matches reports whether the whole sentence matches.
func (u *tokenUnit) Matches() (bool, error) {
	m := u.matcher()
	return m.seq(u.pattern.seq, 0, func(end int) bool { return end == len(m.tokens) }), nil
}

// Find returns leftmost, non-overlapping, non-empty matches.
func (u *tokenUnit) Find() ([]match.Occurrence, error) {
	m := u.matcher()
	var out []match.Occurrence
	for start := 0; start < len(m.tokens); {
		m.reset()
		end := -1
		found := m.seq(u.pattern.seq, start, func(e int) bool {
			if e > start {
				end = e
				return true
			}
			return false
		})
		if !found {
			start++
			continue
		}
		out = append(out, u.occurrence(m, start, end))
		start = end
	}
	return out, nil
}

func (u *tokenUnit) occurrence(m *tokenMatcher, start, end int) match.Occurrence {
	occ := match.Occurrence{Span: u.span(start, end)}
	for i, name := range u.pattern.groups {
		c := m.captures[i+1]
		g := match.Group{Name: name}
		if c[0] >= 0 {
			g.Span = u.span(c[0], c[1])
		}
		occ.Groups = append(occ.Groups, g)
	}
	return occ
}

func (u *tokenUnit) span(from, to int) match.Span {
	s := match.Span{Text: u.sentence.Text(u.text, from, to)}
	for i := from; i < to; i++ {
		s.Nodes = append(s.Nodes, i+1)
	}
	return s
}

func (u *tokenUnit) matcher() *tokenMatcher {
	m := &tokenMatcher{
		tokens:   u.sentence.Tokens,
		captures: make([][2]int, len(u.pattern.groups)+1),
	}
	m.reset()
	return m
}

// tokenMatcher is a backtracking matcher. Each step calls k with the
// position after the step; k returning false backtracks.
type tokenMatcher struct {
	tokens   []annotation.Token
	captures [][2]int
}

func (m *tokenMatcher) reset() {
	for i := range m.captures {
		m.captures[i] = [2]int{-1, -1}
	}
}

func (m *tokenMatcher) seq(nodes []*tokenNode, pos int, k func(int) bool) bool {
	if len(nodes) == 0 {
		return k(pos)
	}
	return m.node(nodes[0], pos, func(next int) bool {
		return m.seq(nodes[1:], next, k)
	})
}

func (m *tokenMatcher) node(n *tokenNode, pos int, k func(int) bool) bool {
	switch n.kind {
	case tokenElem:
		return pos < len(m.tokens) && n.test.match(m.tokens[pos]) && k(pos+1)
	case tokenGroup:
		saved := m.captures[n.group]
		return m.seq(n.children, pos, func(end int) bool {
			m.captures[n.group] = [2]int{pos, end}
			if k(end) {
				return true
			}
			m.captures[n.group] = saved
			return false
		})
	default:
		return m.repeat(n, 0, pos, k)
	}
}

// repeat is greedy: it tries one more iteration before stopping.
// Iterations that consume nothing are not repeated.
func (m *tokenMatcher) repeat(n *tokenNode, count, pos int, k func(int) bool) bool {
	if n.max < 0 || count < n.max {
		more := m.node(n.child, pos, func(next int) bool {
			return next > pos && m.repeat(n, count+1, next, k)
		})
		if more {
			return true
		}
	}
	return count >= n.min && k(pos)
}
