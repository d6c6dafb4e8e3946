// Package pattern compiles the token-sequence and dependency-graph
// patterns accepted by the match endpoints and binds them to annotated
// sentences.
package pattern

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/dongwandou/CoreNLP/internal/annotation"
	apperrors "github.com/dongwandou/CoreNLP/pkg/errors"
)

// valueMatcher tests one attribute value, either exactly or against an
// anchored regular expression.
type valueMatcher struct {
	literal string
	re      *regexp.Regexp
}

func (v valueMatcher) match(s string) bool {
	if v.re != nil {
		return v.re.MatchString(s)
	}
	return s == v.literal
}

// constraint is a single attribute test; a token satisfies a node when it
// satisfies every constraint.
type constraint struct {
	attr   string
	value  valueMatcher
	negate bool
}

func (c constraint) match(t annotation.Token) bool {
	var got string
	switch c.attr {
	case "word":
		got = t.Word
	case "lemma":
		got = t.Lemma
	case "pos":
		got = t.POS
	case "ner":
		got = t.NER
	}
	return c.value.match(got) != c.negate
}

type constraints []constraint

func (cs constraints) match(t annotation.Token) bool {
	for _, c := range cs {
		if !c.match(t) {
			return false
		}
	}
	return true
}

var attrAliases = map[string]string{
	"word":  "word",
	"text":  "word",
	"lemma": "lemma",
	"pos":   "pos",
	"tag":   "pos",
	"ner":   "ner",
}

// scanner walks a pattern string by rune.
type scanner struct {
	src  []rune
	pos  int
	kind string
}

func newScanner(kind, s string) *scanner {
	return &scanner{src: []rune(s), kind: kind}
}

func (s *scanner) eof() bool { return s.pos >= len(s.src) }

func (s *scanner) peek() rune {
	if s.eof() {
		return 0
	}
	return s.src[s.pos]
}

func (s *scanner) skipSpace() {
	for !s.eof() && unicode.IsSpace(s.src[s.pos]) {
		s.pos++
	}
}

func (s *scanner) accept(r rune) bool {
	s.skipSpace()
	if s.peek() == r {
		s.pos++
		return true
	}
	return false
}

func (s *scanner) expect(r rune) error {
	if !s.accept(r) {
		return s.errorf("expected %q", r)
	}
	return nil
}

func (s *scanner) errorf(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return apperrors.Invalidf(apperrors.ErrPatternSyntax, "%s pattern: %s at offset %d", s.kind, msg, s.pos)
}

// delimited reads text up to an unescaped end rune, after the opening
// rune has been consumed. A backslash escapes end; inside quotes it
// also escapes itself.
func (s *scanner) delimited(end rune) (string, error) {
	var b strings.Builder
	for !s.eof() {
		r := s.src[s.pos]
		s.pos++
		switch {
		case r == '\\' && !s.eof() && s.src[s.pos] == end:
			b.WriteRune(end)
			s.pos++
		case r == '\\' && end == '"' && !s.eof() && s.src[s.pos] == '\\':
			b.WriteRune('\\')
			s.pos++
		case r == end:
			return b.String(), nil
		default:
			b.WriteRune(r)
		}
	}
	return "", s.errorf("unterminated %q", end)
}

// bare reads a run of runes that are not spaces or in stops.
func (s *scanner) bare(stops string) string {
	start := s.pos
	for !s.eof() && !unicode.IsSpace(s.src[s.pos]) && !strings.ContainsRune(stops, s.src[s.pos]) {
		s.pos++
	}
	return string(s.src[start:s.pos])
}

// value reads a quoted string, a /regex/, or a bare word.
func (s *scanner) value(stops string) (valueMatcher, error) {
	s.skipSpace()
	switch s.peek() {
	case '"':
		s.pos++
		lit, err := s.delimited('"')
		return valueMatcher{literal: lit}, err
	case '/':
		s.pos++
		expr, err := s.delimited('/')
		if err != nil {
			return valueMatcher{}, err
		}
		re, err := regexp.Compile("^(?:" + expr + ")$")
		if err != nil {
			return valueMatcher{}, s.errorf("bad regular expression /%s/: %v", expr, err)
		}
		return valueMatcher{re: re}, nil
	}
	lit := s.bare(stops)
	if lit == "" {
		return valueMatcher{}, s.errorf("expected a value")
	}
	return valueMatcher{literal: lit}, nil
}

// attributes reads attr:value pairs separated by sep until end. The
// opening rune has already been consumed.
func (s *scanner) attributes(sep, end rune) (constraints, error) {
	var cs constraints
	stops := string([]rune{sep, end, ':'})
	for {
		s.skipSpace()
		if s.accept(end) {
			return cs, nil
		}
		if len(cs) > 0 {
			if err := s.expect(sep); err != nil {
				return nil, err
			}
			s.skipSpace()
		}
		negate := s.accept('!')
		s.skipSpace()
		name := s.bare(stops)
		attr, ok := attrAliases[strings.ToLower(name)]
		if !ok {
			return nil, s.errorf("unknown attribute %q", name)
		}
		if err := s.expect(':'); err != nil {
			return nil, err
		}
		v, err := s.value(string([]rune{sep, end}))
		if err != nil {
			return nil, err
		}
		cs = append(cs, constraint{attr: attr, value: v, negate: negate})
	}
}
