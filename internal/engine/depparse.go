package engine

import (
	"strings"

	"github.com/dongwandou/CoreNLP/internal/annotation"
)

type parser struct{}

func (parser) layer() annotation.Layer { return annotation.LayerDependencies }

func (parser) annotate(doc *annotation.Document) {
	for _, s := range doc.Sentences {
		s.Dependencies = parseSentence(s.Tokens)
	}
}

func isVerb(tag string) bool { return strings.HasPrefix(tag, "VB") }

func isNoun(tag string) bool { return strings.HasPrefix(tag, "NN") }

func isPunct(tag string) bool {
	return strings.IndexFunc(tag, isTagLetter) < 0 || tag == "-LRB-" || tag == "-RRB-"
}

func isTagLetter(r rune) bool { return r >= 'A' && r <= 'Z' }

func isNominal(tag string) bool {
	switch {
	case isNoun(tag), strings.HasPrefix(tag, "JJ"):
		return true
	}
	switch tag {
	case "DT", "PRP$", "CD", "PRP", "POS":
		return true
	}
	return false
}

// parseSentence builds a dependency tree with a few head rules: the main
// verb of the first verb group is the root; noun phrases attach to it as
// subject, object, or oblique; everything else attaches to the root or to
// its phrase head. Every token gets exactly one governor.
func parseSentence(tokens []annotation.Token) []annotation.Edge {
	n := len(tokens)
	if n == 0 {
		return nil
	}
	tag := func(i int) string { return tokens[i-1].POS }
	head := make([]int, n+1)
	rel := make([]string, n+1)
	set := func(dep, gov int, r string) {
		if head[dep] == 0 && rel[dep] == "" {
			head[dep], rel[dep] = gov, r
		}
	}

	root := chooseRoot(tokens)
	rel[root] = "root"

	// Verb group around the root: auxiliaries and negation before it.
	for i := root - 1; i >= 1; i-- {
		t := tag(i)
		if t == "MD" || isVerb(t) {
			set(i, root, "aux")
			continue
		}
		if t == "RB" {
			continue
		}
		break
	}

	subjectSeen, objectSeen := false, false
	for i := 1; i <= n; {
		if !isNominal(tag(i)) || i == root && !isNoun(tag(i)) {
			i++
			continue
		}
		j := i
		for j+1 <= n && isNominal(tag(j+1)) && tag(j+1) != "PRP" && tag(j) != "PRP" {
			j++
		}
		h := phraseHead(tokens, i, j)
		if i <= root && root <= j {
			h = root
		}
		for k := i; k <= j; k++ {
			if k != h {
				set(k, h, modifierRelation(tag(k), k, h))
			}
		}
		if h != root {
			prep := i - 1
			hasCase := prep >= 1 && tag(prep) == "IN"
			switch {
			case hasCase && h > root:
				set(prep, h, "case")
				set(h, root, "obl")
			case hasCase:
				set(prep, h, "case")
				set(h, root, "nmod")
			case h < root && !subjectSeen:
				subjectSeen = true
				set(h, root, "nsubj")
			case h > root && !objectSeen:
				objectSeen = true
				set(h, root, "obj")
			default:
				set(h, root, "dep")
			}
		}
		i = j + 1
	}

	for i := 1; i <= n; i++ {
		if i == root {
			continue
		}
		t := tag(i)
		switch {
		case isPunct(t):
			set(i, root, "punct")
		case t == "RB":
			set(i, root, "advmod")
		case t == "CC":
			set(i, root, "cc")
		case t == "TO", t == "IN":
			set(i, root, "mark")
		case t == "EX":
			set(i, root, "expl")
		case isVerb(t):
			set(i, root, "conj")
		default:
			set(i, root, "dep")
		}
	}

	edges := make([]annotation.Edge, 0, n)
	edges = append(edges, annotation.Edge{Governor: 0, Dependent: root, Relation: "root"})
	for i := 1; i <= n; i++ {
		if i != root {
			edges = append(edges, annotation.Edge{Governor: head[i], Dependent: i, Relation: rel[i]})
		}
	}
	return edges
}

// chooseRoot returns the last verb of the first verb group, else the last
// noun, else the first non-punctuation token.
func chooseRoot(tokens []annotation.Token) int {
	for i, t := range tokens {
		if !isVerb(t.POS) && t.POS != "MD" {
			continue
		}
		root := i
		for j := i; j < len(tokens); j++ {
			p := tokens[j].POS
			if isVerb(p) {
				root = j
				continue
			}
			if p != "MD" && p != "RB" {
				break
			}
		}
		if isVerb(tokens[root].POS) {
			return root + 1
		}
	}
	for i := len(tokens) - 1; i >= 0; i-- {
		if isNoun(tokens[i].POS) {
			return i + 1
		}
	}
	for i, t := range tokens {
		if !isPunct(t.POS) {
			return i + 1
		}
	}
	return 1
}

// phraseHead is the last noun or pronoun in [from, to], else the last
// token.
func phraseHead(tokens []annotation.Token, from, to int) int {
	for k := to; k >= from; k-- {
		if p := tokens[k-1].POS; isNoun(p) || p == "PRP" || p == "CD" {
			return k
		}
	}
	return to
}

func modifierRelation(tag string, dep, head int) string {
	switch {
	case tag == "DT":
		return "det"
	case tag == "PRP$", tag == "POS":
		return "nmod:poss"
	case strings.HasPrefix(tag, "JJ"):
		return "amod"
	case tag == "CD":
		return "nummod"
	case isNoun(tag) && dep < head:
		return "compound"
	}
	return "dep"
}
