package engine

import (
	"bytes"
	"fmt"
	"iter"
	"strconv"

	"github.com/dongwandou/CoreNLP/internal/annotation"
	"github.com/dongwandou/CoreNLP/internal/jsonwriter"
)

// renderJSON writes the document in the server's JSON layout. Fields for
// layers the document lacks are omitted.
func renderJSON(doc *annotation.Document) ([]byte, error) {
	return jsonwriter.Render(func(w jsonwriter.Writer) {
		if !doc.Has(annotation.LayerSentences) {
			w.Set("tokens", tokenSeq(doc, doc.Tokens()))
			return
		}
		w.Set("sentences", iter.Seq[any](func(yield func(any) bool) {
			for _, s := range doc.Sentences {
				if !yield(sentenceObject(doc, s)) {
					return
				}
			}
		}))
	})
}

func sentenceObject(doc *annotation.Document, s *annotation.Sentence) func(jsonwriter.Writer) {
	return func(w jsonwriter.Writer) {
		w.Set("index", s.Index)
		if doc.Has(annotation.LayerDependencies) {
			w.Set("basicDependencies", dependencySeq(s))
		}
		w.Set("tokens", tokenSeq(doc, s.Tokens))
	}
}

func dependencySeq(s *annotation.Sentence) iter.Seq[any] {
	gloss := func(i int) string {
		if i == 0 {
			return "ROOT"
		}
		return s.Tokens[i-1].Word
	}
	return func(yield func(any) bool) {
		for _, e := range s.Dependencies {
			obj := func(w jsonwriter.Writer) {
				w.Set("dep", e.Relation)
				w.Set("governor", e.Governor)
				w.Set("governorGloss", gloss(e.Governor))
				w.Set("dependent", e.Dependent)
				w.Set("dependentGloss", gloss(e.Dependent))
			}
			if !yield(obj) {
				return
			}
		}
	}
}

func tokenSeq(doc *annotation.Document, tokens []annotation.Token) iter.Seq[any] {
	return func(yield func(any) bool) {
		for _, t := range tokens {
			obj := func(w jsonwriter.Writer) {
				w.Set("index", t.Index)
				w.Set("word", t.Word)
				w.Set("originalText", t.Word)
				w.Set("characterOffsetBegin", t.Begin)
				w.Set("characterOffsetEnd", t.End)
				if doc.Has(annotation.LayerPOS) {
					w.Set("pos", t.POS)
				}
				if doc.Has(annotation.LayerLemma) {
					w.Set("lemma", t.Lemma)
				}
				if doc.Has(annotation.LayerNER) {
					w.Set("ner", t.NER)
				}
			}
			if !yield(obj) {
				return
			}
		}
	}
}

// renderText writes the human-readable listing: each sentence's text,
// its tokens with their attributes, and its dependency parse.
func renderText(doc *annotation.Document) []byte {
	var b bytes.Buffer
	for i, s := range doc.Sentences {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Sentence #%d (%d tokens):\n", i+1, len(s.Tokens))
		b.WriteString(s.Text(doc.Text, 0, len(s.Tokens)))
		b.WriteString("\n\nTokens:\n")
		for _, t := range s.Tokens {
			fmt.Fprintf(&b, "[Text=%s CharacterOffsetBegin=%d CharacterOffsetEnd=%d", t.Word, t.Begin, t.End)
			if doc.Has(annotation.LayerPOS) {
				b.WriteString(" PartOfSpeech=" + t.POS)
			}
			if doc.Has(annotation.LayerLemma) {
				b.WriteString(" Lemma=" + t.Lemma)
			}
			if doc.Has(annotation.LayerNER) {
				b.WriteString(" NamedEntityTag=" + t.NER)
			}
			b.WriteString("]\n")
		}
		if doc.Has(annotation.LayerDependencies) {
			b.WriteString("\nDependency Parse (basic dependencies):\n")
			for _, e := range s.Dependencies {
				gov := "ROOT"
				if e.Governor > 0 {
					gov = s.Tokens[e.Governor-1].Word
				}
				fmt.Fprintf(&b, "%s(%s-%d, %s-%d)\n", e.Relation, gov, e.Governor, s.Tokens[e.Dependent-1].Word, e.Dependent)
			}
		}
	}
	return b.Bytes()
}

// renderCoNLL writes one tab-separated line per token with the columns
// index, word, lemma, pos, ner, head, and relation. Missing values are
// written as "_" and sentences are separated by a blank line.
func renderCoNLL(doc *annotation.Document) []byte {
	var b bytes.Buffer
	field := func(layer annotation.Layer, v string) string {
		if !doc.Has(layer) || v == "" {
			return "_"
		}
		return v
	}
	for i, s := range doc.Sentences {
		if i > 0 {
			b.WriteByte('\n')
		}
		heads := make(map[int]annotation.Edge, len(s.Dependencies))
		for _, e := range s.Dependencies {
			heads[e.Dependent] = e
		}
		for _, t := range s.Tokens {
			head, rel := "_", "_"
			if e, ok := heads[t.Index]; ok {
				head, rel = strconv.Itoa(e.Governor), e.Relation
			}
			fmt.Fprintf(&b, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", t.Index, t.Word,
				field(annotation.LayerLemma, t.Lemma),
				field(annotation.LayerPOS, t.POS),
				field(annotation.LayerNER, t.NER),
				head, rel)
		}
	}
	return b.Bytes()
}
