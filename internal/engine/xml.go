package engine

import (
	"encoding/xml"
	"fmt"

	"github.com/dongwandou/CoreNLP/internal/annotation"
)

type xmlRoot struct {
	XMLName  xml.Name    `xml:"root"`
	Document xmlDocument `xml:"document"`
}

type xmlDocument struct {
	Sentences []xmlSentence `xml:"sentences>sentence"`
}

type xmlSentence struct {
	ID           int              `xml:"id,attr"`
	Tokens       []xmlToken       `xml:"tokens>token"`
	Dependencies *xmlDependencies `xml:"dependencies,omitempty"`
}

type xmlToken struct {
	ID    int    `xml:"id,attr"`
	Word  string `xml:"word"`
	Lemma string `xml:"lemma,omitempty"`
	Begin int    `xml:"CharacterOffsetBegin"`
	End   int    `xml:"CharacterOffsetEnd"`
	POS   string `xml:"POS,omitempty"`
	NER   string `xml:"NER,omitempty"`
}

type xmlDependencies struct {
	Type string   `xml:"type,attr"`
	Deps []xmlDep `xml:"dep"`
}

type xmlDep struct {
	Type      string     `xml:"type,attr"`
	Governor  xmlDepNode `xml:"governor"`
	Dependent xmlDepNode `xml:"dependent"`
}

type xmlDepNode struct {
	Idx  int    `xml:"idx,attr"`
	Word string `xml:",chardata"`
}

// renderXML writes the document as an XML tree of sentences, tokens, and
// basic dependencies. Sentence ids are 1-based.
func renderXML(doc *annotation.Document) ([]byte, error) {
	root := xmlRoot{}
	for i, s := range doc.Sentences {
		xs := xmlSentence{ID: i + 1}
		for _, t := range s.Tokens {
			xs.Tokens = append(xs.Tokens, xmlToken{
				ID: t.Index, Word: t.Word, Lemma: t.Lemma,
				Begin: t.Begin, End: t.End, POS: t.POS, NER: t.NER,
			})
		}
		if doc.Has(annotation.LayerDependencies) {
			deps := &xmlDependencies{Type: "basic-dependencies"}
			for _, e := range s.Dependencies {
				gov := xmlDepNode{Idx: e.Governor, Word: "ROOT"}
				if e.Governor > 0 {
					gov.Word = s.Tokens[e.Governor-1].Word
				}
				deps.Deps = append(deps.Deps, xmlDep{
					Type:      e.Relation,
					Governor:  gov,
					Dependent: xmlDepNode{Idx: e.Dependent, Word: s.Tokens[e.Dependent-1].Word},
				})
			}
			xs.Dependencies = deps
		}
		root.Document.Sentences = append(root.Document.Sentences, xs)
	}
	out, err := xml.MarshalIndent(root, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding xml: %w", err)
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}
