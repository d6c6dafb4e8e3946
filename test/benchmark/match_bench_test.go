package benchmark

import (
	"context"
	"testing"

	"github.com/dongwandou/CoreNLP/internal/annotation"
	"github.com/dongwandou/CoreNLP/internal/jsonwriter"
	"github.com/dongwandou/CoreNLP/internal/match"
	"github.com/dongwandou/CoreNLP/internal/pattern"
)

func annotatedLong(b *testing.B) *annotation.Document {
	b.Helper()
	doc := annotation.NewDocument(sampleTexts["long"])
	if err := buildPipeline(b, "ner,depparse").Annotate(context.Background(), doc); err != nil {
		b.Fatal(err)
	}
	return doc
}

// BenchmarkTokenPattern measures find and filter projection of a token
// pattern over every sentence of a long document.
func BenchmarkTokenPattern(b *testing.B) {
	doc := annotatedLong(b)
	p, err := pattern.CompileToken(`[pos:DT]? (?$mod [pos:/JJ.*/]*) [pos:/NN.*/]+`)
	if err != nil {
		b.Fatal(err)
	}
	for _, filter := range []bool{false, true} {
		name := "find"
		if filter {
			name = "filter"
		}
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				project(b, doc, p, filter, match.Tokens)
			}
		})
	}
}

func BenchmarkGraphPattern(b *testing.B) {
	doc := annotatedLong(b)
	p, err := pattern.CompileGraph(`{pos:/VB.*/}=verb >nsubj {}=subj`)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	for b.Loop() {
		project(b, doc, p, false, match.Graph)
	}
}

func BenchmarkCompileToken(b *testing.B) {
	b.ReportAllocs()
	for b.Loop() {
		if _, err := pattern.CompileToken(`[pos:DT]? (?$mod [pos:/JJ.*/]*) [pos:/NN.*/]+ [word:/ran|sat/ & !ner:PERSON]`); err != nil {
			b.Fatal(err)
		}
	}
}

type binder interface {
	Bind(*annotation.Document, *annotation.Sentence) match.Unit
}

func project(b *testing.B, doc *annotation.Document, p binder, filter bool, kind match.Kind) {
	units := make([]match.Unit, 0, len(doc.Sentences))
	for _, s := range doc.Sentences {
		units = append(units, p.Bind(doc, s))
	}
	var projectErr error
	if _, err := jsonwriter.Render(func(w jsonwriter.Writer) {
		projectErr = match.Project(w, units, filter, kind)
	}); err != nil {
		b.Fatal(err)
	}
	if projectErr != nil {
		b.Fatal(projectErr)
	}
}
