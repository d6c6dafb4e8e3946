package engine

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongwandou/CoreNLP/internal/annotation"
	"github.com/dongwandou/CoreNLP/internal/capability"
	"github.com/dongwandou/CoreNLP/internal/pipeline"
	"github.com/dongwandou/CoreNLP/internal/props"
	apperrors "github.com/dongwandou/CoreNLP/pkg/errors"
)

func build(t *testing.T, kv ...string) pipeline.Pipeline {
	t.Helper()
	p, err := New(capability.Default()).Build(context.Background(), props.New(kv...))
	require.NoError(t, err)
	return p
}

func annotate(t *testing.T, p pipeline.Pipeline, text string) *annotation.Document {
	t.Helper()
	doc := annotation.NewDocument(text)
	require.NoError(t, p.Annotate(context.Background(), doc))
	return doc
}

func words(tokens []annotation.Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Word
	}
	return out
}

func TestTokenSpans(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"The cat sat.", []string{"The", "cat", "sat", "."}},
		{"Dr. Smith paid $1,000.50 today!", []string{"Dr.", "Smith", "paid", "$", "1,000.50", "today", "!"}},
		{"It's a well-known fact, isn't it?", []string{"It's", "a", "well-known", "fact", ",", "isn't", "it", "?"}},
		{"J. R. R. Tolkien", []string{"J.", "R.", "R.", "Tolkien"}},
		{"  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			var got []string
			for _, span := range tokenSpans(tt.text) {
				got = append(got, tt.text[span[0]:span[1]])
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSentenceSplitting(t *testing.T) {
	p := build(t, props.KeyAnnotators, "ssplit")
	doc := annotate(t, p, "He left. “Why?” she asked. Done")

	require.Len(t, doc.Sentences, 3)
	assert.Equal(t, []string{"He", "left", "."}, words(doc.Sentences[0].Tokens))
	assert.Equal(t, []string{"“", "Why", "?", "”"}, words(doc.Sentences[1].Tokens))
	assert.Equal(t, []string{"she", "asked", ".", "Done"}, words(doc.Sentences[2].Tokens))
	for i, s := range doc.Sentences {
		assert.Equal(t, i, s.Index)
		for j, tok := range s.Tokens {
			assert.Equal(t, j+1, tok.Index)
		}
	}
	assert.Equal(t, "she asked. Done", doc.Sentences[2].Text(doc.Text, 0, 4))
}

func TestTaggingAndLemmas(t *testing.T) {
	p := build(t, props.KeyAnnotators, "lemma")
	doc := annotate(t, p, "The children were running to the big houses.")

	var tags, lemmas []string
	for _, tok := range doc.Tokens() {
		tags = append(tags, tok.POS)
		lemmas = append(lemmas, tok.Lemma)
	}
	assert.Equal(t, []string{"DT", "NNS", "VBD", "VBG", "TO", "DT", "JJ", "NNS", "."}, tags)
	assert.Equal(t, []string{"the", "child", "be", "run", "to", "the", "big", "house", "."}, lemmas)
}

func TestEntities(t *testing.T) {
	p := build(t, props.KeyAnnotators, "ner")
	doc := annotate(t, p, "Dr. Smith visited Paris on Monday with 3 friends from Acme Corp.")

	got := map[string]string{}
	for _, tok := range doc.Tokens() {
		got[tok.Word] = tok.NER
	}
	assert.Equal(t, "O", got["Dr."])
	assert.Equal(t, "PERSON", got["Smith"])
	assert.Equal(t, "LOCATION", got["Paris"])
	assert.Equal(t, "DATE", got["Monday"])
	assert.Equal(t, "NUMBER", got["3"])
	assert.Equal(t, "ORGANIZATION", got["Acme"])
	assert.Equal(t, "ORGANIZATION", got["Corp."])
	assert.Equal(t, "O", got["friends"])
}

func TestDependencyParse(t *testing.T) {
	p := build(t, props.KeyAnnotators, "depparse")
	doc := annotate(t, p, "The cat sat on the mat.")

	require.Len(t, doc.Sentences, 1)
	s := doc.Sentences[0]
	assert.Equal(t, 3, s.Root())
	assert.ElementsMatch(t, []annotation.Edge{
		{Governor: 0, Dependent: 3, Relation: "root"},
		{Governor: 2, Dependent: 1, Relation: "det"},
		{Governor: 3, Dependent: 2, Relation: "nsubj"},
		{Governor: 6, Dependent: 4, Relation: "case"},
		{Governor: 6, Dependent: 5, Relation: "det"},
		{Governor: 3, Dependent: 6, Relation: "obl"},
		{Governor: 3, Dependent: 7, Relation: "punct"},
	}, s.Dependencies)
}

func TestDependencyParseIsATree(t *testing.T) {
	p := build(t, props.KeyAnnotators, "depparse")
	doc := annotate(t, p, "My old friend could not have seen the small red car yesterday, but she left quickly!")

	for _, s := range doc.Sentences {
		heads := map[int]int{}
		roots := 0
		for _, e := range s.Dependencies {
			_, dup := heads[e.Dependent]
			require.False(t, dup, "token %d has two governors", e.Dependent)
			heads[e.Dependent] = e.Governor
			if e.Governor == 0 {
				roots++
			}
		}
		assert.Equal(t, 1, roots)
		assert.Len(t, heads, len(s.Tokens))
		for dep := range heads {
			seen := map[int]bool{}
			for cur := dep; cur != 0; cur = heads[cur] {
				require.False(t, seen[cur], "cycle through token %d", cur)
				seen[cur] = true
			}
		}
	}
}

func TestBuildErrors(t *testing.T) {
	e := New(capability.Default())
	tests := []struct {
		name string
		kv   []string
		want error
	}{
		{"no annotators", []string{props.KeyAnnotators, ""}, apperrors.ErrInvalidInput},
		{"unknown annotator", []string{props.KeyAnnotators, "tokenize,coref"}, apperrors.ErrUnknownAnnotator},
		{"bad output", []string{props.KeyAnnotators, "tokenize", props.KeyOutputFormat, "yaml"}, apperrors.ErrUnsupportedFormat},
		{"bad input", []string{props.KeyAnnotators, "tokenize", props.KeyInputFormat, "pdf"}, apperrors.ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Build(context.Background(), props.New(tt.kv...))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, apperrors.IsClientError(err))
		})
	}
}

func TestRequiresIsClosure(t *testing.T) {
	p := build(t, props.KeyAnnotators, "lemma")
	assert.Equal(t, []string{"tokenize", "ssplit", "pos", "lemma"}, p.Requires())
}

func TestAnnotateStopsOnCancelledContext(t *testing.T) {
	p := build(t, props.KeyAnnotators, "pos")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc := annotation.NewDocument("Hello there.")
	err := p.Annotate(ctx, doc)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrExecution)
	assert.Empty(t, doc.Layers())
}

func TestRenderJSON(t *testing.T) {
	p := build(t, props.KeyAnnotators, "ner,depparse")
	doc := annotate(t, p, "The cat sat.")
	out, err := p.Render(doc, props.New(props.KeyOutputFormat, FormatJSON))
	require.NoError(t, err)

	var got struct {
		Sentences []struct {
			Index             int `json:"index"`
			BasicDependencies []struct {
				Dep            string `json:"dep"`
				Governor       int    `json:"governor"`
				GovernorGloss  string `json:"governorGloss"`
				Dependent      int    `json:"dependent"`
				DependentGloss string `json:"dependentGloss"`
			} `json:"basicDependencies"`
			Tokens []annotation.Token `json:"tokens"`
		} `json:"sentences"`
	}
	require.NoError(t, json.Unmarshal(out, &got))
	require.Len(t, got.Sentences, 1)
	s := got.Sentences[0]
	assert.Equal(t, 0, s.Index)
	require.Len(t, s.Tokens, 4)
	assert.Equal(t, annotation.Token{Index: 2, Word: "cat", Begin: 4, End: 7, Lemma: "cat", POS: "NN", NER: "O"}, s.Tokens[1])
	require.NotEmpty(t, s.BasicDependencies)
	assert.Equal(t, "root", s.BasicDependencies[0].Dep)
	assert.Equal(t, "ROOT", s.BasicDependencies[0].GovernorGloss)
	assert.Equal(t, "sat", s.BasicDependencies[0].DependentGloss)

	assert.True(t, strings.Index(string(out), `"index"`) < strings.Index(string(out), `"tokens"`))
}

func TestRenderJSONTokensOnly(t *testing.T) {
	p := build(t, props.KeyAnnotators, "tokenize")
	doc := annotate(t, p, "Hi there")
	out, err := p.Render(doc, props.New())
	require.NoError(t, err)

	var got struct {
		Tokens []map[string]any `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(out, &got))
	require.Len(t, got.Tokens, 2)
	assert.Equal(t, "there", got.Tokens[1]["word"])
	assert.NotContains(t, got.Tokens[1], "pos")
}

func TestRenderText(t *testing.T) {
	p := build(t, props.KeyAnnotators, "ner,depparse")
	doc := annotate(t, p, "The cat sat.")
	out, err := p.Render(doc, props.New(props.KeyOutputFormat, FormatText))
	require.NoError(t, err)

	text := string(out)
	assert.True(t, strings.HasPrefix(text, "Sentence #1 (4 tokens):\nThe cat sat.\n\nTokens:\n"))
	assert.Contains(t, text, "[Text=cat CharacterOffsetBegin=4 CharacterOffsetEnd=7 PartOfSpeech=NN Lemma=cat NamedEntityTag=O]\n")
	assert.Contains(t, text, "root(ROOT-0, sat-3)\n")
	assert.Contains(t, text, "nsubj(sat-3, cat-2)\n")
}

func TestRenderCoNLL(t *testing.T) {
	p := build(t, props.KeyAnnotators, "ner,depparse")
	doc := annotate(t, p, "The cat sat. It ran.")
	out, err := p.Render(doc, props.New(props.KeyOutputFormat, FormatCoNLL))
	require.NoError(t, err)

	blocks := strings.Split(strings.TrimSuffix(string(out), "\n"), "\n\n")
	require.Len(t, blocks, 2)
	lines := strings.Split(blocks[0], "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "2\tcat\tcat\tNN\tO\t3\tnsubj", lines[1])
	assert.Equal(t, "3\tsat\tsit\tVBD\tO\t0\troot", lines[2])
}

func TestRenderCoNLLMissingColumns(t *testing.T) {
	p := build(t, props.KeyAnnotators, "ssplit")
	doc := annotate(t, p, "Go.")
	out, err := p.Render(doc, props.New(props.KeyOutputFormat, FormatCoNLL))
	require.NoError(t, err)
	assert.Equal(t, "1\tGo\t_\t_\t_\t_\t_\n2\t.\t_\t_\t_\t_\t_\n", string(out))
}

func TestRenderXML(t *testing.T) {
	p := build(t, props.KeyAnnotators, "ner,depparse")
	doc := annotate(t, p, "The cat sat.")
	out, err := p.Render(doc, props.New(props.KeyOutputFormat, FormatXML))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), xml.Header))

	var got xmlRoot
	require.NoError(t, xml.Unmarshal(out, &got))
	require.Len(t, got.Document.Sentences, 1)
	s := got.Document.Sentences[0]
	assert.Equal(t, 1, s.ID)
	require.Len(t, s.Tokens, 4)
	assert.Equal(t, "sat", s.Tokens[2].Word)
	assert.Equal(t, "sit", s.Tokens[2].Lemma)
	require.NotNil(t, s.Dependencies)
	assert.Equal(t, "root", s.Dependencies.Deps[0].Type)
	assert.Equal(t, "ROOT", s.Dependencies.Deps[0].Governor.Word)
}

func TestRenderMissingLayer(t *testing.T) {
	p := build(t, props.KeyAnnotators, "pos")
	doc := annotation.NewDocument("never annotated")
	_, err := p.Render(doc, props.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMissingLayer)
	assert.False(t, apperrors.IsClientError(err))
}

func TestSerializedRoundTrip(t *testing.T) {
	p := build(t, props.KeyAnnotators, "depparse")
	doc := annotate(t, p, "The cat sat. It ran.")
	out, err := p.Render(doc, props.New(props.KeyOutputFormat, FormatSerialized))
	require.NoError(t, err)

	reader, ok := p.(pipeline.Reader)
	require.True(t, ok)
	back, err := reader.ReadDocument(out, FormatSerialized)
	require.NoError(t, err)
	assert.Equal(t, doc.Text, back.Text)
	assert.Equal(t, doc.Layers(), back.Layers())
	require.Len(t, back.Sentences, 2)
	assert.Equal(t, doc.Sentences[0].Tokens, back.Sentences[0].Tokens)
	assert.Equal(t, doc.Sentences[1].Dependencies, back.Sentences[1].Dependencies)

	// A pre-annotated document needs no further work.
	require.NoError(t, p.Annotate(context.Background(), back))
	assert.Equal(t, doc.Sentences[0].Dependencies, back.Sentences[0].Dependencies)
}

func TestReadDocumentRejectsGarbage(t *testing.T) {
	p := build(t, props.KeyAnnotators, "tokenize")
	reader := p.(pipeline.Reader)

	_, err := reader.ReadDocument([]byte{0xff, 0xff, 0xff}, FormatSerialized)
	require.Error(t, err)
	assert.True(t, apperrors.IsClientError(err))

	doc, err := reader.ReadDocument([]byte("plain text"), FormatText)
	require.NoError(t, err)
	assert.Equal(t, "plain text", doc.Text)
	assert.Empty(t, doc.Layers())
}
