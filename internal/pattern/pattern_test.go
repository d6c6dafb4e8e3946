package pattern

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongwandou/CoreNLP/internal/annotation"
	"github.com/dongwandou/CoreNLP/internal/match"
	apperrors "github.com/dongwandou/CoreNLP/pkg/errors"
)

// sentence builds a sentence from word/TAG pairs separated by spaces,
// with offsets into the returned text.
func sentence(tagged string, deps ...annotation.Edge) (*annotation.Document, *annotation.Sentence) {
	var words []string
	s := &annotation.Sentence{Index: 0, Dependencies: deps}
	offset := 0
	for i, wt := range strings.Fields(tagged) {
		word, tag, _ := strings.Cut(wt, "/")
		s.Tokens = append(s.Tokens, annotation.Token{
			Index: i + 1, Word: word, POS: tag, Lemma: strings.ToLower(word),
			Begin: offset, End: offset + len(word), NER: "O",
		})
		words = append(words, word)
		offset += len(word) + 1
	}
	doc := annotation.NewDocument(strings.Join(words, " "))
	doc.Sentences = []*annotation.Sentence{s}
	return doc, s
}

func TestTokenFind(t *testing.T) {
	doc, s := sentence("The/DT cat/NN sat/VBD")
	p, err := CompileToken("cat")
	require.NoError(t, err)

	occs, err := p.Bind(doc, s).Find()
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.Equal(t, "cat", occs[0].Text)
	assert.Equal(t, []int{2}, occs[0].Nodes)
}

func TestTokenMatchesWholeSentence(t *testing.T) {
	doc, s := sentence("The/DT cat/NN sat/VBD")
	tests := []struct {
		pattern string
		want    bool
	}{
		{"cat", false},
		{"The cat sat", true},
		{"[] cat []", true},
		{"[]+", true},
		{"/[A-Z].*/ [pos:/NN.*/] [tag:VBD]", true},
		{"[pos:NN]* sat", false},
		{"The [pos:JJ]? cat sat", true},
		{"[{lemma:the}] [] [word:sat & !pos:NN]", true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			p, err := CompileToken(tt.pattern)
			require.NoError(t, err)
			got, err := p.Bind(doc, s).Matches()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenGroups(t *testing.T) {
	doc, s := sentence("the/DT black/JJ cat/NN saw/VBD a/DT dog/NN")
	p, err := CompileToken(`[pos:DT] ([pos:JJ]*) (?$animal [pos:NN])`)
	require.NoError(t, err)
	assert.Equal(t, []string{"", "$animal"}, p.Groups())

	occs, err := p.Bind(doc, s).Find()
	require.NoError(t, err)
	require.Len(t, occs, 2)

	first := occs[0]
	assert.Equal(t, "the black cat", first.Text)
	assert.Equal(t, []int{1, 2, 3}, first.Nodes)
	assert.Equal(t, match.Group{Span: match.Span{Text: "black", Nodes: []int{2}}}, first.Groups[0])
	assert.Equal(t, match.Group{Name: "$animal", Span: match.Span{Text: "cat", Nodes: []int{3}}}, first.Groups[1])

	second := occs[1]
	assert.Equal(t, "a dog", second.Text)
	assert.Equal(t, "", second.Groups[0].Text)
	assert.Empty(t, second.Groups[0].Nodes)
	assert.Equal(t, "dog", second.Groups[1].Text)
}

func TestTokenFindNonOverlapping(t *testing.T) {
	doc, s := sentence("a/DT a/DT a/DT")
	p, err := CompileToken("a a")
	require.NoError(t, err)
	occs, err := p.Bind(doc, s).Find()
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.Equal(t, []int{1, 2}, occs[0].Nodes)
}

func TestTokenCompileErrors(t *testing.T) {
	for _, src := range []string{"", "   ", "(cat", "cat)", "[foo:bar]", "[word:/(/]", "(?name cat)", "*", `"unterminated`} {
		_, err := CompileToken(src)
		require.Error(t, err, src)
		assert.ErrorIs(t, err, apperrors.ErrPatternSyntax, src)
		assert.True(t, apperrors.IsClientError(err), src)
	}
}

func catSat() (*annotation.Document, *annotation.Sentence) {
	return sentence("The/DT cat/NN sat/VBD on/IN the/DT mat/NN",
		annotation.Edge{Governor: 2, Dependent: 1, Relation: "det"},
		annotation.Edge{Governor: 3, Dependent: 2, Relation: "nsubj"},
		annotation.Edge{Governor: 0, Dependent: 3, Relation: "root"},
		annotation.Edge{Governor: 6, Dependent: 4, Relation: "case"},
		annotation.Edge{Governor: 6, Dependent: 5, Relation: "det"},
		annotation.Edge{Governor: 3, Dependent: 6, Relation: "obl"},
	)
}

func TestGraphFind(t *testing.T) {
	doc, s := catSat()
	p, err := CompileGraph("{pos:VBD} >nsubj {}=subj")
	require.NoError(t, err)
	assert.Equal(t, []string{"subj"}, p.Names())

	occs, err := p.Bind(doc, s).Find()
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.Equal(t, match.Span{Text: "sat", Nodes: []int{3}}, occs[0].Span)
	require.Len(t, occs[0].Groups, 1)
	assert.Equal(t, match.Group{Name: "subj", Span: match.Span{Text: "cat", Nodes: []int{2}}}, occs[0].Groups[0])
}

func TestGraphEnumeratesBindings(t *testing.T) {
	doc, s := catSat()
	p, err := CompileGraph("{} >det {}=d")
	require.NoError(t, err)
	occs, err := p.Bind(doc, s).Find()
	require.NoError(t, err)
	require.Len(t, occs, 2)
	assert.Equal(t, "cat", occs[0].Text)
	assert.Equal(t, "The", occs[0].Groups[0].Text)
	assert.Equal(t, "mat", occs[1].Text)
	assert.Equal(t, "the", occs[1].Groups[0].Text)
}

func TestGraphRelations(t *testing.T) {
	doc, s := catSat()
	tests := []struct {
		pattern string
		want    int
	}{
		{"{word:cat} <nsubj {word:sat}", 1},
		{"{} > {}", 3},
		{"{} >/n.*/ {}", 1},
		{"{pos:VBD} >nsubj {} >obl {}", 1},
		{"{pos:VBD} >nsubj ({} >det {word:The})", 1},
		{"{pos:VBD} >nsubj ({} >det {word:the})", 0},
		{"{}=a >det {}=b", 2},
		{"{lemma:mat;pos:NN} >case {}", 1},
		{"{} >det {}=x <obl {}=x", 0},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			p, err := CompileGraph(tt.pattern)
			require.NoError(t, err)
			u := p.Bind(doc, s)
			occs, err := u.Find()
			require.NoError(t, err)
			assert.Len(t, occs, tt.want)
			ok, err := u.Matches()
			require.NoError(t, err)
			assert.Equal(t, tt.want > 0, ok)
		})
	}
}

func TestGraphCompileErrors(t *testing.T) {
	for _, src := range []string{"", "{", "{word:cat", "{} >", "({}", "{} {}", "{bogus:x}", "{}=", "{} >/[/ {}"} {
		_, err := CompileGraph(src)
		require.Error(t, err, src)
		assert.ErrorIs(t, err, apperrors.ErrPatternSyntax, src)
	}
}
