package match

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongwandou/CoreNLP/internal/jsonwriter"
)

type fakeUnit struct {
	matches bool
	occs    []Occurrence
	err     error
	calls   *int
}

func (f fakeUnit) Matches() (bool, error) {
	if f.calls != nil {
		*f.calls++
	}
	return f.matches, f.err
}

func (f fakeUnit) Find() ([]Occurrence, error) {
	if f.calls != nil {
		*f.calls++
	}
	return f.occs, f.err
}

func render(t *testing.T, units []Unit, filter bool, kind Kind) (string, error) {
	t.Helper()
	var projErr error
	out, err := jsonwriter.Render(func(w jsonwriter.Writer) {
		projErr = Project(w, units, filter, kind)
	})
	require.NoError(t, err)
	return string(out), projErr
}

func TestProjectFind(t *testing.T) {
	units := []Unit{fakeUnit{occs: []Occurrence{{Span: Span{Text: "cat", Nodes: []int{2}}}}}}
	out, err := render(t, units, false, Tokens)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sentences":[{"0":{"text":"cat","begin":1,"end":2},"length":1}]}`, out)
}

func TestProjectFilter(t *testing.T) {
	units := []Unit{fakeUnit{matches: true}, fakeUnit{matches: false}}
	out, err := render(t, units, true, Tokens)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sentences":[true,false]}`, out)
}

func TestProjectCaptures(t *testing.T) {
	occ := Occurrence{
		Span: Span{Text: "the black cat", Nodes: []int{1, 2, 3}},
		Groups: []Group{
			{Span: Span{Text: "black", Nodes: []int{2}}},
			{Name: "$animal", Span: Span{Text: "cat", Nodes: []int{3}}},
			{Span: Span{Text: ""}},
		},
	}
	out, err := render(t, []Unit{fakeUnit{occs: []Occurrence{occ}}, fakeUnit{}}, false, Tokens)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sentences":[
		{"0":{"text":"the black cat","begin":0,"end":3,
		      "1":{"text":"black","begin":1,"end":2},
		      "$animal":{"text":"cat","begin":2,"end":3},
		      "3":{"text":""}},
		 "length":1},
		{"length":0}
	]}`, out)
}

func TestProjectGraphNames(t *testing.T) {
	occ := Occurrence{
		Span:   Span{Text: "sat", Nodes: []int{3}},
		Groups: []Group{{Name: "subj", Span: Span{Text: "cat", Nodes: []int{2}}}},
	}
	out, err := render(t, []Unit{fakeUnit{occs: []Occurrence{occ}}}, false, Graph)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sentences":[{"0":{"text":"sat","begin":2,"end":3,"$subj":{"text":"cat","begin":1,"end":2}},"length":1}]}`, out)
}

func TestProjectStopsOnError(t *testing.T) {
	calls := 0
	boom := errors.New("matcher failed")
	units := []Unit{
		fakeUnit{matches: true, calls: &calls},
		fakeUnit{err: boom, calls: &calls},
		fakeUnit{matches: true, calls: &calls},
	}
	_, err := render(t, units, true, Tokens)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}
