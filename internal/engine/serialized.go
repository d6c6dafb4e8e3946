package engine

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dongwandou/CoreNLP/internal/annotation"
	apperrors "github.com/dongwandou/CoreNLP/pkg/errors"
)

var knownLayers = map[annotation.Layer]struct{}{
	annotation.LayerTokens:       {},
	annotation.LayerSentences:    {},
	annotation.LayerPOS:          {},
	annotation.LayerLemma:        {},
	annotation.LayerNER:          {},
	annotation.LayerDependencies: {},
}

// marshalDocument encodes doc as a protobuf Struct carrying the text, the
// layer list, and every sentence with its tokens and dependencies.
func marshalDocument(doc *annotation.Document) ([]byte, error) {
	layers := make([]any, 0, len(doc.Layers()))
	for _, l := range doc.Layers() {
		layers = append(layers, string(l))
	}
	sentences := make([]any, 0, len(doc.Sentences))
	for _, s := range doc.Sentences {
		tokens := make([]any, 0, len(s.Tokens))
		for _, t := range s.Tokens {
			tokens = append(tokens, map[string]any{
				"index": t.Index, "word": t.Word, "begin": t.Begin, "end": t.End,
				"lemma": t.Lemma, "pos": t.POS, "ner": t.NER,
			})
		}
		deps := make([]any, 0, len(s.Dependencies))
		for _, e := range s.Dependencies {
			deps = append(deps, map[string]any{
				"governor": e.Governor, "dependent": e.Dependent, "relation": e.Relation,
			})
		}
		sentences = append(sentences, map[string]any{
			"index": s.Index, "tokens": tokens, "dependencies": deps,
		})
	}
	st, err := structpb.NewStruct(map[string]any{
		"text":      doc.Text,
		"layers":    layers,
		"sentences": sentences,
	})
	if err != nil {
		return nil, apperrors.Failf(apperrors.ErrExecution, "serializing document: %v", err)
	}
	out, err := proto.MarshalOptions{Deterministic: true}.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshaling document: %w", err)
	}
	return out, nil
}

// unmarshalDocument decodes a body written by marshalDocument. Anything
// that is not a well-formed document is a client error.
func unmarshalDocument(body []byte) (*annotation.Document, error) {
	st := &structpb.Struct{}
	if err := proto.Unmarshal(body, st); err != nil {
		return nil, apperrors.Invalidf(apperrors.ErrInvalidInput, "decoding serialized document: %v", err)
	}
	fields := st.GetFields()
	doc := annotation.NewDocument(fields["text"].GetStringValue())
	for _, v := range fields["layers"].GetListValue().GetValues() {
		l := annotation.Layer(v.GetStringValue())
		if _, ok := knownLayers[l]; !ok {
			return nil, apperrors.Invalidf(apperrors.ErrInvalidInput, "serialized document has unknown layer %q", l)
		}
		doc.Mark(l)
	}
	for i, v := range fields["sentences"].GetListValue().GetValues() {
		sf := v.GetStructValue().GetFields()
		if sf == nil {
			return nil, apperrors.Invalidf(apperrors.ErrInvalidInput, "serialized sentence %d is not an object", i)
		}
		s := &annotation.Sentence{Index: intField(sf, "index")}
		for _, tv := range sf["tokens"].GetListValue().GetValues() {
			tf := tv.GetStructValue().GetFields()
			t := annotation.Token{
				Index: intField(tf, "index"),
				Word:  tf["word"].GetStringValue(),
				Begin: intField(tf, "begin"),
				End:   intField(tf, "end"),
				Lemma: tf["lemma"].GetStringValue(),
				POS:   tf["pos"].GetStringValue(),
				NER:   tf["ner"].GetStringValue(),
			}
			if t.Index != len(s.Tokens)+1 {
				return nil, apperrors.Invalidf(apperrors.ErrInvalidInput, "serialized sentence %d has token index %d out of order", i, t.Index)
			}
			s.Tokens = append(s.Tokens, t)
		}
		for _, dv := range sf["dependencies"].GetListValue().GetValues() {
			df := dv.GetStructValue().GetFields()
			e := annotation.Edge{
				Governor:  intField(df, "governor"),
				Dependent: intField(df, "dependent"),
				Relation:  df["relation"].GetStringValue(),
			}
			if e.Governor < 0 || e.Governor > len(s.Tokens) || e.Dependent < 1 || e.Dependent > len(s.Tokens) {
				return nil, apperrors.Invalidf(apperrors.ErrInvalidInput, "serialized sentence %d has dependency %d->%d outside its tokens", i, e.Governor, e.Dependent)
			}
			s.Dependencies = append(s.Dependencies, e)
		}
		doc.Sentences = append(doc.Sentences, s)
	}
	return doc, nil
}

func intField(fields map[string]*structpb.Value, key string) int {
	return int(fields[key].GetNumberValue())
}
