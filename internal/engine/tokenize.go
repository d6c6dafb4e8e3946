package engine

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dongwandou/CoreNLP/internal/annotation"
)

// abbreviations keep their trailing period.
var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "st": {}, "jr": {},
	"sr": {}, "inc": {}, "corp": {}, "ltd": {}, "co": {}, "vs": {}, "etc": {},
	"e.g": {}, "i.e": {}, "u.s": {}, "jan": {}, "feb": {}, "aug": {}, "sept": {},
	"oct": {}, "nov": {}, "dec": {},
}

type tokenizer struct{}

func (tokenizer) layer() annotation.Layer { return annotation.LayerTokens }

// annotate splits the text into word and punctuation tokens with byte
// offsets. All tokens go into a single sentence until ssplit runs.
func (tokenizer) annotate(doc *annotation.Document) {
	s := &annotation.Sentence{}
	for _, span := range tokenSpans(doc.Text) {
		s.Tokens = append(s.Tokens, annotation.Token{
			Index: len(s.Tokens) + 1,
			Word:  doc.Text[span[0]:span[1]],
			Begin: span[0],
			End:   span[1],
		})
	}
	doc.Sentences = []*annotation.Sentence{s}
}

// tokenSpans returns [begin, end) byte ranges of tokens in text. A word is
// a run of letters and digits that may contain an apostrophe, hyphen, or
// period between alphanumerics, plus a trailing period for known
// abbreviations and initials. Any other non-space rune is its own token.
func tokenSpans(text string) [][2]int {
	var spans [][2]int
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case isWordRune(r):
			end := wordEnd(text, i)
			spans = append(spans, [2]int{i, end})
			i = end
		default:
			spans = append(spans, [2]int{i, i + size})
			i += size
		}
	}
	return spans
}

func wordEnd(text string, start int) int {
	i := start
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if isWordRune(r) {
			i += size
			continue
		}
		if r == '\'' || r == '-' || r == '.' || r == ',' {
			next, _ := utf8.DecodeRuneInString(text[i+size:])
			if i+size < len(text) && isWordRune(next) && (r != ',' || isDigitRun(text[start:i])) {
				i += size
				continue
			}
		}
		if r == '.' {
			word := strings.ToLower(text[start:i])
			_, abbr := abbreviations[word]
			if abbr || isInitial(text[start:i]) {
				return i + size
			}
		}
		break
	}
	return i
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isDigitRun(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != ',' && r != '.' {
			return false
		}
	}
	return s != ""
}

func isInitial(s string) bool {
	r, size := utf8.DecodeRuneInString(s)
	return size == len(s) && unicode.IsUpper(r)
}

type sentenceSplitter struct{}

func (sentenceSplitter) layer() annotation.Layer { return annotation.LayerSentences }

var sentenceEnders = map[string]struct{}{".": {}, "!": {}, "?": {}}

var closers = map[string]struct{}{"\"": {}, "'": {}, ")": {}, "]": {}, "”": {}, "’": {}}

// annotate regroups the document's tokens into sentences ending at '.',
// '!' or '?' plus any closing quotes or brackets that follow.
func (sentenceSplitter) annotate(doc *annotation.Document) {
	tokens := doc.Tokens()
	var sentences []*annotation.Sentence
	cur := &annotation.Sentence{}
	flush := func() {
		if len(cur.Tokens) == 0 {
			return
		}
		cur.Index = len(sentences)
		sentences = append(sentences, cur)
		cur = &annotation.Sentence{}
	}
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		t.Index = len(cur.Tokens) + 1
		cur.Tokens = append(cur.Tokens, t)
		if _, end := sentenceEnders[t.Word]; !end {
			continue
		}
		for i+1 < len(tokens) {
			if _, ok := closers[tokens[i+1].Word]; !ok {
				break
			}
			i++
			c := tokens[i]
			c.Index = len(cur.Tokens) + 1
			cur.Tokens = append(cur.Tokens, c)
		}
		flush()
	}
	flush()
	doc.Sentences = sentences
}
