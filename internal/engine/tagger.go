package engine

import (
	"strings"
	"unicode"

	"github.com/dongwandou/CoreNLP/internal/annotation"
)

var lexicon = map[string]string{
	"the": "DT", "a": "DT", "an": "DT", "this": "DT", "that": "DT", "these": "DT",
	"those": "DT", "every": "DT", "each": "DT", "some": "DT", "any": "DT", "no": "DT",
	"of": "IN", "in": "IN", "on": "IN", "at": "IN", "by": "IN", "for": "IN",
	"with": "IN", "from": "IN", "into": "IN", "over": "IN", "under": "IN",
	"about": "IN", "after": "IN", "before": "IN", "through": "IN", "during": "IN",
	"without": "IN", "between": "IN", "against": "IN", "among": "IN", "because": "IN",
	"if": "IN", "while": "IN", "than": "IN",
	"and": "CC", "or": "CC", "but": "CC", "nor": "CC", "yet": "CC",
	"i": "PRP", "you": "PRP", "he": "PRP", "she": "PRP", "it": "PRP", "we": "PRP",
	"they": "PRP", "me": "PRP", "him": "PRP", "us": "PRP", "them": "PRP",
	"my": "PRP$", "your": "PRP$", "his": "PRP$", "its": "PRP$", "our": "PRP$",
	"their": "PRP$", "her": "PRP$",
	"can": "MD", "could": "MD", "will": "MD", "would": "MD", "shall": "MD",
	"should": "MD", "may": "MD", "might": "MD", "must": "MD",
	"to": "TO", "there": "EX",
	"which": "WDT", "who": "WP", "whom": "WP", "what": "WP",
	"when": "WRB", "where": "WRB", "why": "WRB", "how": "WRB",
	"not": "RB", "n't": "RB", "never": "RB", "very": "RB", "also": "RB", "too": "RB",
	"just": "RB", "quite": "RB", "rather": "RB", "often": "RB", "always": "RB",
	"is": "VBZ", "am": "VBP", "are": "VBP", "was": "VBD", "were": "VBD", "be": "VB",
	"been": "VBN", "being": "VBG", "has": "VBZ", "have": "VBP", "had": "VBD",
	"does": "VBZ", "do": "VBP", "did": "VBD",
	"sat": "VBD", "ran": "VBD", "saw": "VBD", "went": "VBD", "came": "VBD",
	"took": "VBD", "made": "VBD", "said": "VBD", "got": "VBD", "gave": "VBD",
	"found": "VBD", "knew": "VBD", "thought": "VBD", "told": "VBD", "became": "VBD",
	"left": "VBD", "felt": "VBD", "began": "VBD", "kept": "VBD", "held": "VBD",
	"stood": "VBD", "wrote": "VBD", "ate": "VBD", "sang": "VBD", "slept": "VBD",
	"seen": "VBN", "gone": "VBN", "taken": "VBN", "given": "VBN", "known": "VBN",
	"written": "VBN", "eaten": "VBN",
	"big": "JJ", "small": "JJ", "good": "JJ", "bad": "JJ", "new": "JJ", "old": "JJ",
	"black": "JJ", "white": "JJ", "red": "JJ", "green": "JJ", "blue": "JJ",
	"happy": "JJ", "little": "JJ", "large": "JJ", "long": "JJ", "great": "JJ",
	"quick": "JJ", "brown": "JJ", "lazy": "JJ", "first": "JJ", "last": "JJ",
	"children": "NNS", "men": "NNS", "women": "NNS", "people": "NNS", "mice": "NNS",
	"feet": "NNS", "teeth": "NNS",
}

var punctuationTags = map[string]string{
	".": ".", "!": ".", "?": ".", ",": ",", ":": ":", ";": ":", "-": ":",
	"(": "-LRB-", ")": "-RRB-", "[": "-LRB-", "]": "-RRB-", "{": "-LRB-", "}": "-RRB-",
	"\"": "''", "'": "''", "“": "``", "”": "''", "‘": "``", "’": "''",
	"$": "$", "#": "#", "%": "NN", "&": "CC",
}

type tagger struct{}

func (tagger) layer() annotation.Layer { return annotation.LayerPOS }

func (tagger) annotate(doc *annotation.Document) {
	for _, s := range doc.Sentences {
		for i := range s.Tokens {
			prev := ""
			if i > 0 {
				prev = s.Tokens[i-1].POS
			}
			s.Tokens[i].POS = tagWord(s.Tokens[i].Word, i == 0, prev)
		}
	}
}

func tagWord(word string, initial bool, prev string) string {
	if word == "" {
		return "SYM"
	}
	if tag, ok := punctuationTags[word]; ok {
		return tag
	}
	lower := strings.ToLower(word)
	if tag, ok := lexicon[lower]; ok {
		if tag == "VBP" && (prev == "TO" || prev == "MD") {
			return "VB"
		}
		return tag
	}
	first := []rune(word)[0]
	switch {
	case unicode.IsDigit(first):
		return "CD"
	case unicode.IsUpper(first) && (!initial || strings.HasSuffix(word, ".")):
		return "NNP"
	case unicode.IsUpper(first):
		// Unknown sentence-initial words are proper nouns unless they look
		// like common-noun plurals.
		if strings.HasSuffix(lower, "s") && !strings.HasSuffix(lower, "ss") {
			return "NNS"
		}
		return "NNP"
	case !unicode.IsLetter(first):
		return "SYM"
	}
	switch {
	case prev == "TO" || prev == "MD":
		return "VB"
	case strings.HasSuffix(lower, "ly"):
		return "RB"
	case strings.HasSuffix(lower, "ing"):
		return "VBG"
	case strings.HasSuffix(lower, "ed"):
		if prev == "VBZ" || prev == "VBP" || prev == "VBD" {
			return "VBN"
		}
		return "VBD"
	case hasAnySuffix(lower, "ous", "ful", "ive", "able", "ible", "al", "ic", "less"):
		return "JJ"
	case (prev == "NNS" || prev == "PRP") && strings.HasSuffix(lower, "s") && !strings.HasSuffix(lower, "ss"):
		return "VBZ"
	case strings.HasSuffix(lower, "s") && !strings.HasSuffix(lower, "ss") && len(lower) > 3:
		return "NNS"
	case prev == "NNS" || prev == "PRP":
		return "VBP"
	}
	return "NN"
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

var irregularLemmas = map[string]string{
	"is": "be", "am": "be", "are": "be", "was": "be", "were": "be", "been": "be", "being": "be",
	"has": "have", "had": "have", "does": "do", "did": "do", "done": "do",
	"sat": "sit", "ran": "run", "saw": "see", "seen": "see", "went": "go", "gone": "go",
	"came": "come", "took": "take", "taken": "take", "made": "make", "said": "say",
	"got": "get", "gave": "give", "given": "give", "found": "find", "knew": "know",
	"known": "know", "thought": "think", "told": "tell", "became": "become",
	"left": "leave", "felt": "feel", "began": "begin", "kept": "keep", "held": "hold",
	"stood": "stand", "wrote": "write", "written": "write", "ate": "eat", "eaten": "eat",
	"sang": "sing", "slept": "sleep",
	"children": "child", "men": "man", "women": "woman", "people": "person",
	"mice": "mouse", "feet": "foot", "teeth": "tooth",
	"n't": "not",
}

// lemmaRule strips suffix and appends replacement when at least minLen
// runes remain.
type lemmaRule struct {
	suffix      string
	replacement string
	minLen      int
}

var (
	pluralRules = []lemmaRule{
		{"ies", "y", 2},
		{"ches", "ch", 2},
		{"shes", "sh", 2},
		{"sses", "ss", 2},
		{"xes", "x", 2},
		{"zes", "z", 2},
		{"ss", "ss", 2},
		{"s", "", 2},
	}
	gerundRules = []lemmaRule{
		{"ying", "y", 1},
		{"ing", "", 2},
	}
	pastRules = []lemmaRule{
		{"ied", "y", 2},
		{"ed", "", 2},
	}
)

type lemmatizer struct{}

func (lemmatizer) layer() annotation.Layer { return annotation.LayerLemma }

func (lemmatizer) annotate(doc *annotation.Document) {
	for _, s := range doc.Sentences {
		for i := range s.Tokens {
			s.Tokens[i].Lemma = lemmatize(s.Tokens[i].Word, s.Tokens[i].POS)
		}
	}
}

func lemmatize(word, pos string) string {
	if pos == "NNP" || pos == "NNPS" {
		return word
	}
	lower := strings.ToLower(word)
	if lemma, ok := irregularLemmas[lower]; ok {
		return lemma
	}
	switch pos {
	case "NNS", "VBZ":
		return applyRules(lower, pluralRules)
	case "VBG":
		return undouble(applyRules(lower, gerundRules))
	case "VBD", "VBN":
		return undouble(applyRules(lower, pastRules))
	}
	return lower
}

func applyRules(word string, rules []lemmaRule) string {
	for _, rule := range rules {
		if strings.HasSuffix(word, rule.suffix) {
			stem := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len([]rune(stem)) >= rule.minLen {
				return stem
			}
		}
	}
	return word
}

// undouble collapses a doubled final consonant left by stripping a verb
// suffix, as in running -> runn -> run.
func undouble(stem string) string {
	n := len(stem)
	if n < 3 || stem[n-1] != stem[n-2] {
		return stem
	}
	switch stem[n-1] {
	case 'l', 's', 'z', 'f', 'e', 'o':
		return stem
	}
	return stem[:n-1]
}

var (
	months = map[string]struct{}{
		"january": {}, "february": {}, "march": {}, "april": {}, "june": {}, "july": {},
		"august": {}, "september": {}, "october": {}, "november": {}, "december": {},
	}
	weekdays = map[string]struct{}{
		"monday": {}, "tuesday": {}, "wednesday": {}, "thursday": {}, "friday": {},
		"saturday": {}, "sunday": {}, "today": {}, "yesterday": {}, "tomorrow": {},
	}
	titles = map[string]struct{}{
		"mr.": {}, "mrs.": {}, "ms.": {}, "dr.": {}, "prof.": {}, "president": {},
	}
	orgSuffixes = map[string]struct{}{
		"inc.": {}, "corp.": {}, "ltd.": {}, "co.": {}, "company": {}, "university": {},
		"corporation": {}, "institute": {}, "bank": {},
	}
	locations = map[string]struct{}{
		"paris": {}, "london": {}, "france": {}, "china": {}, "america": {}, "germany": {},
		"california": {}, "texas": {}, "tokyo": {}, "japan": {}, "india": {}, "europe": {},
		"africa": {}, "asia": {}, "canada": {}, "berlin": {}, "stanford": {},
	}
)

type entityTagger struct{}

func (entityTagger) layer() annotation.Layer { return annotation.LayerNER }

func (entityTagger) annotate(doc *annotation.Document) {
	for _, s := range doc.Sentences {
		tagEntities(s.Tokens)
	}
}

// tagEntities labels numbers, dates, and runs of proper nouns. A proper
// noun run is an ORGANIZATION when it ends in an organization word, a
// PERSON after a title, a LOCATION when it is a known place, and MISC
// otherwise.
func tagEntities(tokens []annotation.Token) {
	for i := range tokens {
		tokens[i].NER = "O"
	}
	for i := 0; i < len(tokens); i++ {
		t := &tokens[i]
		lower := strings.ToLower(t.Word)
		if _, ok := months[lower]; ok && t.POS == "NNP" {
			t.NER = "DATE"
			continue
		}
		if _, ok := weekdays[lower]; ok {
			t.NER = "DATE"
			continue
		}
		if t.POS == "CD" {
			t.NER = "NUMBER"
			continue
		}
		if t.POS != "NNP" {
			continue
		}
		if _, title := titles[lower]; title {
			continue
		}
		j := i
		for j+1 < len(tokens) && tokens[j+1].POS == "NNP" {
			j++
		}
		label := "MISC"
		_, afterTitle := titles[prevWord(tokens, i)]
		_, org := orgSuffixes[strings.ToLower(tokens[j].Word)]
		_, place := locations[lower]
		switch {
		case org:
			label = "ORGANIZATION"
		case afterTitle:
			label = "PERSON"
		case place && i == j:
			label = "LOCATION"
		}
		for k := i; k <= j; k++ {
			tokens[k].NER = label
		}
		i = j
	}
}

func prevWord(tokens []annotation.Token, i int) string {
	if i == 0 {
		return ""
	}
	return strings.ToLower(tokens[i-1].Word)
}
