package props

import (
	"encoding/json"
	"net/url"
	"strings"
	"unicode"

	"github.com/dongwandou/CoreNLP/internal/capability"
	apperrors "github.com/dongwandou/CoreNLP/pkg/errors"
)

const (
	paramProperties = "properties"
	paramProps      = "props"
)

// Placeholders for escaped separators. They use code points that
// percent-decoding can never produce from ASCII input.
const (
	ampHolder  = "\uE000"
	plusHolder = "\uE001"
)

// ParseQuery splits a raw query string into its fields. A backslash before
// '&' or '+' makes the character literal; everything else follows ordinary
// form decoding. A later duplicate key overwrites an earlier one.
func ParseQuery(rawQuery string) (map[string]string, error) {
	params := make(map[string]string)
	protected := strings.NewReplacer(`\&`, ampHolder, `\+`, plusHolder).Replace(rawQuery)
	for field := range strings.SplitSeq(protected, "&") {
		if field == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(field, "=")
		key, err := unescape(rawKey)
		if err != nil {
			return nil, err
		}
		value, err := unescape(rawValue)
		if err != nil {
			return nil, err
		}
		params[key] = value
	}
	return params, nil
}

var restore = strings.NewReplacer(ampHolder, "&", plusHolder, "+")

func unescape(s string) (string, error) {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return "", apperrors.Invalidf(apperrors.ErrInvalidInput, "malformed query parameter %q: %v", s, err)
	}
	return restore.Replace(decoded), nil
}

// DecodeMap parses a self-delimited map such as
// {"annotators": "tokenize,ssplit", outputFormat=json}. Keys and values may
// be bare or double-quoted; inside quotes a backslash escapes the next
// character. A JSON object with string, number, or boolean values is
// accepted as well.
func DecodeMap(s string) (map[string]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return map[string]string{}, nil
	}
	if m, ok := decodeJSON(s); ok {
		return m, nil
	}
	d := &mapDecoder{src: []rune(s)}
	m, err := d.decode()
	if err != nil {
		return nil, apperrors.Invalidf(apperrors.ErrInvalidInput, "could not parse properties %q: %v", s, err)
	}
	return m, nil
}

func decodeJSON(s string) (map[string]string, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, false
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch v := v.(type) {
		case string:
			out[k] = v
		case bool, float64, nil:
			b, _ := json.Marshal(v)
			out[k] = string(b)
		default:
			return nil, false
		}
	}
	return out, true
}

type mapDecoder struct {
	src []rune
	pos int
}

type syntaxError string

func (e syntaxError) Error() string { return string(e) }

func (d *mapDecoder) decode() (map[string]string, error) {
	out := make(map[string]string)
	d.skipSpace()
	braced := d.peek() == '{'
	if braced {
		d.pos++
	}
	for {
		d.skipSpace()
		if d.eof() {
			if braced {
				return nil, syntaxError("missing closing brace")
			}
			return out, nil
		}
		if braced && d.peek() == '}' {
			d.pos++
			d.skipSpace()
			if !d.eof() {
				return nil, syntaxError("trailing characters after closing brace")
			}
			return out, nil
		}
		key, err := d.token(":=")
		if err != nil {
			return nil, err
		}
		if key == "" {
			return nil, syntaxError("empty key")
		}
		d.skipSpace()
		if c := d.peek(); c != ':' && c != '=' {
			return nil, syntaxError("expected ':' or '=' after key " + key)
		}
		d.pos++
		d.skipSpace()
		quoted := d.peek() == '"'
		value, err := d.token(",}")
		if err != nil {
			return nil, err
		}
		// A bare list value such as tokenize,ssplit keeps its commas until
		// the next key.
		for !quoted && d.peek() == ',' && !d.pairAhead() {
			d.pos++
			more, _ := d.token(",}")
			value += "," + more
		}
		out[key] = value
		d.skipSpace()
		if d.peek() == ',' {
			d.pos++
		}
	}
}

// token reads a quoted string, or a bare run up to one of stops. Bare
// tokens are trimmed.
func (d *mapDecoder) token(stops string) (string, error) {
	if d.peek() == '"' {
		d.pos++
		var b strings.Builder
		for !d.eof() {
			c := d.src[d.pos]
			d.pos++
			switch c {
			case '\\':
				if d.eof() {
					return "", syntaxError("dangling escape")
				}
				b.WriteRune(d.src[d.pos])
				d.pos++
			case '"':
				return b.String(), nil
			default:
				b.WriteRune(c)
			}
		}
		return "", syntaxError("unterminated quoted string")
	}
	start := d.pos
	for !d.eof() && !strings.ContainsRune(stops, d.src[d.pos]) {
		d.pos++
	}
	return strings.TrimSpace(string(d.src[start:d.pos])), nil
}

// pairAhead reports whether the text after the comma at pos starts a new
// key/value pair or ends the map.
func (d *mapDecoder) pairAhead() bool {
	blank := true
	for i := d.pos + 1; i < len(d.src); i++ {
		switch c := d.src[i]; {
		case c == ':' || c == '=' || c == '"':
			return true
		case c == ',' || c == '}':
			return blank
		case !unicode.IsSpace(c):
			blank = false
		}
	}
	return blank
}

func (d *mapDecoder) peek() rune {
	if d.eof() {
		return 0
	}
	return d.src[d.pos]
}

func (d *mapDecoder) eof() bool { return d.pos >= len(d.src) }

func (d *mapDecoder) skipSpace() {
	for !d.eof() && unicode.IsSpace(d.src[d.pos]) {
		d.pos++
	}
}

// Resolve layers the request's properties blob over defaults, then fixed
// over both, and rewrites the annotator list to its prerequisite-closed
// form. The blob is taken from "properties", or from "props" when
// "properties" is absent.
func Resolve(defaults Properties, params map[string]string, reg *capability.Registry, fixed ...Properties) (Properties, error) {
	out := defaults.Clone()
	blob, ok := params[paramProperties]
	if !ok {
		blob, ok = params[paramProps]
	}
	if ok {
		decoded, err := url.PathUnescape(blob)
		if err != nil {
			// Already decoded once by ParseQuery; a stray '%' is literal.
			decoded = blob
		}
		overrides, err := DecodeMap(decoded)
		if err != nil {
			return Properties{}, err
		}
		out = out.Merge(FromMap(overrides))
	}
	for _, f := range fixed {
		out = out.Merge(f)
	}
	if list, ok := out.Lookup(KeyAnnotators); ok {
		closed, err := reg.Expand(list)
		if err != nil {
			return Properties{}, err
		}
		out.Set(KeyAnnotators, closed)
	}
	return out, nil
}
