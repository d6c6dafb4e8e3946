// Package props decodes per-request annotation settings from the query
// string and layers them over the service defaults.
package props

import (
	"maps"
	"slices"
	"strings"
)

// Well-known keys.
const (
	KeyAnnotators   = "annotators"
	KeyInputFormat  = "inputFormat"
	KeyOutputFormat = "outputFormat"
)

// Properties is an ordered string mapping. Insertion order is kept for
// display; equality and Key ignore it.
type Properties struct {
	keys   []string
	values map[string]string
}

// New builds Properties from alternating key, value arguments.
func New(kv ...string) Properties {
	var p Properties
	for i := 0; i+1 < len(kv); i += 2 {
		p.Set(kv[i], kv[i+1])
	}
	return p
}

// FromMap builds Properties from m in sorted key order.
func FromMap(m map[string]string) Properties {
	var p Properties
	for _, k := range slices.Sorted(maps.Keys(m)) {
		p.Set(k, m[k])
	}
	return p
}

func (p *Properties) Set(key, value string) {
	if p.values == nil {
		p.values = make(map[string]string)
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

func (p Properties) Get(key string) string {
	return p.values[key]
}

func (p Properties) Lookup(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

// GetDefault returns the value for key, or def when key is unset.
func (p Properties) GetDefault(key, def string) string {
	if v, ok := p.values[key]; ok {
		return v
	}
	return def
}

func (p Properties) Len() int {
	return len(p.keys)
}

// Keys returns the keys in insertion order.
func (p Properties) Keys() []string {
	return slices.Clone(p.keys)
}

// Clone returns an independent copy.
func (p Properties) Clone() Properties {
	return Properties{keys: slices.Clone(p.keys), values: maps.Clone(p.values)}
}

// Merge returns a copy of p with every entry of over applied on top.
func (p Properties) Merge(over Properties) Properties {
	out := p.Clone()
	for _, k := range over.keys {
		out.Set(k, over.values[k])
	}
	return out
}

// Equal reports whether p and o hold the same key/value pairs.
func (p Properties) Equal(o Properties) bool {
	return maps.Equal(p.values, o.values)
}

// Key returns a canonical encoding of p: entries sorted by key, with
// separators escaped. Equal properties always produce the same key.
func (p Properties) Key() string {
	var b strings.Builder
	for i, k := range slices.Sorted(maps.Keys(p.values)) {
		if i > 0 {
			b.WriteByte(';')
		}
		writeEscaped(&b, k)
		b.WriteByte('=')
		writeEscaped(&b, p.values[k])
	}
	return b.String()
}

func (p Properties) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(p.values[k])
	}
	b.WriteByte('}')
	return b.String()
}

func writeEscaped(b *strings.Builder, s string) {
	for _, r := range s {
		switch r {
		case '\\', ';', '=':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
}
