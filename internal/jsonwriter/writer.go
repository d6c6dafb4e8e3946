// Package jsonwriter renders nested results as JSON by driving callbacks
// instead of building an intermediate tree. Keys appear in the order Set is
// called, nested objects are written depth-first as their callbacks run,
// and output is pretty-printed with two-space indentation.
package jsonwriter

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"math"

	"github.com/mailru/easyjson/jwriter"
)

// flushThreshold is the buffered size at which Encode hands bytes to its
// destination.
const flushThreshold = 32 << 10

// Writer is one object scope. Set writes a field whose value may be a
// scalar, nil, a nested object callback func(Writer), a slice, a lazy
// iter.Seq[any], or anything encoding/json can marshal.
type Writer interface {
	Set(key string, value any)
}

// Render runs fn against a fresh top-level object and returns the JSON.
func Render(fn func(Writer)) ([]byte, error) {
	e := &encoder{}
	e.object(fn)
	if e.err != nil {
		return nil, e.err
	}
	return e.out.BuildBytes()
}

// Encode streams the object produced by fn to w, flushing as the buffer
// grows. On error w may have received a partial document.
func Encode(w io.Writer, fn func(Writer)) error {
	e := &encoder{sink: w}
	e.object(fn)
	if e.err != nil {
		return e.err
	}
	e.out.RawByte('\n')
	if _, err := e.out.DumpTo(w); err != nil {
		return fmt.Errorf("writing json: %w", err)
	}
	return nil
}

type encoder struct {
	out   jwriter.Writer
	sink  io.Writer
	depth int
	err   error
}

type scope struct {
	enc    *encoder
	fields int
}

func (s *scope) Set(key string, value any) {
	e := s.enc
	if e.err != nil {
		return
	}
	if s.fields > 0 {
		e.out.RawByte(',')
	}
	s.fields++
	e.newline()
	e.out.String(key)
	e.out.RawString(": ")
	e.value(value)
	e.flush()
}

func (e *encoder) object(fn func(Writer)) {
	e.out.RawByte('{')
	e.depth++
	s := &scope{enc: e}
	fn(s)
	e.depth--
	if s.fields > 0 {
		e.newline()
	}
	e.out.RawByte('}')
}

func (e *encoder) list(items iter.Seq[any]) {
	e.out.RawByte('[')
	e.depth++
	n := 0
	for item := range items {
		if e.err != nil {
			break
		}
		if n > 0 {
			e.out.RawByte(',')
		}
		n++
		e.newline()
		e.value(item)
		e.flush()
	}
	e.depth--
	if n > 0 {
		e.newline()
	}
	e.out.RawByte(']')
}

func (e *encoder) value(v any) {
	switch v := v.(type) {
	case nil:
		e.out.RawString("null")
	case string:
		e.out.String(v)
	case bool:
		e.out.Bool(v)
	case int:
		e.out.Int(v)
	case int32:
		e.out.Int32(v)
	case int64:
		e.out.Int64(v)
	case uint:
		e.out.Uint(v)
	case uint32:
		e.out.Uint32(v)
	case uint64:
		e.out.Uint64(v)
	case float32:
		e.float(float64(v))
	case float64:
		e.float(v)
	case func(Writer):
		e.object(v)
	case []func(Writer):
		e.list(sliceSeq(v))
	case []string:
		e.list(sliceSeq(v))
	case []int:
		e.list(sliceSeq(v))
	case []bool:
		e.list(sliceSeq(v))
	case []any:
		e.list(sliceSeq(v))
	case iter.Seq[any]:
		e.list(v)
	case func(func(any) bool):
		e.list(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			e.fail(fmt.Errorf("encoding %T: %w", v, err))
			return
		}
		e.out.Raw(raw, nil)
	}
}

func (e *encoder) float(f float64) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		e.fail(fmt.Errorf("unsupported float value %v", f))
		return
	}
	e.out.Float64(f)
}

func (e *encoder) newline() {
	e.out.RawByte('\n')
	for range e.depth {
		e.out.RawString("  ")
	}
}

func (e *encoder) flush() {
	if e.sink == nil || e.err != nil || e.out.Size() < flushThreshold {
		return
	}
	if _, err := e.out.DumpTo(e.sink); err != nil {
		e.fail(fmt.Errorf("writing json: %w", err))
	}
}

func (e *encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func sliceSeq[T any](items []T) iter.Seq[any] {
	return func(yield func(any) bool) {
		for _, item := range items {
			if !yield(item) {
				return
			}
		}
	}
}
