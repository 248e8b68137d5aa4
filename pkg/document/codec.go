package document

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
)

// IndentWidth is the number of spaces used per nesting level by Encode.
const IndentWidth = 2

var api = jsoniter.Config{
	IndentionStep: IndentWidth,
	EscapeHTML:    false,
}.Froze()

// SyntaxError reports input that is not a single valid JSON value.
type SyntaxError struct {
	Err error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid JSON: %v", e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// Parse decodes data into a Value. Object key order is preserved; when a key
// repeats, the last value wins and the key keeps its first position.
func Parse(data []byte) (Value, error) {
	if !utf8.Valid(data) {
		return Value{}, &SyntaxError{Err: errors.New("input is not valid UTF-8")}
	}

	iter := api.BorrowIterator(data)
	defer api.ReturnIterator(iter)

	v := readValue(iter)
	if err := iterError(iter); err != nil {
		return Value{}, &SyntaxError{Err: err}
	}
	if iter.WhatIsNext() != jsoniter.InvalidValue || iter.Error != io.EOF {
		return Value{}, &SyntaxError{Err: errors.New("unexpected data after top-level value")}
	}
	return v, nil
}

func iterError(iter *jsoniter.Iterator) error {
	if iter.Error == nil || iter.Error == io.EOF {
		return nil
	}
	return iter.Error
}

func readValue(iter *jsoniter.Iterator) Value {
	switch iter.WhatIsNext() {
	case jsoniter.NilValue:
		iter.ReadNil()
		return NullValue()
	case jsoniter.BoolValue:
		return BoolValue(iter.ReadBool())
	case jsoniter.NumberValue:
		literal := string(iter.ReadNumber())
		if iterError(iter) == nil && !validNumber(literal) {
			iter.ReportError("ReadNumber", fmt.Sprintf("invalid number literal %q", literal))
		}
		return NumberValue(literal)
	case jsoniter.StringValue:
		return readString(iter)
	case jsoniter.ArrayValue:
		items := []Value{}
		iter.ReadArrayCB(func(it *jsoniter.Iterator) bool {
			items = append(items, readValue(it))
			return iterError(it) == nil
		})
		return ArrayValue(items...)
	case jsoniter.ObjectValue:
		m := NewMap()
		iter.ReadMapCB(func(it *jsoniter.Iterator, key string) bool {
			m.Set(key, readValue(it))
			return iterError(it) == nil
		})
		return ObjectValue(m)
	default:
		iter.ReportError("ReadValue", "expected a JSON value")
		return Value{}
	}
}

// readString decodes the next string and keeps its quoted source text, so
// escapes the decoder would normalise (lone surrogates, \u0041) survive Encode.
func readString(iter *jsoniter.Iterator) Value {
	literal := iter.SkipAndReturnBytes()
	if iterError(iter) != nil {
		return Value{}
	}
	sub := api.BorrowIterator(literal)
	defer api.ReturnIterator(sub)
	s := sub.ReadString()
	if err := iterError(sub); err != nil {
		iter.ReportError("ReadString", err.Error())
		return Value{}
	}
	return parsedString(s, string(literal))
}

// validNumber checks literal against the JSON number grammar. The iterator
// only collects number characters, it does not validate their arrangement.
func validNumber(literal string) bool {
	i, n := 0, len(literal)
	if i < n && literal[i] == '-' {
		i++
	}
	switch {
	case i < n && literal[i] == '0':
		i++
	case i < n && literal[i] >= '1' && literal[i] <= '9':
		for i < n && isDigit(literal[i]) {
			i++
		}
	default:
		return false
	}
	if i < n && literal[i] == '.' {
		i++
		start := i
		for i < n && isDigit(literal[i]) {
			i++
		}
		if i == start {
			return false
		}
	}
	if i < n && (literal[i] == 'e' || literal[i] == 'E') {
		i++
		if i < n && (literal[i] == '+' || literal[i] == '-') {
			i++
		}
		start := i
		for i < n && isDigit(literal[i]) {
			i++
		}
		if i == start {
			return false
		}
	}
	return i == n
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// Encode renders v as JSON indented by IndentWidth spaces, followed by a
// newline. Output is deterministic for a given Value.
func Encode(v Value) ([]byte, error) {
	stream := api.BorrowStream(nil)
	defer api.ReturnStream(stream)

	writeValue(stream, v)
	if stream.Error != nil {
		return nil, fmt.Errorf("encode document: %w", stream.Error)
	}

	buf := stream.Buffer()
	out := make([]byte, len(buf), len(buf)+1)
	copy(out, buf)
	return append(out, '\n'), nil
}

func writeValue(stream *jsoniter.Stream, v Value) {
	switch v.kind {
	case Null:
		stream.WriteNil()
	case Bool:
		stream.WriteBool(v.b)
	case Number:
		stream.WriteRaw(v.s)
	case String:
		if v.raw != "" {
			stream.WriteRaw(v.raw)
			return
		}
		stream.WriteString(v.s)
	case Array:
		if len(v.items) == 0 {
			stream.WriteEmptyArray()
			return
		}
		stream.WriteArrayStart()
		for i, item := range v.items {
			if i > 0 {
				stream.WriteMore()
			}
			writeValue(stream, item)
		}
		stream.WriteArrayEnd()
	case Object:
		if v.obj == nil || v.obj.Len() == 0 {
			stream.WriteEmptyObject()
			return
		}
		stream.WriteObjectStart()
		for i, key := range v.obj.keys {
			if i > 0 {
				stream.WriteMore()
			}
			stream.WriteObjectField(key)
			writeValue(stream, v.obj.values[key])
		}
		stream.WriteObjectEnd()
	}
}
