package document

import "fmt"

// Kind identifies the JSON type held by a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a JSON value. The zero Value is null.
//
// Numbers and parsed strings keep the literal text they were read from so
// that values the caller never touches encode back unchanged.
type Value struct {
	kind  Kind
	b     bool
	s     string
	raw   string
	items []Value
	obj   *Map
}

// NullValue returns a JSON null.
func NullValue() Value { return Value{} }

// BoolValue wraps b.
func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }

// NumberValue wraps a JSON number literal such as "1", "-0.5" or "1e10".
// The literal is not validated here; Parse only produces valid literals.
func NumberValue(literal string) Value { return Value{kind: Number, s: literal} }

// StringValue wraps s.
func StringValue(s string) Value { return Value{kind: String, s: s} }

// parsedString keeps the quoted source literal of a decoded string.
func parsedString(s, literal string) Value { return Value{kind: String, s: s, raw: literal} }

// ArrayValue wraps items.
func ArrayValue(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: Array, items: items}
}

// ObjectValue wraps m. A nil map becomes an empty object.
func ObjectValue(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{kind: Object, obj: m}
}

// Kind reports the JSON type of v.
func (v Value) Kind() Kind { return v.kind }

// Bool returns the boolean held by v.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == Bool }

// Number returns the number literal held by v.
func (v Value) Number() (string, bool) {
	if v.kind != Number {
		return "", false
	}
	return v.s, true
}

// Str returns the string held by v.
func (v Value) Str() (string, bool) {
	if v.kind != String {
		return "", false
	}
	return v.s, true
}

// Items returns the elements of an array value.
func (v Value) Items() ([]Value, bool) {
	if v.kind != Array {
		return nil, false
	}
	return v.items, true
}

// Map returns the object held by v. Mutating it mutates v.
func (v Value) Map() (*Map, bool) {
	if v.kind != Object {
		return nil, false
	}
	return v.obj, true
}

// Equal reports whether v and other hold the same JSON value. Numbers compare
// by literal and objects compare including key order.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case Null:
		return true
	case Bool:
		return v.b == other.b
	case Number, String:
		return v.s == other.s
	case Array:
		if len(v.items) != len(other.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(other.items[i]) {
				return false
			}
		}
		return true
	case Object:
		return v.obj.Equal(other.obj)
	}
	return false
}

// Map is a JSON object that remembers the order keys were first inserted.
type Map struct {
	keys   []string
	values map[string]Value
}

// NewMap returns an empty object.
func NewMap() *Map {
	return &Map{values: map[string]Value{}}
}

// Len returns the number of keys.
func (m *Map) Len() int { return len(m.keys) }

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (Value, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Set stores v under key. An existing key keeps its position; a new key is
// appended.
func (m *Map) Set(key string, v Value) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Equal reports whether both objects hold the same keys, in the same order,
// with equal values.
func (m *Map) Equal(other *Map) bool {
	if m == nil || other == nil {
		return m == other
	}
	if len(m.keys) != len(other.keys) {
		return false
	}
	for i, key := range m.keys {
		if other.keys[i] != key {
			return false
		}
		if !m.values[key].Equal(other.values[key]) {
			return false
		}
	}
	return true
}
