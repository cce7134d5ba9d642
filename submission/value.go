package submission

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a JSON-shaped tree: null, bool, number, string, list or map.
// The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	raw  string // original number literal, when known
	s    string
	list []Value
	m    map[string]Value
}

func Null() Value { return Value{} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

func String(s string) Value { return Value{kind: KindString, s: s} }

func List(items ...Value) Value {
	return Value{kind: KindList, list: append([]Value(nil), items...)}
}

// Map copies fields into a new map Value.
func Map(fields map[string]Value) Value {
	m := make(map[string]Value, len(fields))
	for k, v := range fields {
		m[k] = v
	}
	return Value{kind: KindMap, m: m}
}

// Strings is shorthand for a list of string values.
func Strings(items ...string) Value {
	out := make([]Value, 0, len(items))
	for _, s := range items {
		out = append(out, String(s))
	}
	return Value{kind: KindList, list: out}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

func (v Value) AsList() ([]Value, bool) { return v.list, v.kind == KindList }

// Get returns the direct child named key of a map Value.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	child, ok := v.m[key]
	return child, ok
}

// Keys returns the sorted keys of a map Value.
func (v Value) Keys() []string {
	if v.kind != KindMap {
		return nil
	}
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len is the number of children of a list or map, zero otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindMap:
		return len(v.m)
	}
	return 0
}

// Text renders scalars the way a survey export would show them. Lists are
// joined with a single space, the same way Kobo stores select_multiple
// answers. Maps and nulls render as "".
func (v Value) Text() string {
	switch v.kind {
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindNumber:
		if v.raw != "" {
			return v.raw
		}
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindString:
		return v.s
	case KindList:
		parts := make([]string, 0, len(v.list))
		for _, item := range v.list {
			if item.IsNull() {
				continue
			}
			parts = append(parts, item.Text())
		}
		return strings.Join(parts, " ")
	}
	return ""
}

// IsBlank reports whether v is null, a string that is empty after trimming,
// or a list or map without children.
func (v Value) IsBlank() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return strings.TrimSpace(v.s) == ""
	case KindList, KindMap:
		return v.Len() == 0
	}
	return false
}

// With returns a copy of a map Value with key set to child.
func (v Value) With(key string, child Value) Value {
	m := make(map[string]Value, len(v.m)+1)
	for k, c := range v.m {
		m[k] = c
	}
	m[key] = child
	return Value{kind: KindMap, m: m}
}

// ParseJSON decodes a JSON document into a Value. Numbers keep their literal.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, err
	}
	return FromAny(raw)
}

// FromAny converts the output of encoding/json (or a hand built literal made of
// the same shapes) into a Value.
func FromAny(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Value{}, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("number %q: %w", t.String(), err)
		}
		return Value{kind: KindNumber, n: f, raw: t.String()}, nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case []any:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			child, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, child)
		}
		return Value{kind: KindList, list: items}, nil
	case []string:
		return Strings(t...), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			child, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			m[k] = child
		}
		return Value{kind: KindMap, m: m}, nil
	case Value:
		return t, nil
	}
	return Value{}, errors.New("unsupported value type " + fmt.Sprintf("%T", raw))
}

// MustFromAny is FromAny for literals in tests and tables.
func MustFromAny(raw any) Value {
	v, err := FromAny(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// Interface converts back into plain Go values suitable for encoding/json.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		if v.raw != "" {
			return json.Number(v.raw)
		}
		return v.n
	case KindString:
		return v.s
	case KindList:
		out := make([]any, 0, len(v.list))
		for _, item := range v.list {
			out = append(out, item.Interface())
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.Interface()
		}
		return out
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
