// Package flatten converts nested JSON documents into flat, tabular records.
//
// A document is parsed into a Value tree, the entries are pulled out of a
// named top-level array, and each entry is flattened into a Record whose keys
// are the traversed field names and array indices joined by a separator.
package flatten

// Kind identifies which case of the Value variant is populated.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
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
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "unknown"
}

// Member is one key/value pair of an object, in document order.
type Member struct {
	Key   string
	Value Value
}

// Value is a JSON value. The zero Value is null.
type Value struct {
	kind    Kind
	text    string // string content or number literal
	boolean bool
	items   []Value
	members []Member
}

func Null() Value { return Value{} }

func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

// Number keeps the literal exactly as written so serialization round-trips.
func Number(literal string) Value { return Value{kind: KindNumber, text: literal} }

func String(s string) Value { return Value{kind: KindString, text: s} }

func Array(items ...Value) Value { return Value{kind: KindArray, items: items} }

// Object builds an object from members. A repeated key keeps the position of
// its first occurrence and the value of its last.
func Object(members ...Member) Value {
	out := make([]Member, 0, len(members))
	index := make(map[string]int, len(members))
	for _, m := range members {
		if i, ok := index[m.Key]; ok {
			out[i].Value = m.Value
			continue
		}
		index[m.Key] = len(out)
		out = append(out, m)
	}
	return Value{kind: KindObject, members: out}
}

func (v Value) Kind() Kind { return v.kind }

// IsScalar reports whether v is a leaf (null, bool, number or string).
func (v Value) IsScalar() bool { return v.kind != KindArray && v.kind != KindObject }

func (v Value) Text() string { return v.text }

func (v Value) BoolValue() bool { return v.boolean }

func (v Value) Items() []Value { return v.items }

func (v Value) Members() []Member { return v.members }

// Lookup returns the member value for key when v is an object.
func (v Value) Lookup(key string) (Value, bool) {
	for _, m := range v.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// Equal reports deep equality, including member order.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.boolean == o.boolean
	case KindNumber, KindString:
		return v.text == o.text
	case KindArray:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.members) != len(o.members) {
			return false
		}
		for i := range v.members {
			if v.members[i].Key != o.members[i].Key || !v.members[i].Value.Equal(o.members[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// CellText is the tabular rendering of a scalar. Null renders empty.
func (v Value) CellText() string {
	switch v.kind {
	case KindBool:
		if v.BoolValue() {
			return "true"
		}
		return "false"
	case KindNumber, KindString:
		return v.Text()
	}
	return ""
}
