package flatten

import (
	"encoding/json"
	"fmt"

	"github.com/buger/jsonparser"
)

// DefaultMaxDepth bounds container nesting for both parsing and flattening.
const DefaultMaxDepth = 512

// Parse decodes a JSON document into a Value, keeping object members in
// document order. Containers nested deeper than maxDepth yield
// ErrRecursionLimit; maxDepth <= 0 means DefaultMaxDepth.
func Parse(data []byte, maxDepth int) (Value, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	// jsonparser is lenient about trailing garbage and some syntax errors.
	if !json.Valid(data) {
		return Value{}, fmt.Errorf("%w: invalid JSON", ErrMalformedDocument)
	}
	raw, dataType, _, err := jsonparser.Get(data)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	p := parser{maxDepth: maxDepth}
	return p.value(raw, dataType, 0)
}

type parser struct {
	maxDepth int
}

func (p parser) value(raw []byte, dataType jsonparser.ValueType, depth int) (Value, error) {
	switch dataType {
	case jsonparser.Null:
		return Null(), nil
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(raw)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
		return Bool(b), nil
	case jsonparser.Number:
		return Number(string(raw)), nil
	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
		return String(s), nil
	case jsonparser.Array:
		if depth >= p.maxDepth {
			return Value{}, fmt.Errorf("%w at depth %d", ErrRecursionLimit, depth)
		}
		return p.array(raw, depth)
	case jsonparser.Object:
		if depth >= p.maxDepth {
			return Value{}, fmt.Errorf("%w at depth %d", ErrRecursionLimit, depth)
		}
		return p.object(raw, depth)
	}
	return Value{}, fmt.Errorf("%w: unexpected value type %s", ErrMalformedDocument, dataType)
}

func (p parser) array(raw []byte, depth int) (Value, error) {
	var (
		items    []Value
		innerErr error
	)
	_, err := jsonparser.ArrayEach(raw, func(elem []byte, dataType jsonparser.ValueType, _ int, err error) {
		if innerErr != nil {
			return
		}
		if err != nil {
			innerErr = fmt.Errorf("%w: %v", ErrMalformedDocument, err)
			return
		}
		v, err := p.value(elem, dataType, depth+1)
		if err != nil {
			innerErr = err
			return
		}
		items = append(items, v)
	})
	if innerErr != nil {
		return Value{}, innerErr
	}
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return Array(items...), nil
}

func (p parser) object(raw []byte, depth int) (Value, error) {
	var members []Member
	err := jsonparser.ObjectEach(raw, func(key []byte, elem []byte, dataType jsonparser.ValueType, _ int) error {
		v, err := p.value(elem, dataType, depth+1)
		if err != nil {
			return err
		}
		members = append(members, Member{Key: string(key), Value: v})
		return nil
	})
	if err != nil {
		if isMalformed(err) {
			return Value{}, err
		}
		return Value{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return Object(members...), nil
}
