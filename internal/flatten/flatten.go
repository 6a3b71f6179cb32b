package flatten

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultSeparator joins path segments into a column key.
const DefaultSeparator = "_"

var newlineStripper = strings.NewReplacer("\r\n", "", "\n", "", "\r", "")

// Record is the flat mapping produced from one entry. Keys are kept in the
// order they were first produced by a pre-order traversal.
type Record struct {
	keys   []string
	values map[string]Value
}

func (r Record) Keys() []string { return r.keys }

func (r Record) Len() int { return len(r.keys) }

func (r Record) Get(key string) (Value, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Map returns a copy of the record as a plain map.
func (r Record) Map() map[string]Value {
	out := make(map[string]Value, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Flattener turns nested entries into Records. The zero value uses
// DefaultSeparator and DefaultMaxDepth.
type Flattener struct {
	Separator string
	MaxDepth  int
}

func (f Flattener) separator() string {
	if f.Separator == "" {
		return DefaultSeparator
	}
	return f.Separator
}

func (f Flattener) maxDepth() int {
	if f.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return f.MaxDepth
}

// Flatten walks entry depth-first. Objects extend the path with each member
// key, arrays with the zero-based index, and every scalar is recorded under
// the accumulated path. Empty containers contribute nothing; nulls are kept.
func (f Flattener) Flatten(entry Value) (Record, error) {
	w := walker{
		sep:      f.separator(),
		maxDepth: f.maxDepth(),
		rec:      Record{values: make(map[string]Value)},
	}
	if err := w.walk(entry, "", 0); err != nil {
		return Record{}, err
	}
	return w.rec, nil
}

type walker struct {
	sep      string
	maxDepth int
	rec      Record
}

func (w *walker) walk(v Value, prefix string, depth int) error {
	if v.IsScalar() {
		if v.Kind() == KindString {
			v = String(newlineStripper.Replace(v.Text()))
		}
		return w.put(prefix, v)
	}
	if depth >= w.maxDepth {
		return fmt.Errorf("%w at %q", ErrRecursionLimit, w.key(prefix))
	}
	if v.Kind() == KindArray {
		for i, item := range v.Items() {
			if err := w.walk(item, prefix+strconv.Itoa(i)+w.sep, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	for _, m := range v.Members() {
		if err := w.walk(m.Value, prefix+m.Key+w.sep, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) key(prefix string) string {
	return strings.TrimSuffix(prefix, w.sep)
}

func (w *walker) put(prefix string, v Value) error {
	k := w.key(prefix)
	if _, dup := w.rec.values[k]; dup {
		return fmt.Errorf("%w on column %q", ErrKeyCollision, k)
	}
	w.rec.keys = append(w.rec.keys, k)
	w.rec.values[k] = v
	return nil
}

// Table is a set of flattened rows sharing one column schema.
type Table struct {
	Columns []string
	Rows    []Record
}

// FlattenTable flattens each entry independently and derives the column
// union in first-seen order.
func (f Flattener) FlattenTable(entries []Value) (*Table, error) {
	t := &Table{Rows: make([]Record, 0, len(entries))}
	seen := make(map[string]struct{})
	for i, entry := range entries {
		rec, err := f.Flatten(entry)
		if err != nil {
			return nil, &EntryError{Index: i, Err: err}
		}
		for _, k := range rec.Keys() {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			t.Columns = append(t.Columns, k)
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}
