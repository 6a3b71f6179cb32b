package flatten

import "fmt"

// DefaultEntryField is the top-level field holding the entries of a bundle.
const DefaultEntryField = "entry"

// EntryNesting is how many containers sit above an entry: the root object
// and the entry array. Parsing a document with maxDepth+EntryNesting gives
// each entry the same depth allowance a Flattener with maxDepth does.
const EntryNesting = 2

// ExtractEntries returns the elements of the array stored under field in the
// document root.
func ExtractEntries(doc Value, field string) ([]Value, error) {
	if field == "" {
		field = DefaultEntryField
	}
	if doc.Kind() != KindObject {
		return nil, fmt.Errorf("%w: document root is %s, want object", ErrMalformedDocument, doc.Kind())
	}
	v, ok := doc.Lookup(field)
	if !ok {
		return nil, fmt.Errorf("%w: field %q not found", ErrMalformedDocument, field)
	}
	if v.Kind() != KindArray {
		return nil, fmt.Errorf("%w: field %q is %s, want array", ErrMalformedDocument, field, v.Kind())
	}
	return v.Items(), nil
}
