package flatten

import (
	"errors"
	"fmt"
)

// ErrMalformedDocument is returned when a document cannot be parsed, lacks
// its entries field, or cannot be flattened into unambiguous columns.
var ErrMalformedDocument = errors.New("malformed document")

// ErrRecursionLimit is returned when nesting exceeds the configured depth.
// It matches ErrMalformedDocument under errors.Is.
var ErrRecursionLimit = fmt.Errorf("%w: recursion limit exceeded", ErrMalformedDocument)

// ErrKeyCollision is returned when two different paths join to the same key,
// e.g. {"a_b": 1, "a": {"b": 2}} with separator "_".
var ErrKeyCollision = fmt.Errorf("%w: key collision", ErrMalformedDocument)

// EntryError identifies the entry of a table that failed to flatten.
type EntryError struct {
	Index int
	Err   error
}

func (e *EntryError) Error() string { return fmt.Sprintf("entry %d: %v", e.Index, e.Err) }

func (e *EntryError) Unwrap() error { return e.Err }

func isMalformed(err error) bool {
	return errors.Is(err, ErrMalformedDocument)
}
