package mapper

import "errors"

// ErrNotFound is never returned by FindByID (which returns a zero *T and
// false instead, per spec.md §4.7's "sentinel not-found value"); it is used
// by operations that have no not-found-tolerant shape of their own, such as
// raw single-row helpers.
var ErrNotFound = errors.New("mapper: record not found")

// ErrNoTransaction is returned by cursor operations invoked without an
// active transaction on the calling context (spec.md §5).
var ErrNoTransaction = errors.New("mapper: no active transaction on this context")
