package types

import (
	"errors"
	"fmt"
)

// Document- and archive-fatal failure classes. Field-unresolved is not an
// error at all: it resolves to a default.
var (
	ErrEmptyDocument       = errors.New("empty document")
	ErrMalformedDocument   = errors.New("malformed document")
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
	ErrArchive             = errors.New("unreadable archive")
	ErrArchiveDepth        = errors.New("archive nesting too deep")
	ErrUnsupportedInput    = errors.New("unsupported input file")
)

// DocumentError is the typed per-document failure outcome.
type DocumentError struct {
	Name string
	Err  error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}
