package embedder

import (
	"errors"
	"fmt"

	"logoembed/pkg/document"
)

var (
	// ErrNotFound matches every *NotFoundError.
	ErrNotFound = errors.New("not found")
	// ErrStale is returned by Verify when the embedded logo does not match the image.
	ErrStale = errors.New("embedded logo is stale")
)

// NotFoundError reports a missing image or config file.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: file not found", e.Path)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func (e *NotFoundError) Unwrap() error { return e.Err }

// ParseError reports a config file that is not valid JSON.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StructureError reports a config file whose top-level value is not an object.
type StructureError struct {
	Path string
	Kind document.Kind
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("%s: top-level JSON value is %s, want object", e.Path, e.Kind)
}

// IOError reports any other read or write failure.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
