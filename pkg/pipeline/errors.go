package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned by loaders for an unknown format name.
	ErrUnsupportedFormat = errors.New("unsupported data format")
	// ErrInvalidSelection is returned by Run for a malformed exclusion list.
	ErrInvalidSelection = errors.New("invalid selection")
	// ErrNoLoader is returned by Load when the pipeline has no Loader.
	ErrNoLoader = errors.New("no loader configured")
)

// LoadError wraps any failure to retrieve or parse a dataset.
type LoadError struct {
	Path   string
	Format string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s (%s): %v", e.Path, e.Format, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ShapeError reports an operation that received a result of the wrong shape
// while the pipeline runs with strict shapes.
type ShapeError struct {
	Op   string
	Kind string
	Want Shape
	Got  Shape
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s %q expects %s input, got %s", e.Kind, e.Op, e.Want, e.Got)
}
