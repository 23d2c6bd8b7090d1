package rag

import (
	"errors"
	"fmt"
)

// ErrEmptyIndex is returned by Search when the index holds no entries.
var ErrEmptyIndex = errors.New("rag index contains no entries")

// ErrIndexFormat marks persisted index data that failed validation on load.
var ErrIndexFormat = errors.New("invalid rag index format")

// ExtractionError reports a document whose text could not be extracted.
// Ingestion logs it and moves on to the next document.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ProviderError wraps a failed call to the embedding or generation provider.
// Retryable is false for failures that will not go away on their own,
// such as rejected credentials or a malformed request.
type ProviderError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	kind := "fatal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("%s provider error (%s): %v", e.Op, kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// DimensionMismatchError reports a vector whose length differs from the index dimension.
// Index is the position of the offending vector, or -1 for a query vector.
type DimensionMismatchError struct {
	Want  int
	Got   int
	Index int
}

func (e *DimensionMismatchError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("query vector dimension %d does not match index dimension %d", e.Got, e.Want)
	}
	if e.Got == 0 {
		return fmt.Sprintf("vector %d is empty", e.Index)
	}
	return fmt.Sprintf("vector %d has dimension %d, expected %d", e.Index, e.Got, e.Want)
}

// GenerationError wraps a failure of the generation model. Stage names the
// step that failed ("answer" or "coach").
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed during %s: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// IsRetryable reports whether err carries a retryable ProviderError.
func IsRetryable(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Retryable
	}
	return false
}
