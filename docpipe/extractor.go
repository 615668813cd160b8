package docpipe

import (
	"context"
	"errors"
	"fmt"
)

// Extractor turns the raw bytes of one document into text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, data []byte) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, data []byte) (string, error) {
	return f(ctx, data)
}

// ErrTooLarge is the cause recorded for sources above Config.MaxFileSize.
var ErrTooLarge = errors.New("file too large")

// ErrNoSources is returned by ExtractAll for an empty input.
var ErrNoSources = errors.New("docpipe: no sources")

// ExtractionError records why a single source produced no text.
// The pipeline never returns it to callers; it becomes a placeholder.
type ExtractionError struct {
	Source string
	Format Format
	Cause  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s (%s): %v", e.Source, e.Format, e.Cause)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }
