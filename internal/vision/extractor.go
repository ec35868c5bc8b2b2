// Package vision turns spool photos into structured filament attributes.
package vision

import (
	"context"
	"errors"

	"github.com/angelmondragon/spoolhub-backend/pkg/types"
)

// Extractor reads filament attributes from image bytes. modelHint selects a
// specific model when non-empty. Every failure is an *ExtractionError.
type Extractor interface {
	Extract(ctx context.Context, image []byte, mimeType, modelHint string) (types.ExtractedData, error)
}

// ExtractionError is a per-image failure. Message is safe to show to users.
type ExtractionError struct {
	Message string
	Err     error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func extractionError(message string, err error) *ExtractionError {
	return &ExtractionError{Message: message, Err: err}
}

// UserMessage returns the text recorded on a failed pending upload.
func UserMessage(err error) string {
	var extractionErr *ExtractionError
	if errors.As(err, &extractionErr) && extractionErr.Message != "" {
		return extractionErr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Extraction timed out"
	}
	return "Extraction failed"
}

// Unconfigured fails every call. It stands in when no vision backend is configured.
type Unconfigured struct{}

func (Unconfigured) Extract(context.Context, []byte, string, string) (types.ExtractedData, error) {
	return types.ExtractedData{}, extractionError("Vision extraction is not configured", nil)
}
