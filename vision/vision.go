// Package vision abstracts the external machine-vision service that labels
// uploaded images.
package vision

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrUnrecognizedImage is returned when the service rejects the payload as
// not being a recognizable image. This is a terminal failure for the upload;
// no submission record may be written.
var ErrUnrecognizedImage = errors.New("vision: unrecognized image format")

// Label is one detected concept with its confidence score (0-100,
// quantized to three decimals).
type Label struct {
	Name       string
	Confidence decimal.Decimal
}

// Client detects labels on raw image bytes.
// Implementations must be concurrency-safe if used across goroutines.
type Client interface {
	DetectLabels(ctx context.Context, imageData []byte) ([]Label, error)
	// SourceName returns a short provider label for logging.
	SourceName() string
}

// ToMap converts a label sequence into the label -> confidence mapping
// persisted on a submission. Duplicate names keep the last value.
func ToMap(labels []Label) map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal, len(labels))
	for _, l := range labels {
		m[l.Name] = l.Confidence
	}
	return m
}
