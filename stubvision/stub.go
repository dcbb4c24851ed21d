// Package stubvision is a deterministic, no-network vision client for local
// end-to-end runs and tests.
package stubvision

import (
	"context"

	"github.com/shopspring/decimal"

	"fixspot/vision"
)

// Client always detects the same label set so the full ingest pipeline
// (matcher + DB writes) can be exercised without the external service.
type Client struct {
	Labels []vision.Label
	Err    error
}

// NewClient returns a stub that reports a fire hydrant with high confidence.
func NewClient() *Client {
	return &Client{
		Labels: []vision.Label{
			{Name: "Fire Hydrant", Confidence: decimal.RequireFromString("95.725")},
			{Name: "Hydrant", Confidence: decimal.RequireFromString("95.725")},
		},
	}
}

func (c *Client) SourceName() string { return "stub" }

func (c *Client) DetectLabels(ctx context.Context, imageData []byte) ([]vision.Label, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Labels, nil
}
