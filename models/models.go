package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// Scores and coordinates go over the wire as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// SubmissionState is the lifecycle state of a submission. States only move
// forward: pending -> submitted -> resolved.
type SubmissionState string

const (
	StatePending   SubmissionState = "pending"
	StateSubmitted SubmissionState = "submitted"
	StateResolved  SubmissionState = "resolved"
)

// ParseSubmissionState validates a state filter value coming from a client.
func ParseSubmissionState(s string) (SubmissionState, bool) {
	switch SubmissionState(s) {
	case StatePending, StateSubmitted, StateResolved:
		return SubmissionState(s), true
	}
	return "", false
}

// ReportDefinition is one catalog entry describing a reportable issue type
// and the vision-label vocabulary that maps to it. Seeded once, never mutated.
type ReportDefinition struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Labels []string `json:"labels"`
}

// ReportEntry is the per-report value in the GET /reports response map.
type ReportEntry struct {
	Name   string   `json:"name"`
	Labels []string `json:"labels"`
}

// Coordinates is a (latitude, longitude) pair in decimal degrees,
// 15-decimal precision.
type Coordinates struct {
	Latitude  decimal.Decimal `json:"latitude"`
	Longitude decimal.Decimal `json:"longitude"`
}

// Submission is one reported issue tied to an uploaded photo.
//
// The state column is exposed to clients as "status"; the two names are
// deliberately distinct.
type Submission struct {
	ID                 string                     `json:"id"`
	State              SubmissionState            `json:"status"`
	MLLabels           map[string]decimal.Decimal `json:"ml_labels"`
	RelevantReports    map[string]decimal.Decimal `json:"relevant_reports"`
	CoordsImage        Coordinates                `json:"coords_image"`
	CoordsBrowser      Coordinates                `json:"coords_browser"`
	SelectedReports    []string                   `json:"selected_reports"`
	TimestampSubmitted string                     `json:"timestamp_submitted,omitempty"`
	TimestampResolved  string                     `json:"timestamp_resolved,omitempty"`
}

// PatchCoords carries optional client coordinates on a submit action.
// Pointers distinguish "absent" from zero; a partial pair is treated as absent.
type PatchCoords struct {
	Latitude  *decimal.Decimal `json:"latitude"`
	Longitude *decimal.Decimal `json:"longitude"`
}

// PatchRequest is the body of PATCH /submission/:id.
type PatchRequest struct {
	Action          string       `json:"action"`
	SelectedReports []string     `json:"selected_reports"`
	Coords          *PatchCoords `json:"coords"`
}

// ValidSubmissionID reports whether id is a canonical 36-character UUIDv4.
// uuid.Parse alone also accepts URN and braced variants, which are not
// valid submission ids.
func ValidSubmissionID(id string) bool {
	if len(id) != 36 {
		return false
	}
	u, err := uuid.Parse(id)
	return err == nil && u.Version() == 4
}

// timestampLayout is ISO-8601 UTC with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp formats t the way submission timestamps are stored and served.
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
