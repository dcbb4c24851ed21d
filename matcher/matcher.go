package matcher

import (
	"github.com/shopspring/decimal"

	"fixspot/models"
)

// Match maps vision labels to catalog reports by summing, per report, the
// confidences of every label that appears in that report's label set.
// Reports with no matching label are omitted. Scores are raw sums and may
// exceed 100; ranking happens client-side.
func Match(labels map[string]decimal.Decimal, catalog []models.ReportDefinition) map[string]decimal.Decimal {
	relevant := map[string]decimal.Decimal{}
	for label, confidence := range labels {
		for _, report := range catalog {
			if hasLabel(report.Labels, label) {
				relevant[report.ID] = relevant[report.ID].Add(confidence)
			}
		}
	}
	return relevant
}

func hasLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}
