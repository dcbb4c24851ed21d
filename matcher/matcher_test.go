package matcher

import (
	"testing"

	"github.com/shopspring/decimal"

	"fixspot/models"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestMatch(t *testing.T) {
	catalog := []models.ReportDefinition{
		{ID: "report-1", Name: "Damaged Fire Hydrant", Labels: []string{"Fire Hydrant", "Hydrant"}},
		{ID: "report-2", Name: "Pothole", Labels: []string{"Pothole", "Road", "Asphalt"}},
		{ID: "report-3", Name: "Broken Street Light", Labels: []string{"Street Light"}},
	}

	testCases := []struct {
		name    string
		labels  map[string]decimal.Decimal
		catalog []models.ReportDefinition
		want    map[string]string
	}{
		{
			name: "both hydrant labels sum into one report",
			labels: map[string]decimal.Decimal{
				"Fire Hydrant": dec("95.725"),
				"Hydrant":      dec("95.725"),
			},
			catalog: catalog,
			want:    map[string]string{"report-1": "191.45"},
		},
		{
			name: "labels split across reports",
			labels: map[string]decimal.Decimal{
				"Hydrant": dec("80.5"),
				"Road":    dec("60.25"),
				"Asphalt": dec("55.125"),
			},
			catalog: catalog,
			want: map[string]string{
				"report-1": "80.5",
				"report-2": "115.375",
			},
		},
		{
			name: "unmatched labels contribute nothing",
			labels: map[string]decimal.Decimal{
				"Dog": dec("99.999"),
				"Sky": dec("88.125"),
			},
			catalog: catalog,
			want:    map[string]string{},
		},
		{
			name:    "empty labels",
			labels:  map[string]decimal.Decimal{},
			catalog: catalog,
			want:    map[string]string{},
		},
		{
			name:    "empty catalog",
			labels:  map[string]decimal.Decimal{"Fire Hydrant": dec("95.725")},
			catalog: nil,
			want:    map[string]string{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Match(tc.labels, tc.catalog)
			if len(got) != len(tc.want) {
				t.Fatalf("Match() returned %d reports, want %d: %v", len(got), len(tc.want), got)
			}
			for id, wantScore := range tc.want {
				score, ok := got[id]
				if !ok {
					t.Errorf("Match() missing report %q", id)
					continue
				}
				if !score.Equal(dec(wantScore)) {
					t.Errorf("Match()[%q] = %s, want %s", id, score, wantScore)
				}
			}
		})
	}
}

func TestMatchOnlyCatalogReports(t *testing.T) {
	catalog := []models.ReportDefinition{
		{ID: "report-1", Labels: []string{"Hydrant"}},
	}
	labels := map[string]decimal.Decimal{
		"Hydrant": dec("50"),
		"Fence":   dec("75"),
	}
	got := Match(labels, catalog)
	for id := range got {
		if id != "report-1" {
			t.Errorf("Match() produced id %q not present in catalog", id)
		}
	}
}
