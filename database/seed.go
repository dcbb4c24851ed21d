package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/apex/log"

	"fixspot/models"
)

// SeedReports loads report definitions from a JSON file into an empty
// catalog. An already-seeded catalog is left untouched so redeploys never
// clobber curated entries.
func (d *Database) SeedReports(ctx context.Context, path string) error {
	var count int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count reports: %w", err)
	}
	if count > 0 {
		log.Debugf("Report catalog already has %d entries, skipping seed", count)
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	var reports []models.ReportDefinition
	if err := json.Unmarshal(data, &reports); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	for _, r := range reports {
		labelsJSON, err := json.Marshal(r.Labels)
		if err != nil {
			return fmt.Errorf("failed to marshal labels for %s: %w", r.ID, err)
		}
		if _, err := d.db.ExecContext(ctx,
			`INSERT INTO reports (id, name, labels) VALUES (?, ?, ?)`,
			r.ID, r.Name, labelsJSON); err != nil {
			return fmt.Errorf("failed to seed report %s: %w", r.ID, err)
		}
		log.Debugf("Seeded report %s (%s)", r.ID, r.Name)
	}
	log.Infof("Seeded %d report definitions", len(reports))
	return nil
}
