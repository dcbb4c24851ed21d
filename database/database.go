// Package database persists report definitions and submissions in MySQL.
//
// Submission transitions are single conditional UPDATEs: the statement
// matches only an existing record in a transitionable state, so concurrent
// transitions cannot race into a partial field set and a transition can
// never resurrect a missing record.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"fixspot/config"
	"fixspot/models"
)

// ErrNotFound is returned when a lookup or conditional transition matches no
// record.
var ErrNotFound = errors.New("database: record not found")

// Database handles all database operations.
type Database struct {
	db *sql.DB
}

// NewDatabase creates a new database connection.
//
// clientFoundRows makes UPDATE row counts report matched rows instead of
// changed rows; the conditional transitions depend on that to tell "not
// found" apart from "no column changed value".
func NewDatabase(cfg *config.Config) (*Database, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&clientFoundRows=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	log.Infof("Database connected to %s:%s/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)
	return &Database{db: db}, nil
}

// NewFromDB wraps an existing connection. Used by tests.
func NewFromDB(db *sql.DB) *Database {
	return &Database{db: db}
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// EnsureTables creates the reports and submissions tables if they don't exist.
func (d *Database) EnsureTables(ctx context.Context) error {
	reports := `
		CREATE TABLE IF NOT EXISTS reports (
			id VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL,
			labels JSON NOT NULL,
			PRIMARY KEY (id)
		)
	`
	if _, err := d.db.ExecContext(ctx, reports); err != nil {
		return fmt.Errorf("failed to create reports table: %w", err)
	}

	submissions := `
		CREATE TABLE IF NOT EXISTS submissions (
			id CHAR(36) NOT NULL,
			state ENUM('pending', 'submitted', 'resolved') NOT NULL DEFAULT 'pending',
			ml_labels JSON,
			relevant_reports JSON,
			coords_image_lat DECIMAL(18,15) NOT NULL DEFAULT 0,
			coords_image_lon DECIMAL(18,15) NOT NULL DEFAULT 0,
			coords_browser_lat DECIMAL(18,15) NOT NULL DEFAULT 0,
			coords_browser_lon DECIMAL(18,15) NOT NULL DEFAULT 0,
			selected_reports JSON,
			timestamp_submitted CHAR(24),
			timestamp_resolved CHAR(24),
			PRIMARY KEY (id),
			INDEX state_index (state)
		)
	`
	if _, err := d.db.ExecContext(ctx, submissions); err != nil {
		return fmt.Errorf("failed to create submissions table: %w", err)
	}

	log.Debug("Database tables ensured")
	return nil
}

// GetReports returns the full report catalog.
func (d *Database) GetReports(ctx context.Context) ([]models.ReportDefinition, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, name, labels FROM reports ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []models.ReportDefinition
	for rows.Next() {
		var r models.ReportDefinition
		var labelsJSON []byte
		if err := rows.Scan(&r.ID, &r.Name, &labelsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		if err := json.Unmarshal(labelsJSON, &r.Labels); err != nil {
			return nil, fmt.Errorf("failed to parse labels for report %s: %w", r.ID, err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// ClassifySubmission records the classification outcome for a freshly
// uploaded image, creating the submission in the pending state. Re-running
// classification on the same id overwrites the derived fields only; the
// lifecycle state is never moved backward.
func (d *Database) ClassifySubmission(ctx context.Context, id string, mlLabels, relevantReports map[string]decimal.Decimal, coords models.Coordinates) error {
	labelsJSON, err := json.Marshal(mlLabels)
	if err != nil {
		return fmt.Errorf("failed to marshal ml labels: %w", err)
	}
	relevantJSON, err := json.Marshal(relevantReports)
	if err != nil {
		return fmt.Errorf("failed to marshal relevant reports: %w", err)
	}

	query := `
		INSERT INTO submissions (id, state, ml_labels, relevant_reports, coords_image_lat, coords_image_lon)
		VALUES (?, 'pending', ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			ml_labels = VALUES(ml_labels),
			relevant_reports = VALUES(relevant_reports),
			coords_image_lat = VALUES(coords_image_lat),
			coords_image_lon = VALUES(coords_image_lon)
	`
	_, err = d.db.ExecContext(ctx, query, id, labelsJSON, relevantJSON, coords.Latitude, coords.Longitude)
	if err != nil {
		return fmt.Errorf("failed to write classification for submission %s: %w", id, err)
	}
	return nil
}

// SubmitSubmission transitions a submission to submitted, recording the
// user's selected reports, browser coordinates and submission timestamp.
// Returns ErrNotFound when no record in a transitionable state exists;
// the statement never creates one.
func (d *Database) SubmitSubmission(ctx context.Context, id string, selectedReports []string, coords models.Coordinates, now time.Time) (*models.Submission, error) {
	if selectedReports == nil {
		selectedReports = []string{}
	}
	selectedJSON, err := json.Marshal(selectedReports)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal selected reports: %w", err)
	}

	query := `
		UPDATE submissions
		SET state = 'submitted',
			selected_reports = ?,
			coords_browser_lat = ?,
			coords_browser_lon = ?,
			timestamp_submitted = ?
		WHERE id = ? AND state <> 'resolved'
	`
	res, err := d.db.ExecContext(ctx, query, selectedJSON, coords.Latitude, coords.Longitude, models.Timestamp(now), id)
	if err != nil {
		return nil, fmt.Errorf("failed to submit submission %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get submit row count: %w", err)
	}
	if rows == 0 {
		return nil, ErrNotFound
	}
	return d.GetSubmission(ctx, id)
}

// ResolveSubmission transitions a submission to resolved, stamping the
// resolution timestamp. Resolving an unknown or already-resolved submission
// returns ErrNotFound.
func (d *Database) ResolveSubmission(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE submissions
		SET state = 'resolved', timestamp_resolved = ?
		WHERE id = ? AND state <> 'resolved'
	`
	res, err := d.db.ExecContext(ctx, query, models.Timestamp(now), id)
	if err != nil {
		return fmt.Errorf("failed to resolve submission %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get resolve row count: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

const submissionColumns = `id, state, ml_labels, relevant_reports,
	coords_image_lat, coords_image_lon, coords_browser_lat, coords_browser_lon,
	selected_reports, timestamp_submitted, timestamp_resolved`

// GetSubmission looks up a single submission by id.
func (d *Database) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	s, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission %s: %w", id, err)
	}
	return s, nil
}

// GetSubmissionsByState lists submissions in the given lifecycle state.
// Zero matches yield an empty slice, not an error.
func (d *Database) GetSubmissionsByState(ctx context.Context, state models.SubmissionState) ([]models.Submission, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE state = ? ORDER BY id`, string(state))
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions by state: %w", err)
	}
	defer rows.Close()

	submissions := []models.Submission{}
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		submissions = append(submissions, *s)
	}
	return submissions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var s models.Submission
	var state string
	var mlLabels, relevant, sel sql.NullString
	var imgLat, imgLon, browserLat, browserLon sql.NullString
	var tsSubmitted, tsResolved sql.NullString
	err := row.Scan(&s.ID, &state, &mlLabels, &relevant,
		&imgLat, &imgLon, &browserLat, &browserLon,
		&sel, &tsSubmitted, &tsResolved)
	if err != nil {
		return nil, err
	}

	s.State = models.SubmissionState(state)
	if err := unmarshalNull(mlLabels, &s.MLLabels); err != nil {
		return nil, fmt.Errorf("bad ml_labels for %s: %w", s.ID, err)
	}
	if err := unmarshalNull(relevant, &s.RelevantReports); err != nil {
		return nil, fmt.Errorf("bad relevant_reports for %s: %w", s.ID, err)
	}
	if err := unmarshalNull(sel, &s.SelectedReports); err != nil {
		return nil, fmt.Errorf("bad selected_reports for %s: %w", s.ID, err)
	}
	s.CoordsImage = models.Coordinates{Latitude: decFromNull(imgLat), Longitude: decFromNull(imgLon)}
	s.CoordsBrowser = models.Coordinates{Latitude: decFromNull(browserLat), Longitude: decFromNull(browserLon)}
	s.TimestampSubmitted = tsSubmitted.String
	s.TimestampResolved = tsResolved.String
	return &s, nil
}

func unmarshalNull(ns sql.NullString, dst any) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), dst)
}

func decFromNull(ns sql.NullString) decimal.Decimal {
	if !ns.Valid {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return decimal.Zero
	}
	return d
}
