// Package ingest turns object-store upload events into classified pending
// submissions: fetch the image, label it via the vision service, rank the
// catalog reports, extract GPS coordinates and write the record.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/shopspring/decimal"

	"fixspot/exifgps"
	"fixspot/matcher"
	"fixspot/metrics"
	"fixspot/models"
	"fixspot/rabbitmq"
	"fixspot/vision"
)

// MaxImageBytes is the vision service's hard limit on image size (15 MiB).
// Larger uploads are rejected before any classification call.
const MaxImageBytes = 15728640

// uploadKeyPattern matches the upload path the website writes to:
// maint-img/<submission uuid>.
var uploadKeyPattern = regexp.MustCompile(`^maint-img/([0-9a-fA-F-]{36})$`)

// Store is the submission persistence the pipeline writes to.
type Store interface {
	GetReports(ctx context.Context) ([]models.ReportDefinition, error)
	ClassifySubmission(ctx context.Context, id string, mlLabels, relevantReports map[string]decimal.Decimal, coords models.Coordinates) error
}

// ObjectStore fetches and deletes uploaded images.
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
}

// Service is the upload classification pipeline.
type Service struct {
	db      Store
	vision  vision.Client
	objects ObjectStore
}

// NewService creates the pipeline.
func NewService(db Store, visionClient vision.Client, objects ObjectStore) *Service {
	return &Service{db: db, vision: visionClient, objects: objects}
}

// HandleEvent is the AMQP callback for one bucket notification. Malformed
// payloads are dropped permanently; a transient failure requeues the whole
// notification, which is safe because classification writes are
// overwrite-safe per submission id.
func (s *Service) HandleEvent(body []byte) error {
	var event models.BucketEvent
	if err := json.Unmarshal(body, &event); err != nil {
		metrics.EventsProcessedTotal.WithLabelValues(metrics.ResultFailed).Inc()
		return rabbitmq.Permanent(fmt.Errorf("unparseable bucket event: %w", err))
	}
	ctx := context.Background()
	for _, record := range event.Records {
		if err := s.handleRecord(ctx, record); err != nil {
			metrics.EventsProcessedTotal.WithLabelValues(metrics.ResultFailed).Inc()
			return err
		}
	}
	return nil
}

func (s *Service) handleRecord(ctx context.Context, record models.BucketEventRecord) error {
	if !isCreationEvent(record) {
		log.Errorf("Unrecognized event: source=%q name=%q", record.EventSource, record.EventName)
		metrics.EventsProcessedTotal.WithLabelValues(metrics.ResultSkipped).Inc()
		return nil
	}

	bucket := record.S3.Bucket.Name
	key := record.S3.Object.Key
	id, ok := submissionIDFromKey(key)
	if !ok {
		log.Errorf("Unrecognized upload path: %s", key)
		metrics.EventsProcessedTotal.WithLabelValues(metrics.ResultSkipped).Inc()
		return nil
	}

	if record.S3.Object.Size > MaxImageBytes {
		log.Errorf("Image too large for submission %s: %d bytes", id, record.S3.Object.Size)
		// Terminal rejection. Drop the object so the bucket does not
		// accumulate uploads nothing will ever classify.
		if err := s.objects.Delete(ctx, bucket, key); err != nil {
			log.Errorf("Failed to delete oversized object s3://%s/%s: %v", bucket, key, err)
		}
		metrics.EventsProcessedTotal.WithLabelValues(metrics.ResultOversized).Inc()
		return nil
	}

	return s.processImage(ctx, id, bucket, key)
}

func (s *Service) processImage(ctx context.Context, id, bucket, key string) error {
	start := time.Now()

	data, err := s.objects.Get(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("failed to fetch upload for submission %s: %w", id, err)
	}

	log.Debugf("Requesting labels for s3://%s/%s", bucket, key)
	labels, err := s.vision.DetectLabels(ctx, data)
	if errors.Is(err, vision.ErrUnrecognizedImage) {
		log.Errorf("Vision service rejected submission %s as not an image", id)
		metrics.EventsProcessedTotal.WithLabelValues(metrics.ResultUndecodable).Inc()
		return nil
	}
	if err != nil {
		return fmt.Errorf("classification failed for submission %s: %w", id, err)
	}
	mlLabels := vision.ToMap(labels)
	log.Infof("Found %d labels for submission %s", len(mlLabels), id)

	// The catalog is read fresh on every classification so edits are
	// visible to the next upload.
	catalog, err := s.db.GetReports(ctx)
	if err != nil {
		return fmt.Errorf("failed to load report catalog: %w", err)
	}
	relevant := matcher.Match(mlLabels, catalog)

	loc, err := exifgps.Extract(data)
	if errors.Is(err, exifgps.ErrNotImage) {
		// Corrupt payload: terminal, and no record may be written.
		log.Errorf("Upload for submission %s is not a decodable image", id)
		metrics.EventsProcessedTotal.WithLabelValues(metrics.ResultUndecodable).Inc()
		return nil
	}
	if err != nil {
		return fmt.Errorf("coordinate extraction failed for submission %s: %w", id, err)
	}
	coords := models.Coordinates{}
	if loc != nil {
		coords = models.Coordinates{Latitude: loc.Latitude, Longitude: loc.Longitude}
	}

	if err := s.db.ClassifySubmission(ctx, id, mlLabels, relevant, coords); err != nil {
		return fmt.Errorf("failed to persist classification for submission %s: %w", id, err)
	}

	log.Infof("Classified submission %s: %d labels, %d relevant reports", id, len(mlLabels), len(relevant))
	metrics.EventsProcessedTotal.WithLabelValues(metrics.ResultClassified).Inc()
	metrics.ProcessingDurationSeconds.Observe(time.Since(start).Seconds())
	return nil
}

// isCreationEvent filters to object-creation notifications from an
// S3-compatible source; the broker may deliver unrelated events.
func isCreationEvent(record models.BucketEventRecord) bool {
	if record.EventSource != "aws:s3" && record.EventSource != "minio:s3" {
		return false
	}
	// MinIO prefixes event names with "s3:".
	name := strings.TrimPrefix(record.EventName, "s3:")
	switch name {
	case "ObjectCreated:Put", "ObjectCreated:Post", "ObjectCreated:CompleteMultipartUpload":
		return true
	}
	return false
}

func submissionIDFromKey(key string) (string, bool) {
	m := uploadKeyPattern.FindStringSubmatch(key)
	if m == nil {
		return "", false
	}
	if !models.ValidSubmissionID(m[1]) {
		return "", false
	}
	return m[1], true
}
