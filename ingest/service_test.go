package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/shopspring/decimal"

	"fixspot/models"
	"fixspot/rabbitmq"
	"fixspot/stubvision"
)

const testID = "97cc0239-34fc-49d1-b87a-eb226ecc0e81"

type fakeStore struct {
	catalog    []models.ReportDefinition
	classified map[string]map[string]decimal.Decimal
	relevant   map[string]map[string]decimal.Decimal
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		catalog: []models.ReportDefinition{
			{ID: "report-1", Name: "Damaged Fire Hydrant", Labels: []string{"Fire Hydrant", "Hydrant"}},
			{ID: "report-2", Name: "Pothole", Labels: []string{"Pothole", "Road Damage"}},
		},
		classified: map[string]map[string]decimal.Decimal{},
		relevant:   map[string]map[string]decimal.Decimal{},
	}
}

func (f *fakeStore) GetReports(ctx context.Context) ([]models.ReportDefinition, error) {
	return f.catalog, nil
}

func (f *fakeStore) ClassifySubmission(ctx context.Context, id string, mlLabels, relevantReports map[string]decimal.Decimal, coords models.Coordinates) error {
	f.classified[id] = mlLabels
	f.relevant[id] = relevantReports
	return nil
}

type fakeObjectStore struct {
	data    []byte
	getErr  error
	deleted []string
}

func (f *fakeObjectStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.data, nil
}

func (f *fakeObjectStore) Delete(ctx context.Context, bucket, key string) error {
	f.deleted = append(f.deleted, bucket+"/"+key)
	return nil
}

func uploadEvent(eventName, key string, size int64) []byte {
	event := models.BucketEvent{
		Records: []models.BucketEventRecord{{
			EventSource: "aws:s3",
			EventName:   eventName,
			S3: models.S3Entity{
				Bucket: models.S3Bucket{Name: "uploads"},
				Object: models.S3Object{Key: key, Size: size},
			},
		}},
	}
	body, err := json.Marshal(event)
	if err != nil {
		panic(err)
	}
	return body
}

// tinyPNG is a decodable image with no EXIF block.
func tinyPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestHandleEventClassifies(t *testing.T) {
	store := newFakeStore()
	objects := &fakeObjectStore{data: tinyPNG(t)}
	svc := NewService(store, stubvision.NewClient(), objects)

	body := uploadEvent("ObjectCreated:Put", "maint-img/"+testID, 1024)
	if err := svc.HandleEvent(body); err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}

	labels, ok := store.classified[testID]
	if !ok {
		t.Fatalf("expected a classification for %s, got none", testID)
	}
	if got := labels["Fire Hydrant"]; !got.Equal(decimal.RequireFromString("95.725")) {
		t.Errorf("Fire Hydrant confidence = %s, want 95.725", got)
	}
	relevant := store.relevant[testID]
	if got := relevant["report-1"]; !got.Equal(decimal.RequireFromString("191.45")) {
		t.Errorf("report-1 score = %s, want 191.45", got)
	}
	if _, ok := relevant["report-2"]; ok {
		t.Errorf("report-2 should not be relevant, got %s", relevant["report-2"])
	}
	if len(objects.deleted) != 0 {
		t.Errorf("nothing should be deleted, got %v", objects.deleted)
	}
}

func TestHandleEventMinioPrefix(t *testing.T) {
	store := newFakeStore()
	objects := &fakeObjectStore{data: tinyPNG(t)}
	svc := NewService(store, stubvision.NewClient(), objects)

	body := uploadEvent("s3:ObjectCreated:Put", "maint-img/"+testID, 1024)
	if err := svc.HandleEvent(body); err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if _, ok := store.classified[testID]; !ok {
		t.Errorf("expected classification for MinIO-prefixed event name")
	}
}

func TestHandleEventOversized(t *testing.T) {
	store := newFakeStore()
	objects := &fakeObjectStore{data: tinyPNG(t)}
	svc := NewService(store, stubvision.NewClient(), objects)

	body := uploadEvent("ObjectCreated:Put", "maint-img/"+testID, MaxImageBytes+1)
	if err := svc.HandleEvent(body); err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}

	if len(store.classified) != 0 {
		t.Errorf("oversized upload must not be classified, got %v", store.classified)
	}
	if len(objects.deleted) != 1 || objects.deleted[0] != "uploads/maint-img/"+testID {
		t.Errorf("oversized upload should be deleted, got %v", objects.deleted)
	}
}

func TestHandleEventSkipsUnrecognized(t *testing.T) {
	store := newFakeStore()
	objects := &fakeObjectStore{data: tinyPNG(t)}
	svc := NewService(store, stubvision.NewClient(), objects)

	cases := []struct {
		name string
		body []byte
	}{
		{"removal event", uploadEvent("ObjectRemoved:Delete", "maint-img/"+testID, 1024)},
		{"foreign path", uploadEvent("ObjectCreated:Put", "avatars/"+testID, 1024)},
		{"non-uuid key", uploadEvent("ObjectCreated:Put", "maint-img/not-a-submission-id-but-36-chars-ab", 1024)},
		{"no records", []byte(`{"Records":[]}`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := svc.HandleEvent(tc.body); err != nil {
				t.Fatalf("HandleEvent returned error: %v", err)
			}
		})
	}
	if len(store.classified) != 0 {
		t.Errorf("skipped events must not write, got %v", store.classified)
	}
}

func TestHandleEventUndecodableImage(t *testing.T) {
	store := newFakeStore()
	objects := &fakeObjectStore{data: []byte("definitely not an image")}
	stub := stubvision.NewClient()
	svc := NewService(store, stub, objects)

	body := uploadEvent("ObjectCreated:Put", "maint-img/"+testID, 64)
	if err := svc.HandleEvent(body); err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if len(store.classified) != 0 {
		t.Errorf("undecodable upload must not be classified, got %v", store.classified)
	}
}

func TestHandleEventMalformedBodyIsPermanent(t *testing.T) {
	svc := NewService(newFakeStore(), stubvision.NewClient(), &fakeObjectStore{})

	err := svc.HandleEvent([]byte("not json"))
	if err == nil {
		t.Fatal("expected an error for a malformed event body")
	}
	var perm *rabbitmq.PermanentError
	if !errors.As(err, &perm) {
		t.Errorf("malformed body should be a permanent error, got %v", err)
	}
}

func TestHandleEventTransientFetchFailure(t *testing.T) {
	store := newFakeStore()
	objects := &fakeObjectStore{getErr: errors.New("connection refused")}
	svc := NewService(store, stubvision.NewClient(), objects)

	body := uploadEvent("ObjectCreated:Put", "maint-img/"+testID, 1024)
	err := svc.HandleEvent(body)
	if err == nil {
		t.Fatal("expected an error when the object fetch fails")
	}
	var perm *rabbitmq.PermanentError
	if errors.As(err, &perm) {
		t.Errorf("fetch failure should be transient, got permanent: %v", err)
	}
	if len(store.classified) != 0 {
		t.Errorf("failed fetch must not write, got %v", store.classified)
	}
}
