package models

// BucketEvent is an S3-compatible bucket notification as published to AMQP by
// the object store. Only the fields the ingest pipeline reads are modeled.
type BucketEvent struct {
	Records []BucketEventRecord `json:"Records"`
}

// BucketEventRecord is a single record inside a bucket notification.
type BucketEventRecord struct {
	EventSource string   `json:"eventSource"`
	EventName   string   `json:"eventName"`
	S3          S3Entity `json:"s3"`
}

// S3Entity identifies the bucket and object a record refers to.
type S3Entity struct {
	Bucket S3Bucket `json:"bucket"`
	Object S3Object `json:"object"`
}

type S3Bucket struct {
	Name string `json:"name"`
}

type S3Object struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}
