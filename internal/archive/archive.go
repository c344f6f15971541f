// Package archive keeps a copy of every bank email body that reaches extraction.
package archive

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// Archiver stores raw email bodies and returns where they were written.
type Archiver interface {
	ArchiveEmail(ctx context.Context, userID, messageID string, body []byte) (string, error)
}

// GCSArchiver writes email bodies to a Cloud Storage bucket.
// It assumes Application Default Credentials are configured.
type GCSArchiver struct {
	client *storage.Client
	bucket string
	now    func() time.Time
}

// NewGCSArchiver creates a storage client for bucket.
func NewGCSArchiver(ctx context.Context, bucket string) (*GCSArchiver, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSArchiver{client: client, bucket: bucket, now: time.Now}, nil
}

// ArchiveEmail implements Archiver.
func (a *GCSArchiver) ArchiveEmail(ctx context.Context, userID, messageID string, body []byte) (string, error) {
	objectName := ObjectName(userID, messageID, a.now())

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "text/plain; charset=utf-8"
	w.Metadata = map[string]string{"user_id": userID, "gmail_message_id": messageID}

	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write email to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", a.bucket, objectName), nil
}

// Fetch downloads an archived body by its gs:// URI.
func (a *GCSArchiver) Fetch(ctx context.Context, gcsURI string) ([]byte, error) {
	bucket, object, err := ParseURI(gcsURI)
	if err != nil {
		return nil, err
	}

	rc, err := a.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("fetch: reading bytes: %w", err)
	}
	return data, nil
}

// Close releases the storage client.
func (a *GCSArchiver) Close() error {
	return a.client.Close()
}

// ObjectName lays archived emails out by user and UTC day.
func ObjectName(userID, messageID string, at time.Time) string {
	return path.Join("emails", userID, at.UTC().Format("2006/01/02"), messageID+".txt")
}

// ParseURI splits gs://bucket/object into its parts.
func ParseURI(gcsURI string) (bucket, object string, err error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}
	parts := strings.SplitN(strings.TrimPrefix(gcsURI, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return parts[0], parts[1], nil
}

// Nop discards bodies. It is used when no bucket is configured.
type Nop struct{}

// ArchiveEmail implements Archiver.
func (Nop) ArchiveEmail(context.Context, string, string, []byte) (string, error) {
	return "", nil
}

var (
	_ Archiver = (*GCSArchiver)(nil)
	_ Archiver = Nop{}
)
