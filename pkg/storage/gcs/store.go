package gcs

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/angelmondragon/spoolhub-backend/pkg/storage"
)

const locatorScheme = "gs://"

// Store adapts Client to storage.ImageStore. Locators look like gs://bucket/object.
type Store struct {
	client *Client
	now    func() time.Time
}

func NewStore(client *Client) *Store {
	return &Store{client: client, now: time.Now}
}

func (s *Store) Save(ctx context.Context, data []byte, ext string) (string, error) {
	name := storage.ObjectName(s.now(), data, ext)
	contentType := mime.TypeByExtension("." + storage.NormalizeExt(ext))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	bucket := s.client.DefaultBucket()
	if err := s.client.Upload(ctx, bucket, name, contentType, data); err != nil {
		return "", &storage.Error{Op: "save", Err: err}
	}
	return locatorScheme + bucket + "/" + name, nil
}

func (s *Store) Read(ctx context.Context, locator string) ([]byte, error) {
	bucket, object, err := parseLocator(locator)
	if err != nil {
		return nil, &storage.Error{Op: "read", Locator: locator, Err: err}
	}
	data, err := s.client.Download(ctx, bucket, object)
	if err != nil {
		return nil, &storage.Error{Op: "read", Locator: locator, Err: err}
	}
	return data, nil
}

func parseLocator(locator string) (string, string, error) {
	if !strings.HasPrefix(locator, locatorScheme) {
		return "", "", fmt.Errorf("not a gcs locator")
	}
	bucket, object, ok := strings.Cut(strings.TrimPrefix(locator, locatorScheme), "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("malformed gcs locator")
	}
	return bucket, object, nil
}
