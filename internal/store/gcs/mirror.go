// Package gcs mirrors cache records into a Google Cloud Storage bucket.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/malegislature-crawler/internal/store"
)

const contentType = "application/json"

// Config captures the parameters required to mirror into GCS.
type Config struct {
	Bucket string
	Prefix string
}

// Mirror writes one object per cache record to a configured bucket.
type Mirror struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed record mirror.
func New(client *storage.Client, cfg Config) (*Mirror, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Mirror{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// ObjectName returns the object path for a record, mirroring the local layout.
func ObjectName(prefix, kind, hash string) string {
	return path.Join(strings.Trim(prefix, "/"), kind, hash+".json")
}

// URI returns the gs:// location of a record.
func (m *Mirror) URI(kind, hash string) string {
	return fmt.Sprintf("gs://%s/%s", m.bucket, ObjectName(m.prefix, kind, hash))
}

// Put uploads the record body.
func (m *Mirror) Put(ctx context.Context, rec store.Record) error {
	obj := m.client.Bucket(m.bucket).Object(ObjectName(m.prefix, rec.Kind, rec.Hash))
	writer := obj.NewWriter(ctx)
	writer.ContentType = contentType
	writer.Metadata = map[string]string{
		"identity": rec.Identity,
		"kind":     rec.Kind,
	}
	if _, err := io.Copy(writer, bytes.NewReader(rec.Data)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// Delete removes a pruned record. A missing object is not an error.
func (m *Mirror) Delete(ctx context.Context, kind, hash string) error {
	err := m.client.Bucket(m.bucket).Object(ObjectName(m.prefix, kind, hash)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// Close releases the storage client.
func (m *Mirror) Close() error {
	if err := m.client.Close(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}
