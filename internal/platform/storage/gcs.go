package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore keeps attachments in a Cloud Storage bucket. Failed uploads are abandoned before Close,
// so they leave nothing behind.
type GCSStore struct {
	client *gcs.Client
	bucket string
}

// NewGCSClient dials Cloud Storage with the provided options.
func NewGCSClient(ctx context.Context, opts ...option.ClientOption) (*gcs.Client, error) {
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: new client: %w", err)
	}
	return client, nil
}

// NewGCSStore wraps the client for the named bucket.
func NewGCSStore(client *gcs.Client, bucket string) (*GCSStore, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: bucket name is required")
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (s *GCSStore) object(key string) *gcs.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(key)
}

// Put streams body into key.
func (s *GCSStore) Put(ctx context.Context, key string, body io.Reader, contentType string) (ObjectInfo, error) {
	if err := ValidateKey(key); err != nil {
		return ObjectInfo{}, err
	}
	if contentType == "" {
		contentType = ContentTypeFor(key)
	}
	// Close finalises the upload; cancelling the writer context is the only way to abandon it.
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	writer := s.object(key).NewWriter(writeCtx)
	writer.ContentType = contentType
	if _, err := io.Copy(writer, body); err != nil {
		cancel()
		_ = writer.Close()
		return ObjectInfo{}, fmt.Errorf("storage: write %s: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		return ObjectInfo{}, fmt.Errorf("storage: close %s: %w", key, err)
	}
	attrs := writer.Attrs()
	return fromAttrs(attrs), nil
}

// Open returns a reader for key.
func (s *GCSStore) Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, ObjectInfo{}, err
	}
	reader, err := s.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, ObjectInfo{}, ErrObjectNotFound
		}
		return nil, ObjectInfo{}, fmt.Errorf("storage: open %s: %w", key, err)
	}
	info := ObjectInfo{
		Key:         key,
		ContentType: reader.Attrs.ContentType,
		Size:        reader.Attrs.Size,
		UpdatedAt:   reader.Attrs.LastModified,
	}
	if info.ContentType == "" {
		info.ContentType = ContentTypeFor(key)
	}
	return reader, info, nil
}

// Copy duplicates srcKey into dstKey inside the bucket.
func (s *GCSStore) Copy(ctx context.Context, srcKey, dstKey string) error {
	if err := ValidateKey(srcKey); err != nil {
		return err
	}
	if err := ValidateKey(dstKey); err != nil {
		return err
	}
	if srcKey == dstKey {
		return nil
	}
	if _, err := s.object(dstKey).CopierFrom(s.object(srcKey)).Run(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("storage: copy %s: %w", srcKey, err)
	}
	return nil
}

// Delete removes key. Missing objects are not an error.
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := s.object(key).Delete(ctx); err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

// List returns the objects under prefix.
func (s *GCSStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	var out []ObjectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("storage: list %s: %w", prefix, err)
		}
		out = append(out, fromAttrs(attrs))
	}
	return out, nil
}

// Ping checks the bucket is reachable.
func (s *GCSStore) Ping(ctx context.Context) error {
	if _, err := s.client.Bucket(s.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("storage: bucket attrs: %w", err)
	}
	return nil
}

func fromAttrs(attrs *gcs.ObjectAttrs) ObjectInfo {
	if attrs == nil {
		return ObjectInfo{}
	}
	return ObjectInfo{
		Key:         attrs.Name,
		ContentType: attrs.ContentType,
		Size:        attrs.Size,
		UpdatedAt:   attrs.Updated,
	}
}
