package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStore keeps attachments under a directory on disk. Writes go to a temp file in the
// destination directory and are renamed into place.
type LocalStore struct {
	root string
	now  func() time.Time
}

// NewLocalStore creates the root directory when missing.
func NewLocalStore(root string) (*LocalStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("storage: local directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", abs, err)
	}
	return &LocalStore{root: abs, now: time.Now}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// Put writes body to key.
func (s *LocalStore) Put(ctx context.Context, key string, body io.Reader, contentType string) (ObjectInfo, error) {
	target, err := s.path(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return ObjectInfo{}, fmt.Errorf("storage: mkdir for %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("storage: temp file for %s: %w", key, err)
	}
	size, copyErr := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp.Name())
		return ObjectInfo{}, fmt.Errorf("storage: write %s: %w", key, errors.Join(copyErr, closeErr))
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return ObjectInfo{}, fmt.Errorf("storage: publish %s: %w", key, err)
	}
	if contentType == "" {
		contentType = ContentTypeFor(key)
	}
	return ObjectInfo{Key: key, ContentType: contentType, Size: size, UpdatedAt: s.now().UTC()}, nil
}

// Open returns a reader for key.
func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	target, err := s.path(key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	file, err := os.Open(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ObjectInfo{}, ErrObjectNotFound
		}
		return nil, ObjectInfo{}, fmt.Errorf("storage: open %s: %w", key, err)
	}
	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, ObjectInfo{}, fmt.Errorf("storage: stat %s: %w", key, err)
	}
	return file, ObjectInfo{Key: key, ContentType: ContentTypeFor(key), Size: stat.Size(), UpdatedAt: stat.ModTime().UTC()}, nil
}

// Copy duplicates srcKey into dstKey.
func (s *LocalStore) Copy(ctx context.Context, srcKey, dstKey string) error {
	if srcKey == dstKey {
		return ValidateKey(srcKey)
	}
	reader, info, err := s.Open(ctx, srcKey)
	if err != nil {
		return err
	}
	defer reader.Close()
	_, err = s.Put(ctx, dstKey, reader, info.ContentType)
	return err
}

// Delete removes key. Missing objects are not an error.
func (s *LocalStore) Delete(_ context.Context, key string) error {
	target, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

// List walks the objects under prefix.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, ObjectInfo{Key: key, ContentType: ContentTypeFor(key), Size: info.Size(), UpdatedAt: info.ModTime().UTC()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", prefix, err)
	}
	return out, nil
}

// Ping checks the root is still a writable directory.
func (s *LocalStore) Ping(context.Context) error {
	stat, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("storage: stat root: %w", err)
	}
	if !stat.IsDir() {
		return fmt.Errorf("storage: %s is not a directory", s.root)
	}
	return nil
}
