package blobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sweepies/imgur-sans-bullshit/internal/errors"
)

// blobMeta is the sidecar file content stored next to each blob.
type blobMeta struct {
	ContentType string            `json:"content_type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// LocalStore keeps blobs as flat files under a root directory, one data
// file plus one metadata sidecar per key.
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed and returns the store.
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, errors.Newf("local blob store path is empty").
			Component("blobstore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob directory %s: %w", root, err)
	}
	return &LocalStore{root: root}, nil
}

// Get reads the blob and its sidecar. A missing sidecar degrades to an
// octet-stream content type rather than failing the read.
func (s *LocalStore) Get(ctx context.Context, key string) (*Object, error) {
	data, err := os.ReadFile(filepath.Join(s.root, objectFileName(key)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("reading blob %s: %w", key, err)
	}

	obj := &Object{Data: data, ContentType: "application/octet-stream"}

	metaData, err := os.ReadFile(filepath.Join(s.root, metaFileName(key)))
	if err == nil {
		var meta blobMeta
		if err := json.Unmarshal(metaData, &meta); err == nil {
			if meta.ContentType != "" {
				obj.ContentType = meta.ContentType
			}
			obj.Metadata = meta.Metadata
		}
	}

	return obj, nil
}

// Put writes the blob and its sidecar atomically via rename.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	if err := writeFileAtomic(filepath.Join(s.root, objectFileName(key)), data); err != nil {
		return fmt.Errorf("writing blob %s: %w", key, err)
	}

	metaData, err := json.Marshal(blobMeta{ContentType: contentType, Metadata: metadata})
	if err != nil {
		return fmt.Errorf("marshaling blob metadata %s: %w", key, err)
	}
	if err := writeFileAtomic(filepath.Join(s.root, metaFileName(key)), metaData); err != nil {
		return fmt.Errorf("writing blob metadata %s: %w", key, err)
	}

	return nil
}

// Delete removes the blob and its sidecar. Deleting a missing blob is not
// an error.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := os.Remove(filepath.Join(s.root, objectFileName(key))); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting blob %s: %w", key, err)
	}
	if err := os.Remove(filepath.Join(s.root, metaFileName(key))); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting blob metadata %s: %w", key, err)
	}
	return nil
}

// Exists probes for the blob's data file.
func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.root, objectFileName(key)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("checking blob %s: %w", key, err)
	}
	return true, nil
}

// Close is a no-op for the local backend.
func (s *LocalStore) Close() error {
	return nil
}

// writeFileAtomic writes to a temp file in the same directory and renames
// it into place so readers never observe partial blobs.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".blob-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
