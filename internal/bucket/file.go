package bucket

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Meta describes a stored bucket without decoding it.
type Meta struct {
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
	SizeBytes int64     `json:"size_bytes"`
	FilePath  string    `json:"file_path"`
}

// FileStore keeps one JSON file per bucket in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("bucket: mkdir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(name string) string {
	return filepath.Join(f.dir, name+".json")
}

// Save writes b atomically through a temporary file.
func (f *FileStore) Save(name string, b *Bucket) error {
	raw, err := Encode(b)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("bucket: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("bucket: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("bucket: close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), f.path(name)); err != nil {
		return fmt.Errorf("bucket: rename %s: %w", name, err)
	}
	return nil
}

// Load reads and decodes the named bucket.
func (f *FileStore) Load(name string) (*Bucket, error) {
	raw, err := os.ReadFile(f.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("bucket: open %s: %w", name, err)
	}
	b, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("bucket: decode %s: %w", name, err)
	}
	return b, nil
}

// List returns metadata for all stored buckets, most recently updated first.
func (f *FileStore) List() ([]Meta, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("bucket: list dir: %w", err)
	}

	var metas []Meta
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		metas = append(metas, Meta{
			Name:      strings.TrimSuffix(e.Name(), ".json"),
			UpdatedAt: info.ModTime(),
			SizeBytes: info.Size(),
			FilePath:  filepath.Join(f.dir, e.Name()),
		})
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// Delete removes the named bucket file.
func (f *FileStore) Delete(name string) error {
	if err := os.Remove(f.path(name)); err != nil {
		return fmt.Errorf("bucket: delete %s: %w", name, err)
	}
	return nil
}

// Close is a no-op.
func (f *FileStore) Close() error { return nil }
