package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"imgclf/internal/common/fsutil"
)

// LocalObjectStore writes objects as files under a root directory.
type LocalObjectStore struct {
	root string
}

var _ ObjectStore = (*LocalObjectStore)(nil)

func NewLocalObjectStore(root string) *LocalObjectStore {
	return &LocalObjectStore{root: root}
}

func (s *LocalObjectStore) PutObject(ctx context.Context, key string, data io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	root, err := fsutil.ExpandHome(s.root)
	if err != nil {
		return err
	}
	dst := filepath.Join(root, filepath.FromSlash(key))
	if rel, err := filepath.Rel(root, dst); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("key %q escapes %s", key, root)
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	return fsutil.WriteFileAtomic(dst, b, 0o644)
}

func (s *LocalObjectStore) Location(key string) string {
	return "file://" + filepath.ToSlash(filepath.Join(s.root, filepath.FromSlash(key)))
}
