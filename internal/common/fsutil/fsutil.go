package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ExpandHome expands a leading '~' to the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" {
		return path, nil
	}
	if path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	// handle cases like ~/models/clf.imgm
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

// PathExists checks if the given path exists.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}

// tempSibling returns a unique hidden path in the same directory as path, so a
// later rename stays on one filesystem.
func tempSibling(path, tag string) string {
	dir, base := filepath.Split(path)
	return filepath.Join(dir, "."+base+"."+tag+"-"+uuid.NewString())
}

// WriteFileAtomic writes data to a temp file next to path, syncs it, and
// renames it over path. Readers see either the old or the new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	tmp := tempSibling(path, "tmp")
	if err := writeSynced(tmp, data, perm); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func writeSynced(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	return f.Close()
}

// FileTxn stages several files and commits them together. On a failed
// commit every target already replaced is restored from its backup, so the
// set is never left half-updated.
type FileTxn struct {
	staged []stagedFile
}

type stagedFile struct {
	target string
	tmp    string
	backup string
}

// Stage writes data to a temp sibling of target. Nothing is visible at
// target until Commit.
func (t *FileTxn) Stage(target string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(target), err)
	}
	tmp := tempSibling(target, "tmp")
	if err := writeSynced(tmp, data, perm); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	t.staged = append(t.staged, stagedFile{target: target, tmp: tmp})
	return nil
}

// Commit moves every staged file into place.
func (t *FileTxn) Commit() error {
	var done []stagedFile
	for _, s := range t.staged {
		if PathExists(s.target) {
			s.backup = tempSibling(s.target, "bak")
			if err := os.Rename(s.target, s.backup); err != nil {
				t.rollback(done)
				return fmt.Errorf("backup %s: %w", s.target, err)
			}
		}
		if err := os.Rename(s.tmp, s.target); err != nil {
			if s.backup != "" {
				_ = os.Rename(s.backup, s.target)
			}
			t.rollback(done)
			return fmt.Errorf("rename %s: %w", s.target, err)
		}
		done = append(done, s)
	}
	for _, s := range done {
		if s.backup != "" {
			_ = os.Remove(s.backup)
		}
	}
	t.staged = nil
	return nil
}

func (t *FileTxn) rollback(done []stagedFile) {
	for i := len(done) - 1; i >= 0; i-- {
		s := done[i]
		_ = os.Remove(s.target)
		if s.backup != "" {
			_ = os.Rename(s.backup, s.target)
		}
	}
	t.Abort()
}

// Abort removes all staged temp files.
func (t *FileTxn) Abort() {
	for _, s := range t.staged {
		_ = os.Remove(s.tmp)
	}
	t.staged = nil
}

// StagingDir creates an empty temp directory next to dir for building its
// replacement.
func StagingDir(dir string) (string, error) {
	parent := filepath.Dir(filepath.Clean(dir))
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", parent, err)
	}
	staging := tempSibling(filepath.Clean(dir), "staging")
	if err := os.Mkdir(staging, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", staging, err)
	}
	return staging, nil
}

// ReplaceDir swaps staging into dir. An existing dir is moved aside first and
// restored if the final rename fails.
func ReplaceDir(staging, dir string) error {
	dir = filepath.Clean(dir)
	var backup string
	if PathExists(dir) {
		backup = tempSibling(dir, "bak")
		if err := os.Rename(dir, backup); err != nil {
			return fmt.Errorf("backup %s: %w", dir, err)
		}
	}
	if err := os.Rename(staging, dir); err != nil {
		if backup != "" {
			_ = os.Rename(backup, dir)
		}
		return fmt.Errorf("rename %s: %w", dir, err)
	}
	if backup != "" {
		if err := os.RemoveAll(backup); err != nil {
			return fmt.Errorf("remove backup %s: %w", backup, err)
		}
	}
	return nil
}
