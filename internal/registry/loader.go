// Package registry discovers model artifacts in a directory.
package registry

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"imgclf/internal/common/fsutil"
	"imgclf/internal/format"
	"imgclf/pkg/types"
)

// Scanner finds artifacts among the direct children of a directory.
type Scanner struct {
	// Extensions accepted for single-file artifacts, lower case with dot.
	Extensions []string
}

// NewScanner accepts bundle, mobile and ONNX files plus browser directories.
func NewScanner() *Scanner {
	return &Scanner{Extensions: []string{".imgm", ".imgl", ".onnx"}}
}

// Scan lists artifacts in dir sorted by ID. Entries that merely carry a
// matching extension but fail format detection are skipped.
func (s *Scanner) Scan(dir string) ([]types.Artifact, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var out []types.Artifact
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && !s.accepts(name) {
			continue
		}
		p := filepath.Join(abs, name)
		kind, err := format.Detect(p)
		if err != nil {
			continue
		}
		out = append(out, types.Artifact{ID: name, Path: p, Format: string(kind), SizeBytes: sizeOf(p)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Scanner) accepts(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range s.Extensions {
		if ext == want {
			return true
		}
	}
	return false
}

// LoadDir scans dir with the default scanner.
func LoadDir(dir string) ([]types.Artifact, error) {
	return NewScanner().Scan(dir)
}

func sizeOf(path string) int64 {
	var n int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			n += fi.Size()
		}
		return nil
	})
	return n
}
