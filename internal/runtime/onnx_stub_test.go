//go:build !onnx

package runtime

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"imgclf/internal/artifact"
)

func TestOpenONNXWithoutBackend(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "clf.onnx")
	if err := os.WriteFile(p, []byte("onnx"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(p); !artifact.IsLoadError(err) || errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("missing sidecar should be a plain LoadError, got %v", err)
	}
	meta := `{"input_shape":[8,8,3],"output_shape":[3]}`
	if err := os.WriteFile(filepath.Join(dir, "clf.meta.json"), []byte(meta), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(p); !artifact.IsLoadError(err) || !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected dependency-unavailable LoadError, got %v", err)
	}
}
