package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"imgclf/internal/artifact"
	"imgclf/internal/artifact/artifacttest"
	"imgclf/internal/format"
	"imgclf/internal/format/browser"
	"imgclf/internal/format/mobile"
	"imgclf/internal/tensor"
)

func probe() *tensor.Tensor {
	x := tensor.New(tensor.Shape{1, 8, 8, 3})
	for i := range x.Data {
		x.Data[i] = float32((i * 13) % 256)
	}
	return x
}

func TestOpenEveryNativeFormat(t *testing.T) {
	dir := t.TempDir()
	src := artifacttest.CNN(artifacttest.Options{Seed: 21})
	bundlePath := artifacttest.WriteBundle(t, dir, src)

	files, err := browser.Encode(src, browser.Options{})
	if err != nil {
		t.Fatal(err)
	}
	webDir := filepath.Join(dir, "web")
	if err := os.Mkdir(webDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := browser.WriteDir(webDir, files); err != nil {
		t.Fatal(err)
	}
	data, _, err := mobile.Encode(src, mobile.Options{})
	if err != nil {
		t.Fatal(err)
	}
	mobilePath := filepath.Join(dir, "model.imgl")
	if err := os.WriteFile(mobilePath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	ref, err := Open(bundlePath)
	if err != nil {
		t.Fatalf("open bundle: %v", err)
	}
	want, err := ref.Forward(context.Background(), probe())
	if err != nil {
		t.Fatal(err)
	}
	for path, kind := range map[string]format.Kind{webDir: format.Browser, mobilePath: format.Mobile} {
		m, err := Open(path)
		if err != nil {
			t.Fatalf("open %s: %v", kind, err)
		}
		if m.Format() != kind {
			t.Fatalf("format: got %s want %s", m.Format(), kind)
		}
		got, err := m.Forward(context.Background(), probe())
		if err != nil {
			t.Fatal(err)
		}
		for i := range want.Data {
			if got.Data[i] != want.Data[i] {
				t.Fatalf("%s output differs at %d", kind, i)
			}
		}
		_ = m.Close()
	}
}

func TestOpenFailuresAreLoadErrors(t *testing.T) {
	dir := t.TempDir()
	junk := filepath.Join(dir, "junk.bin")
	if err := os.WriteFile(junk, []byte("xx"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{filepath.Join(dir, "missing.imgm"), junk, dir} {
		if _, err := Open(p); !artifact.IsLoadError(err) {
			t.Fatalf("%s: expected LoadError, got %v", p, err)
		}
	}
}
