package registry

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func write(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
}

func TestScanner_FindsArtifacts(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.imgm"), "PK\x03\x04rest")
	write(t, filepath.Join(dir, "b.IMGL"), "IMGLrest") // case-insensitive
	write(t, filepath.Join(dir, "c.onnx"), "onnx")
	write(t, filepath.Join(dir, "web", "model.json"), "{}")
	write(t, filepath.Join(dir, "web", "group1-shard1of1.bin"), "xx")
	write(t, filepath.Join(dir, "notes.txt"), "not a model")
	write(t, filepath.Join(dir, "empty", "readme"), "")

	models, err := NewScanner().Scan(dir)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	want := map[string]string{"a.imgm": "bundle", "b.IMGL": "mobile", "c.onnx": "onnx", "web": "browser"}
	if len(models) != len(want) {
		t.Fatalf("expected %d artifacts, got %+v", len(want), models)
	}
	for _, m := range models {
		if want[m.ID] != m.Format {
			t.Fatalf("%s: format %q, want %q", m.ID, m.Format, want[m.ID])
		}
		if !filepath.IsAbs(m.Path) {
			t.Fatalf("path not absolute: %s", m.Path)
		}
	}
	if models[3].ID != "web" || models[3].SizeBytes != 4 {
		t.Fatalf("browser entry: %+v", models[3])
	}
}

func TestScanner_ExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir on this platform: %v", err)
	}
	hTmp, err := os.MkdirTemp(home, "imgclf-registry-*")
	if err != nil {
		t.Skipf("cannot create temp under home: %v", err)
	}
	defer os.RemoveAll(hTmp)
	write(t, filepath.Join(hTmp, "x.imgl"), "IMGL")
	var tildePath string
	if runtime.GOOS == "windows" {
		tildePath = filepath.Join("~", filepath.Base(hTmp))
	} else {
		tildePath = "~/" + filepath.Base(hTmp)
	}
	models, err := NewScanner().Scan(tildePath)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(models) != 1 || models[0].ID != "x.imgl" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestLoadDirMissing(t *testing.T) {
	if _, err := LoadDir(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}
