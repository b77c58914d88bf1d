package browser

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"imgclf/internal/artifact"
	"imgclf/internal/artifact/artifacttest"
	"imgclf/internal/format"
)

func TestEncodeShardsAndReload(t *testing.T) {
	m := artifacttest.CNN(artifacttest.Options{Seed: 3, BatchNorm: true})
	files, err := Encode(m, Options{ShardSize: 1000})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// 987 params plus 16 batch-norm values, 4 bytes each
	wantShards := (1003*4 + 999) / 1000
	if len(files) != wantShards+1 {
		t.Fatalf("files: got %d want %d", len(files), wantShards+1)
	}
	if files[1].Name != "group1-shard1of5.bin" || len(files[1].Data) != 1000 {
		t.Fatalf("first shard: %s (%d bytes)", files[1].Name, len(files[1].Data))
	}

	var doc ModelJSON
	if err := json.Unmarshal(files[0].Data, &doc); err != nil {
		t.Fatalf("model.json: %v", err)
	}
	if doc.Format != ModelFormat || len(doc.WeightsManifest[0].Paths) != wantShards {
		t.Fatalf("unexpected model.json: %+v", doc)
	}

	dir := t.TempDir()
	if err := WriteDir(dir, files); err != nil {
		t.Fatal(err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for name, w := range m.Weights {
		for i, v := range w.Data {
			if got.Weights[name].Data[i] != v {
				t.Fatalf("%s[%d] differs", name, i)
			}
		}
	}
	if kind, err := format.Detect(dir); err != nil || kind != format.Browser {
		t.Fatalf("detect: %v %v", kind, err)
	}
}

func TestCheckSupportRejectsUnitNormalization(t *testing.T) {
	m := artifacttest.CNN(artifacttest.Options{Seed: 1, UnitNorm: true})
	_, err := Encode(m, Options{})
	var ue *format.UnsupportedError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnsupportedError, got %v", err)
	}
	if ue.Layer != "unitnorm" || ue.Kind != artifact.KindUnitNormalization {
		t.Fatalf("wrong layer: %+v", ue)
	}
}

func TestLoadMissingShard(t *testing.T) {
	files, err := Encode(artifacttest.CNN(artifacttest.Options{Seed: 2}), Options{})
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if err := WriteDir(dir, files[:1]); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(filepath.Join(dir, format.BrowserModelFile)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected missing shard error, got %v", err)
	}
}
