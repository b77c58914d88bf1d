package artifact_test

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"imgclf/internal/artifact"
	"imgclf/internal/artifact/artifacttest"
	"imgclf/internal/tensor"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := artifacttest.CNN(artifacttest.Options{Seed: 7, BatchNorm: true})
	p := artifacttest.WriteBundle(t, dir, m)

	got, err := artifact.Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.Signature().InputShape.Equal(tensor.Shape{8, 8, 3}) {
		t.Fatalf("input shape: %s", got.Signature().InputShape)
	}
	if len(got.Layers) != len(m.Layers) {
		t.Fatalf("layers: got %d want %d", len(got.Layers), len(m.Layers))
	}
	for name, w := range m.Weights {
		gw := got.Weights[name]
		if gw == nil || !gw.Shape.Equal(w.Shape) {
			t.Fatalf("weight %s missing or reshaped", name)
		}
		for i := range w.Data {
			if gw.Data[i] != w.Data[i] {
				t.Fatalf("weight %s[%d]: got %v want %v", name, i, gw.Data[i], w.Data[i])
			}
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := artifact.Load(filepath.Join(t.TempDir(), "nope.imgm"))
	if !artifact.IsLoadError(err) {
		t.Fatalf("expected LoadError, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected wrapped ErrNotExist, got %v", err)
	}
}

func TestLoadCorruptArchive(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.imgm")
	if err := os.WriteFile(p, []byte("definitely not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := artifact.Load(p); !artifact.IsLoadError(err) {
		t.Fatalf("expected LoadError, got %v", err)
	}
}

// rewriteMember re-zips a bundle with one member replaced (or dropped when data is nil).
func rewriteMember(t *testing.T, bundle []byte, name string, data []byte) []byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(bundle), int64(len(bundle)))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range zr.File {
		body := data
		if f.Name != name {
			rc, _ := f.Open()
			var b bytes.Buffer
			_, _ = b.ReadFrom(rc)
			rc.Close()
			body = b.Bytes()
		} else if data == nil {
			continue
		}
		w, _ := zw.Create(f.Name)
		_, _ = w.Write(body)
	}
	_ = zw.Close()
	return buf.Bytes()
}

func TestDecodeRejectsBrokenBundles(t *testing.T) {
	good, err := artifact.Encode(artifacttest.CNN(artifacttest.Options{Seed: 1}))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	cases := map[string]struct {
		member string
		data   []byte
		want   string
	}{
		"missing weights":   {artifact.WeightsFile, nil, "no model.weights.bin"},
		"truncated weights": {artifact.WeightsFile, []byte{1, 2, 3, 4}, "manifest describes"},
		"bad metadata":      {artifact.MetadataFile, []byte("{"), "parse metadata.json"},
		"wrong format":      {artifact.MetadataFile, []byte(`{"format":"other","format_version":1}`), "unexpected format"},
		"unknown kind":      {artifact.ConfigFile, []byte(`{"layers":[{"name":"x","kind":"LSTM"}],"weights":[]}`), ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := artifact.Decode(rewriteMember(t, good, tc.member, tc.data))
			if err == nil {
				t.Fatalf("expected error")
			}
			if tc.want != "" && !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestPlanShapes(t *testing.T) {
	m := artifacttest.CNN(artifacttest.Options{Size: 9, Classes: 5, Seed: 2})
	infos, err := m.Validate()
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	// 9x9 same-padded conv keeps 9x9, pooling floors to 4x4, then 2x2.
	want := map[string]tensor.Shape{
		"conv1":       {9, 9, 4},
		"pool1":       {4, 4, 4},
		"pool2":       {2, 2, 8},
		"flatten":     {32},
		"predictions": {5},
	}
	for _, l := range infos {
		if w, ok := want[l.Name]; ok && !l.OutputShape.Equal(w) {
			t.Fatalf("%s: got %s want %s", l.Name, l.OutputShape, w)
		}
	}
}

func TestPlanRejectsOutputMismatch(t *testing.T) {
	m := artifacttest.CNN(artifacttest.Options{Seed: 3})
	sig := m.Metadata.Signature
	sig.OutputShape = tensor.Shape{4}
	if _, err := artifact.Plan(sig, m.Layers); err == nil {
		t.Fatalf("expected output mismatch")
	}
}

func TestValidateRejectsWrongWeightShape(t *testing.T) {
	m := artifacttest.CNN(artifacttest.Options{Seed: 4})
	m.Weights["fc1/bias"] = tensor.New(tensor.Shape{3})
	if _, err := m.Validate(); err == nil || !strings.Contains(err.Error(), "fc1/bias") {
		t.Fatalf("expected fc1/bias shape error, got %v", err)
	}
}

func TestSamePadding(t *testing.T) {
	if got := artifact.SamePadding(8, 3, 1); got != 1 {
		t.Fatalf("k3 s1: %d", got)
	}
	// even kernel puts the extra row after the input
	if got := artifact.SamePadding(8, 2, 2); got != 0 {
		t.Fatalf("k2 s2: %d", got)
	}
	if got := artifact.SamePadding(7, 4, 1); got != 1 {
		t.Fatalf("k4 s1: %d", got)
	}
}

func TestSummaryTable(t *testing.T) {
	m := artifacttest.CNN(artifacttest.Options{Seed: 5})
	infos, err := m.Validate()
	if err != nil {
		t.Fatal(err)
	}
	s := artifact.Summarize("bundle", m.Metadata.Name, m.Signature(), infos)
	// conv1 3*3*3*4+4, conv2 3*3*4*8+8, fc1 32*16+16, predictions 16*3+3
	if want := 112 + 296 + 528 + 51; s.TotalParams != want {
		t.Fatalf("total params: got %d want %d", s.TotalParams, want)
	}
	var buf bytes.Buffer
	if err := s.WriteTable(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "predictions") || !strings.Contains(buf.String(), "Total params: 987") {
		t.Fatalf("unexpected table:\n%s", buf.String())
	}
}
