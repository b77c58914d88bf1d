package artifact

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"imgclf/internal/common/fsutil"
	"imgclf/internal/tensor"
)

// graphFile is the content of config.json.
type graphFile struct {
	Layers  []Layer      `json:"layers"`
	Weights []WeightSpec `json:"weights"`
}

// maxMemberBytes caps a single decompressed archive member.
const maxMemberBytes = 1 << 30

// Load reads and validates a bundle from disk.
func Load(path string) (*Model, error) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	m, err := Decode(data)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return m, nil
}

// Decode parses and validates a bundle held in memory.
func Decode(data []byte) (*Model, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	members := map[string][]byte{}
	for _, f := range zr.File {
		switch f.Name {
		case MetadataFile, ConfigFile, WeightsFile:
		default:
			continue
		}
		b, err := readMember(f)
		if err != nil {
			return nil, err
		}
		members[f.Name] = b
	}
	for _, name := range []string{MetadataFile, ConfigFile, WeightsFile} {
		if _, ok := members[name]; !ok {
			return nil, fmt.Errorf("archive has no %s", name)
		}
	}

	var md Metadata
	if err := json.Unmarshal(members[MetadataFile], &md); err != nil {
		return nil, fmt.Errorf("parse %s: %w", MetadataFile, err)
	}
	if md.Format != BundleFormat {
		return nil, fmt.Errorf("unexpected format %q", md.Format)
	}
	if md.FormatVersion != BundleVersion {
		return nil, fmt.Errorf("unsupported format version %d", md.FormatVersion)
	}
	var g graphFile
	if err := json.Unmarshal(members[ConfigFile], &g); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ConfigFile, err)
	}
	weights, err := SplitWeights(g.Weights, members[WeightsFile])
	if err != nil {
		return nil, err
	}
	m := &Model{Metadata: md, Layers: g.Layers, Weights: weights}
	if _, err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(io.LimitReader(rc, maxMemberBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	if len(b) > maxMemberBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", f.Name, maxMemberBytes)
	}
	return b, nil
}

// SplitWeights cuts the concatenated float32 buffer along the manifest.
func SplitWeights(manifest []WeightSpec, raw []byte) (map[string]*tensor.Tensor, error) {
	values, err := tensor.DecodeLE(raw)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, w := range manifest {
		if w.DType != DTypeFloat32 {
			return nil, fmt.Errorf("weight %q has dtype %q", w.Name, w.DType)
		}
		if !w.Shape.Valid() {
			return nil, fmt.Errorf("weight %q has invalid shape %s", w.Name, w.Shape)
		}
		total += w.Shape.Size()
	}
	if total != len(values) {
		return nil, fmt.Errorf("manifest describes %d values, %s holds %d", total, WeightsFile, len(values))
	}
	out := make(map[string]*tensor.Tensor, len(manifest))
	off := 0
	for _, w := range manifest {
		if _, dup := out[w.Name]; dup {
			return nil, fmt.Errorf("duplicate weight %q", w.Name)
		}
		n := w.Shape.Size()
		t, err := tensor.FromData(w.Shape, values[off:off+n:off+n])
		if err != nil {
			return nil, fmt.Errorf("weight %q: %w", w.Name, err)
		}
		out[w.Name] = t
		off += n
	}
	return out, nil
}

// Encode validates m and serializes it as a bundle. Weights are written in
// graph order.
func Encode(m *Model) ([]byte, error) {
	infos, err := m.Validate()
	if err != nil {
		return nil, err
	}
	md := m.Metadata
	md.Format = BundleFormat
	md.FormatVersion = BundleVersion
	md.Preprocessing = md.Preprocessing.Normalized()

	manifest := Manifest(infos)
	var raw []byte
	for _, w := range manifest {
		raw = tensor.AppendLE(raw, m.Weights[w.Name].Data)
	}
	mdJSON, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return nil, err
	}
	gJSON, err := json.MarshalIndent(graphFile{Layers: m.Layers, Weights: manifest}, "", "  ")
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, member := range []struct {
		name string
		data []byte
	}{{MetadataFile, mdJSON}, {ConfigFile, gJSON}, {WeightsFile, raw}} {
		w, err := zw.Create(member.name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(member.data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save encodes m and writes it atomically to path.
func Save(path string, m *Model) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data, 0o644)
}
