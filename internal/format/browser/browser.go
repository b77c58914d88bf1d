// Package browser encodes a model as a layers-model directory: model.json
// describing topology and a weights manifest, plus binary weight shards that
// a browser runtime fetches next to it.
package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"imgclf/internal/artifact"
	"imgclf/internal/format"
	"imgclf/internal/tensor"
)

const (
	ModelFormat = "layers-model"
	// DefaultShardSize matches the 4 MiB shards browser runtimes expect.
	DefaultShardSize = 4 << 20
)

// ModelJSON is the content of model.json.
type ModelJSON struct {
	Format          string             `json:"format"`
	GeneratedBy     string             `json:"generatedBy"`
	ConvertedBy     string             `json:"convertedBy"`
	Signature       artifact.Signature `json:"signature"`
	ModelTopology   Topology           `json:"modelTopology"`
	WeightsManifest []ManifestGroup    `json:"weightsManifest"`
}

// Topology is the sequential layer list.
type Topology struct {
	ClassName string           `json:"class_name"`
	Name      string           `json:"name,omitempty"`
	Layers    []artifact.Layer `json:"layers"`
}

// ManifestGroup lists shard files and the weights packed across them.
type ManifestGroup struct {
	Paths   []string              `json:"paths"`
	Weights []artifact.WeightSpec `json:"weights"`
}

// File is one output file, relative to the artifact directory.
type File struct {
	Name string
	Data []byte
}

// Options control encoding.
type Options struct {
	ShardSize   int
	GeneratedBy string
	ConvertedBy string
}

// CheckSupport returns an UnsupportedError for the first layer the browser
// runtime cannot represent.
func CheckSupport(m *artifact.Model) error {
	for _, l := range m.Layers {
		spec, ok := artifact.LookupKind(l.Kind)
		if !ok || !spec.Browser {
			return &format.UnsupportedError{Target: format.Browser, Layer: l.Name, Kind: l.Kind}
		}
	}
	return nil
}

// ShardName returns the conventional name of shard i (zero-based) of n.
func ShardName(i, n int) string { return fmt.Sprintf("group1-shard%dof%d.bin", i+1, n) }

// Encode renders model.json and its shards. Weights are packed in graph
// order and split at ShardSize byte boundaries.
func Encode(m *artifact.Model, o Options) ([]File, error) {
	if err := CheckSupport(m); err != nil {
		return nil, err
	}
	infos, err := m.Validate()
	if err != nil {
		return nil, err
	}
	if o.ShardSize <= 0 {
		o.ShardSize = DefaultShardSize
	}
	manifest := artifact.Manifest(infos)
	var raw []byte
	for _, w := range manifest {
		raw = tensor.AppendLE(raw, m.Weights[w.Name].Data)
	}
	var chunks [][]byte
	for off := 0; off < len(raw); off += o.ShardSize {
		chunks = append(chunks, raw[off:min(off+o.ShardSize, len(raw))])
	}
	files := make([]File, 0, len(chunks)+1)
	paths := make([]string, len(chunks))
	for i, c := range chunks {
		paths[i] = ShardName(i, len(chunks))
		files = append(files, File{Name: paths[i], Data: c})
	}
	doc := ModelJSON{
		Format:          ModelFormat,
		GeneratedBy:     o.GeneratedBy,
		ConvertedBy:     o.ConvertedBy,
		Signature:       m.Signature(),
		ModelTopology:   Topology{ClassName: "Sequential", Name: m.Metadata.Name, Layers: m.Layers},
		WeightsManifest: []ManifestGroup{{Paths: paths, Weights: manifest}},
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]File{{Name: format.BrowserModelFile, Data: b}}, files...), nil
}

// WriteDir writes files into dir, which must already exist.
func WriteDir(dir string, files []File) error {
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.Name), f.Data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// Load reads a browser artifact from dir (or from the path of its
// model.json) and rebuilds the model it encodes.
func Load(path string) (*artifact.Model, error) {
	dir := path
	if filepath.Base(path) == format.BrowserModelFile {
		dir = filepath.Dir(path)
	}
	b, err := os.ReadFile(filepath.Join(dir, format.BrowserModelFile))
	if err != nil {
		return nil, err
	}
	var doc ModelJSON
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", format.BrowserModelFile, err)
	}
	if doc.Format != ModelFormat {
		return nil, fmt.Errorf("unexpected format %q", doc.Format)
	}
	var (
		raw      []byte
		manifest []artifact.WeightSpec
	)
	for _, g := range doc.WeightsManifest {
		for _, p := range g.Paths {
			if filepath.Base(p) != p {
				return nil, fmt.Errorf("shard path %q escapes the model directory", p)
			}
			shard, err := os.ReadFile(filepath.Join(dir, p))
			if err != nil {
				return nil, err
			}
			raw = append(raw, shard...)
		}
		manifest = append(manifest, g.Weights...)
	}
	weights, err := artifact.SplitWeights(manifest, raw)
	if err != nil {
		return nil, err
	}
	m := &artifact.Model{
		Metadata: artifact.Metadata{
			Format:        artifact.BundleFormat,
			FormatVersion: artifact.BundleVersion,
			Name:          doc.ModelTopology.Name,
			Signature:     doc.Signature,
		},
		Layers:  doc.ModelTopology.Layers,
		Weights: weights,
	}
	if _, err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
