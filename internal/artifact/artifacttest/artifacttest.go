// Package artifacttest builds small deterministic models for tests.
package artifacttest

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"os"
	"path"
	"path/filepath"
	"testing"

	"imgclf/internal/artifact"
	"imgclf/internal/tensor"
)

// Options shape the generated CNN.
type Options struct {
	Size      int // input height and width, default 8
	Classes   int // default 3
	Seed      uint64
	Resize    string
	BatchNorm bool // insert a BatchNormalization layer after the first conv
	UnitNorm  bool // insert a UnitNormalization layer before the classifier
}

func f64(v float64) *float64 { return &v }

// CNN returns a small VGG-style classifier with seeded random weights.
func CNN(o Options) *artifact.Model {
	if o.Size == 0 {
		o.Size = 8
	}
	if o.Classes == 0 {
		o.Classes = 3
	}
	layers := []artifact.Layer{
		{Name: "rescaling", Kind: artifact.KindRescaling, Config: artifact.LayerConfig{Scale: f64(1.0 / 255)}},
		{Name: "conv1", Kind: artifact.KindConv2D, Config: artifact.LayerConfig{Filters: 4, KernelSize: []int{3, 3}, Padding: artifact.PaddingSame, Activation: artifact.ActReLU}},
	}
	if o.BatchNorm {
		layers = append(layers, artifact.Layer{Name: "bn1", Kind: artifact.KindBatchNormalization})
	}
	layers = append(layers,
		artifact.Layer{Name: "pool1", Kind: artifact.KindMaxPooling2D},
		artifact.Layer{Name: "conv2", Kind: artifact.KindConv2D, Config: artifact.LayerConfig{Filters: 8, KernelSize: []int{3, 3}, Padding: artifact.PaddingSame, Activation: artifact.ActReLU}},
		artifact.Layer{Name: "pool2", Kind: artifact.KindMaxPooling2D},
		artifact.Layer{Name: "flatten", Kind: artifact.KindFlatten},
		artifact.Layer{Name: "fc1", Kind: artifact.KindDense, Config: artifact.LayerConfig{Units: 16, Activation: artifact.ActReLU}},
		artifact.Layer{Name: "dropout", Kind: artifact.KindDropout, Config: artifact.LayerConfig{Rate: 0.5}},
	)
	if o.UnitNorm {
		layers = append(layers, artifact.Layer{Name: "unitnorm", Kind: artifact.KindUnitNormalization})
	}
	layers = append(layers, artifact.Layer{Name: "predictions", Kind: artifact.KindDense, Config: artifact.LayerConfig{Units: o.Classes, Activation: artifact.ActSoftmax}})

	m := &artifact.Model{
		Metadata: artifact.Metadata{
			Format:        artifact.BundleFormat,
			FormatVersion: artifact.BundleVersion,
			Name:          "tiny-cnn",
			Signature: artifact.Signature{
				InputShape:    tensor.Shape{o.Size, o.Size, 3},
				OutputShape:   tensor.Shape{o.Classes},
				Preprocessing: artifact.Preprocessing{Resize: o.Resize}.Normalized(),
			},
			CreatedBy: "artifacttest",
		},
		Layers: layers,
	}
	fillWeights(m, o.Seed)
	return m
}

// fillWeights generates every parameter the graph needs. Normalization
// statistics are kept in a sane range so outputs stay finite.
func fillWeights(m *artifact.Model, seed uint64) {
	infos, err := artifact.Plan(m.Metadata.Signature, m.Layers)
	if err != nil {
		panic(err)
	}
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	m.Weights = map[string]*tensor.Tensor{}
	for _, spec := range artifact.Manifest(infos) {
		t := tensor.New(spec.Shape)
		for i := range t.Data {
			switch path.Base(spec.Name) {
			case artifact.ParamGamma:
				t.Data[i] = 0.5 + r.Float32()
			case artifact.ParamVariance:
				t.Data[i] = 0.5 + r.Float32()
			default:
				t.Data[i] = r.Float32()*0.6 - 0.3
			}
		}
		m.Weights[spec.Name] = t
	}
}

// FixedScores returns a model whose output is always scores, whatever the
// image: global average pooling into a zero-kernel dense layer whose bias is
// the score vector.
func FixedScores(size int, scores []float32) *artifact.Model {
	n := len(scores)
	m := &artifact.Model{
		Metadata: artifact.Metadata{
			Format:        artifact.BundleFormat,
			FormatVersion: artifact.BundleVersion,
			Name:          "fixed-scores",
			Signature: artifact.Signature{
				InputShape:    tensor.Shape{size, size, 3},
				OutputShape:   tensor.Shape{n},
				Preprocessing: artifact.Preprocessing{}.Normalized(),
			},
		},
		Layers: []artifact.Layer{
			{Name: "gap", Kind: artifact.KindGlobalAveragePooling2D},
			{Name: "scores", Kind: artifact.KindDense, Config: artifact.LayerConfig{Units: n}},
		},
		Weights: map[string]*tensor.Tensor{
			"scores/kernel": tensor.New(tensor.Shape{3, n}),
			"scores/bias":   {Shape: tensor.Shape{n}, Data: append([]float32(nil), scores...)},
		},
	}
	return m
}

// WriteBundle saves m under dir and returns its path.
func WriteBundle(t testing.TB, dir string, m *artifact.Model) string {
	t.Helper()
	p := filepath.Join(dir, "model.imgm")
	if err := artifact.Save(p, m); err != nil {
		t.Fatalf("save bundle: %v", err)
	}
	return p
}

// WriteLabels writes a class_names.json under dir and returns its path.
func WriteLabels(t testing.TB, dir string, body string) string {
	t.Helper()
	p := filepath.Join(dir, "class_names.json")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write labels: %v", err)
	}
	return p
}

// SolidPNG encodes a w x h image filled with c.
func SolidPNG(t testing.TB, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// PNGHeader returns a grayscale PNG that declares w x h pixels but carries
// no image data. Only the header is valid, which is all DecodeConfig reads.
func PNGHeader(w, h int) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	chunk := func(typ string, data []byte) {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(data)))
		buf.Write(n[:])
		body := append([]byte(typ), data...)
		buf.Write(body)
		binary.BigEndian.PutUint32(n[:], crc32.ChecksumIEEE(body))
		buf.Write(n[:])
	}
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], uint32(w))
	binary.BigEndian.PutUint32(ihdr[4:], uint32(h))
	ihdr[8] = 8 // bit depth; color type 0 (gray), no interlace
	chunk("IHDR", ihdr)
	chunk("IEND", nil)
	return buf.Bytes()
}
