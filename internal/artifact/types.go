package artifact

import (
	"fmt"

	"imgclf/internal/tensor"
)

const (
	BundleFormat  = "imgclf-bundle"
	BundleVersion = 1

	MetadataFile = "metadata.json"
	ConfigFile   = "config.json"
	WeightsFile  = "model.weights.bin"

	DTypeFloat32 = "float32"
)

// Resize methods a model can pin in its preprocessing block.
const (
	ResizeBilinear   = "bilinear"
	ResizeNearest    = "nearest"
	ResizeCatmullRom = "catmull-rom"
	ResizeLanczos3   = "lanczos3"
)

const ColorRGB = "rgb"

// Preprocessing records how serving must prepare pixels so they match what
// the model saw during training.
type Preprocessing struct {
	Resize    string `json:"resize"`
	ColorMode string `json:"color_mode"`
}

// Normalized fills defaults for an empty block.
func (p Preprocessing) Normalized() Preprocessing {
	if p.Resize == "" {
		p.Resize = ResizeBilinear
	}
	if p.ColorMode == "" {
		p.ColorMode = ColorRGB
	}
	return p
}

func (p Preprocessing) validate() error {
	switch p.Resize {
	case ResizeBilinear, ResizeNearest, ResizeCatmullRom, ResizeLanczos3:
	default:
		return fmt.Errorf("unknown resize method %q", p.Resize)
	}
	if p.ColorMode != ColorRGB {
		return fmt.Errorf("unsupported color mode %q", p.ColorMode)
	}
	return nil
}

// Signature is the input/output contract of a model. Shapes exclude the
// batch dimension: input is (height, width, channels), output is (classes).
type Signature struct {
	InputShape    tensor.Shape  `json:"input_shape"`
	OutputShape   tensor.Shape  `json:"output_shape"`
	Preprocessing Preprocessing `json:"preprocessing"`
}

// Validate checks ranks, positivity and the preprocessing block.
func (s Signature) Validate() error {
	if len(s.InputShape) != 3 || !s.InputShape.Valid() {
		return fmt.Errorf("input shape must be (height,width,channels), got %s", s.InputShape)
	}
	if len(s.OutputShape) != 1 || !s.OutputShape.Valid() {
		return fmt.Errorf("output shape must be (classes), got %s", s.OutputShape)
	}
	return s.Preprocessing.Normalized().validate()
}

// Height, Width, Channels and Classes read the signature dimensions.
func (s Signature) Height() int   { return s.InputShape[0] }
func (s Signature) Width() int    { return s.InputShape[1] }
func (s Signature) Channels() int { return s.InputShape[2] }
func (s Signature) Classes() int  { return s.OutputShape[0] }

// Metadata is the content of metadata.json.
type Metadata struct {
	Format        string `json:"format"`
	FormatVersion int    `json:"format_version"`
	Name          string `json:"name"`
	Signature
	CreatedBy string `json:"created_by,omitempty"`
}

// LayerConfig is the union of every layer kind's attributes. Unused fields
// stay zero and are omitted from JSON.
type LayerConfig struct {
	Filters    int      `json:"filters,omitempty"`
	KernelSize []int    `json:"kernel_size,omitempty"`
	Strides    []int    `json:"strides,omitempty"`
	Padding    string   `json:"padding,omitempty"`
	PoolSize   []int    `json:"pool_size,omitempty"`
	Units      int      `json:"units,omitempty"`
	Activation string   `json:"activation,omitempty"`
	UseBias    *bool    `json:"use_bias,omitempty"`
	Rate       float64  `json:"rate,omitempty"`
	Scale      *float64 `json:"scale,omitempty"`
	Offset     float64  `json:"offset,omitempty"`
	Epsilon    float64  `json:"epsilon,omitempty"`
}

// HasBias reports whether the layer carries a bias vector (default true).
func (c LayerConfig) HasBias() bool { return c.UseBias == nil || *c.UseBias }

// StrideOr returns the configured strides or def.
func (c LayerConfig) StrideOr(def []int) []int {
	if len(c.Strides) == 2 {
		return c.Strides
	}
	return def
}

// PaddingOr returns the configured padding mode, "valid" when unset.
func (c LayerConfig) PaddingOr() string {
	if c.Padding == "" {
		return PaddingValid
	}
	return c.Padding
}

// EpsilonOr returns the batch-norm epsilon, 1e-3 when unset.
func (c LayerConfig) EpsilonOr() float64 {
	if c.Epsilon == 0 {
		return 1e-3
	}
	return c.Epsilon
}

// Layer is one node of the sequential graph.
type Layer struct {
	Name   string      `json:"name"`
	Kind   string      `json:"kind"`
	Config LayerConfig `json:"config"`
}

// WeightSpec names one tensor in a weights manifest.
type WeightSpec struct {
	Name  string       `json:"name"`
	Shape tensor.Shape `json:"shape"`
	DType string       `json:"dtype"`
}

// WeightName joins a layer name and a parameter name.
func WeightName(layer, param string) string { return layer + "/" + param }

// Model is a fully loaded artifact.
type Model struct {
	Metadata Metadata
	Layers   []Layer
	Weights  map[string]*tensor.Tensor
}

// Signature returns the model's signature with preprocessing defaults applied.
func (m *Model) Signature() Signature {
	s := m.Metadata.Signature
	s.Preprocessing = s.Preprocessing.Normalized()
	return s
}

// Weight returns the named parameter of a layer, or nil.
func (m *Model) Weight(layer, param string) *tensor.Tensor {
	return m.Weights[WeightName(layer, param)]
}
