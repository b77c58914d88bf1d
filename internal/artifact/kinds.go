package artifact

import (
	"fmt"
	"sort"

	"imgclf/internal/tensor"
)

// Layer kinds understood by the executor and the converters.
const (
	KindRescaling              = "Rescaling"
	KindConv2D                 = "Conv2D"
	KindMaxPooling2D           = "MaxPooling2D"
	KindBatchNormalization     = "BatchNormalization"
	KindUnitNormalization      = "UnitNormalization"
	KindFlatten                = "Flatten"
	KindGlobalAveragePooling2D = "GlobalAveragePooling2D"
	KindDense                  = "Dense"
	KindDropout                = "Dropout"
	KindActivation             = "Activation"
)

const (
	PaddingValid = "valid"
	PaddingSame  = "same"
)

// Activations accepted in a layer config. The empty string means linear.
const (
	ActLinear  = "linear"
	ActReLU    = "relu"
	ActReLU6   = "relu6"
	ActSigmoid = "sigmoid"
	ActTanh    = "tanh"
	ActSoftmax = "softmax"
)

// Param names used in weight manifests.
const (
	ParamKernel   = "kernel"
	ParamBias     = "bias"
	ParamGamma    = "gamma"
	ParamBeta     = "beta"
	ParamMean     = "moving_mean"
	ParamVariance = "moving_variance"
)

// KindSpec describes one layer kind: where it can be exported and how it
// transforms shapes.
type KindSpec struct {
	Kind string
	// Browser is true when the browser layers format can represent the kind.
	Browser bool
	// MobileBuiltin is true when the mobile runtime has a native kernel.
	MobileBuiltin bool
	// MobileSelect is true when the kind can run on mobile through the
	// full-framework fallback op set.
	MobileSelect bool

	infer func(c LayerConfig, in tensor.Shape) (tensor.Shape, []param, error)
}

type param struct {
	name  string
	shape tensor.Shape
}

var kinds = map[string]KindSpec{
	KindRescaling:              {Browser: true, MobileBuiltin: true, MobileSelect: true, infer: inferRescaling},
	KindConv2D:                 {Browser: true, MobileBuiltin: true, MobileSelect: true, infer: inferConv2D},
	KindMaxPooling2D:           {Browser: true, MobileBuiltin: true, MobileSelect: true, infer: inferPool},
	KindBatchNormalization:     {Browser: true, MobileBuiltin: false, MobileSelect: true, infer: inferBatchNorm},
	KindUnitNormalization:      {Browser: false, MobileBuiltin: true, MobileSelect: true, infer: inferIdentity},
	KindFlatten:                {Browser: true, MobileBuiltin: true, MobileSelect: true, infer: inferFlatten},
	KindGlobalAveragePooling2D: {Browser: true, MobileBuiltin: true, MobileSelect: true, infer: inferGAP},
	KindDense:                  {Browser: true, MobileBuiltin: true, MobileSelect: true, infer: inferDense},
	KindDropout:                {Browser: true, MobileBuiltin: true, MobileSelect: true, infer: inferDropout},
	KindActivation:             {Browser: true, MobileBuiltin: true, MobileSelect: true, infer: inferActivation},
}

// LookupKind returns the spec for a layer kind.
func LookupKind(kind string) (KindSpec, bool) {
	k, ok := kinds[kind]
	if ok {
		k.Kind = kind
	}
	return k, ok
}

// Kinds lists every known kind, sorted.
func Kinds() []string {
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ValidActivation reports whether name is a supported activation.
func ValidActivation(name string) bool {
	switch name {
	case "", ActLinear, ActReLU, ActReLU6, ActSigmoid, ActTanh, ActSoftmax:
		return true
	}
	return false
}

func inferIdentity(_ LayerConfig, in tensor.Shape) (tensor.Shape, []param, error) {
	return in.Clone(), nil, nil
}

func inferRescaling(c LayerConfig, in tensor.Shape) (tensor.Shape, []param, error) {
	if c.Scale == nil {
		return nil, nil, fmt.Errorf("rescaling needs a scale")
	}
	return in.Clone(), nil, nil
}

func inferDropout(c LayerConfig, in tensor.Shape) (tensor.Shape, []param, error) {
	if c.Rate < 0 || c.Rate >= 1 {
		return nil, nil, fmt.Errorf("dropout rate %v outside [0,1)", c.Rate)
	}
	return in.Clone(), nil, nil
}

func inferActivation(c LayerConfig, in tensor.Shape) (tensor.Shape, []param, error) {
	if !ValidActivation(c.Activation) {
		return nil, nil, fmt.Errorf("unknown activation %q", c.Activation)
	}
	return in.Clone(), nil, nil
}

func inferFlatten(_ LayerConfig, in tensor.Shape) (tensor.Shape, []param, error) {
	return tensor.Shape{in.Size()}, nil, nil
}

func inferGAP(_ LayerConfig, in tensor.Shape) (tensor.Shape, []param, error) {
	if len(in) != 3 {
		return nil, nil, fmt.Errorf("global average pooling needs (h,w,c) input, got %s", in)
	}
	return tensor.Shape{in[2]}, nil, nil
}

func inferBatchNorm(_ LayerConfig, in tensor.Shape) (tensor.Shape, []param, error) {
	if len(in) == 0 {
		return nil, nil, fmt.Errorf("batch normalization needs at least one axis")
	}
	c := tensor.Shape{in[len(in)-1]}
	return in.Clone(), []param{
		{ParamGamma, c}, {ParamBeta, c}, {ParamMean, c}, {ParamVariance, c},
	}, nil
}

func inferDense(c LayerConfig, in tensor.Shape) (tensor.Shape, []param, error) {
	if len(in) != 1 {
		return nil, nil, fmt.Errorf("dense needs a flat input, got %s", in)
	}
	if c.Units <= 0 {
		return nil, nil, fmt.Errorf("dense units must be positive")
	}
	if !ValidActivation(c.Activation) {
		return nil, nil, fmt.Errorf("unknown activation %q", c.Activation)
	}
	ps := []param{{ParamKernel, tensor.Shape{in[0], c.Units}}}
	if c.HasBias() {
		ps = append(ps, param{ParamBias, tensor.Shape{c.Units}})
	}
	return tensor.Shape{c.Units}, ps, nil
}

func inferConv2D(c LayerConfig, in tensor.Shape) (tensor.Shape, []param, error) {
	if len(in) != 3 {
		return nil, nil, fmt.Errorf("conv2d needs (h,w,c) input, got %s", in)
	}
	if c.Filters <= 0 || len(c.KernelSize) != 2 {
		return nil, nil, fmt.Errorf("conv2d needs filters and a 2-d kernel_size")
	}
	if !ValidActivation(c.Activation) {
		return nil, nil, fmt.Errorf("unknown activation %q", c.Activation)
	}
	oh, ow, err := windowOutput(in[0], in[1], c.KernelSize, c.StrideOr([]int{1, 1}), c.PaddingOr())
	if err != nil {
		return nil, nil, err
	}
	ps := []param{{ParamKernel, tensor.Shape{c.KernelSize[0], c.KernelSize[1], in[2], c.Filters}}}
	if c.HasBias() {
		ps = append(ps, param{ParamBias, tensor.Shape{c.Filters}})
	}
	return tensor.Shape{oh, ow, c.Filters}, ps, nil
}

func inferPool(c LayerConfig, in tensor.Shape) (tensor.Shape, []param, error) {
	if len(in) != 3 {
		return nil, nil, fmt.Errorf("pooling needs (h,w,c) input, got %s", in)
	}
	pool := c.PoolSize
	if len(pool) != 2 {
		pool = []int{2, 2}
	}
	oh, ow, err := windowOutput(in[0], in[1], pool, c.StrideOr(pool), c.PaddingOr())
	if err != nil {
		return nil, nil, err
	}
	return tensor.Shape{oh, ow, in[2]}, nil, nil
}

// PoolSizeOr returns the pooling window, 2x2 when unset.
func (c LayerConfig) PoolSizeOr() []int {
	if len(c.PoolSize) == 2 {
		return c.PoolSize
	}
	return []int{2, 2}
}

func windowOutput(h, w int, k, s []int, padding string) (int, int, error) {
	if len(k) != 2 || len(s) != 2 || k[0] <= 0 || k[1] <= 0 || s[0] <= 0 || s[1] <= 0 {
		return 0, 0, fmt.Errorf("window and strides must be positive 2-d values")
	}
	switch padding {
	case PaddingSame:
		return ceilDiv(h, s[0]), ceilDiv(w, s[1]), nil
	case PaddingValid:
		if h < k[0] || w < k[1] {
			return 0, 0, fmt.Errorf("window %v larger than input %dx%d", k, h, w)
		}
		return (h-k[0])/s[0] + 1, (w-k[1])/s[1] + 1, nil
	default:
		return 0, 0, fmt.Errorf("unknown padding %q", padding)
	}
}

// SamePadding returns the leading padding for one spatial axis under "same"
// padding, matching the TensorFlow convention (extra padding goes last).
func SamePadding(in, k, s int) int {
	out := ceilDiv(in, s)
	total := (out-1)*s + k - in
	if total < 0 {
		total = 0
	}
	return total / 2
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }
