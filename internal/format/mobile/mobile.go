// Package mobile encodes a model into the compact single-file mobile format:
// the magic "IMGL" followed by a protobuf-wire message holding the
// signature, the operator list and the weight tensors. With optimization
// enabled, large kernels are stored as symmetric per-tensor int8.
package mobile

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path"

	"imgclf/internal/artifact"
	"imgclf/internal/format"
	"imgclf/internal/tensor"
)

const Version = 1

// OpSet says which runtime kernel set an operator runs on.
type OpSet int

const (
	Builtin OpSet = iota
	Select
)

func (s OpSet) String() string {
	if s == Select {
		return "select"
	}
	return "builtin"
}

// DType is the storage type of a tensor.
type DType int

const (
	Float32 DType = iota
	Int8
)

func (d DType) String() string {
	if d == Int8 {
		return "int8"
	}
	return artifact.DTypeFloat32
}

// MinQuantizedElements is the smallest kernel the optimizer quantizes.
const MinQuantizedElements = 16

// Options configure the converter.
type Options struct {
	// Optimize enables the default optimization pass (int8 kernels).
	Optimize bool
	// AllowSelect lets operators without a builtin kernel fall back to the
	// select op set.
	AllowSelect bool
	GeneratedBy string
}

// Operator is one decoded graph node.
type Operator struct {
	Name    string
	Kind    string
	OpSet   OpSet
	Tensors []string
}

// Stats summarizes an encoding.
type Stats struct {
	Operators       int
	SelectOperators int
	Tensors         int
	Quantized       int
	Bytes           int
}

// Plan assigns an op set to every layer. It fails with an UnsupportedError
// for the first layer that has no builtin kernel when select ops are not
// allowed.
func Plan(m *artifact.Model, allowSelect bool) ([]OpSet, error) {
	out := make([]OpSet, len(m.Layers))
	for i, l := range m.Layers {
		spec, ok := artifact.LookupKind(l.Kind)
		switch {
		case !ok:
			return nil, &format.UnsupportedError{Target: format.Mobile, Layer: l.Name, Kind: l.Kind}
		case spec.MobileBuiltin:
			out[i] = Builtin
		case spec.MobileSelect && allowSelect:
			out[i] = Select
		case spec.MobileSelect:
			return nil, &format.UnsupportedError{Target: format.Mobile, Layer: l.Name, Kind: l.Kind, Detail: "needs select ops, which are disabled"}
		default:
			return nil, &format.UnsupportedError{Target: format.Mobile, Layer: l.Name, Kind: l.Kind}
		}
	}
	return out, nil
}

// Quantize maps w to symmetric int8 with scale max|w|/127. An all-zero
// tensor gets scale 1.
func Quantize(w []float32) ([]int8, float32) {
	var hi float32
	for _, v := range w {
		hi = max(hi, float32(math.Abs(float64(v))))
	}
	scale := hi / 127
	if scale == 0 {
		scale = 1
	}
	q := make([]int8, len(w))
	for i, v := range w {
		r := math.Round(float64(v / scale))
		q[i] = int8(min(max(r, -127), 127))
	}
	return q, scale
}

func quantizable(name string, size int) bool {
	return path.Base(name) == artifact.ParamKernel && size >= MinQuantizedElements
}

// Encode converts m into the mobile format.
func Encode(m *artifact.Model, o Options) ([]byte, Stats, error) {
	var st Stats
	infos, err := m.Validate()
	if err != nil {
		return nil, st, err
	}
	sets, err := Plan(m, o.AllowSelect)
	if err != nil {
		return nil, st, err
	}
	sig := m.Signature()

	b := []byte(format.MobileMagic)
	b = appendVarint(b, fModelVersion, Version)
	b = appendPacked(b, fModelInputShape, sig.InputShape)
	b = appendPacked(b, fModelOutputShape, sig.OutputShape)
	var pre []byte
	pre = appendString(pre, fPreResize, sig.Preprocessing.Resize)
	pre = appendString(pre, fPreColorMode, sig.Preprocessing.ColorMode)
	b = appendBytes(b, fModelPreprocessing, pre)
	b = appendString(b, fModelName, m.Metadata.Name)
	b = appendString(b, fModelGeneratedBy, o.GeneratedBy)

	for i, l := range infos {
		attrs, err := json.Marshal(l.Config)
		if err != nil {
			return nil, st, err
		}
		var op []byte
		op = appendString(op, fOpName, l.Name)
		op = appendString(op, fOpKind, l.Kind)
		op = appendVarint(op, fOpSet, uint64(sets[i]))
		op = appendBytes(op, fOpAttrs, attrs)
		for _, p := range l.Params {
			op = appendString(op, fOpTensors, p.Name)
		}
		b = appendBytes(b, fModelOperator, op)
		st.Operators++
		if sets[i] == Select {
			st.SelectOperators++
		}
	}

	for _, spec := range artifact.Manifest(infos) {
		w := m.Weights[spec.Name]
		var t []byte
		t = appendString(t, fTensorName, spec.Name)
		t = appendPacked(t, fTensorShape, spec.Shape)
		if o.Optimize && quantizable(spec.Name, len(w.Data)) {
			q, scale := Quantize(w.Data)
			raw := make([]byte, len(q))
			for i, v := range q {
				raw[i] = byte(v)
			}
			t = appendVarint(t, fTensorDType, uint64(Int8))
			t = appendFloat(t, fTensorScale, scale)
			t = appendBytes(t, fTensorData, raw)
			st.Quantized++
		} else {
			t = appendBytes(t, fTensorData, tensor.AppendLE(nil, w.Data))
		}
		b = appendBytes(b, fModelTensor, t)
		st.Tensors++
	}
	st.Bytes = len(b)
	return b, st, nil
}

// Decoded is a parsed mobile artifact. Model holds dequantized float32
// weights and can be executed directly.
type Decoded struct {
	Version     int
	GeneratedBy string
	Model       *artifact.Model
	Operators   []Operator
	// Scales maps each int8 tensor to its quantization scale.
	Scales map[string]float32
}

// ErrBadMagic is returned for data without the IMGL prefix.
var ErrBadMagic = errors.New("not a mobile model: bad magic")

// Decode parses a mobile artifact.
func Decode(data []byte) (*Decoded, error) {
	if len(data) < len(format.MobileMagic) || string(data[:len(format.MobileMagic)]) != format.MobileMagic {
		return nil, ErrBadMagic
	}
	d := &Decoded{Scales: map[string]float32{}}
	m := &artifact.Model{
		Metadata: artifact.Metadata{Format: artifact.BundleFormat, FormatVersion: artifact.BundleVersion},
		Weights:  map[string]*tensor.Tensor{},
	}
	err := walk(data[len(format.MobileMagic):], func(f field) error {
		var err error
		switch f.num {
		case fModelVersion:
			d.Version = int(f.v)
		case fModelInputShape:
			m.Metadata.InputShape, err = unpackInts(f.raw)
		case fModelOutputShape:
			m.Metadata.OutputShape, err = unpackInts(f.raw)
		case fModelPreprocessing:
			err = walk(f.raw, func(p field) error {
				switch p.num {
				case fPreResize:
					m.Metadata.Preprocessing.Resize = string(p.raw)
				case fPreColorMode:
					m.Metadata.Preprocessing.ColorMode = string(p.raw)
				}
				return nil
			})
		case fModelName:
			m.Metadata.Name = string(f.raw)
		case fModelGeneratedBy:
			d.GeneratedBy = string(f.raw)
		case fModelOperator:
			var op Operator
			var layer artifact.Layer
			op, layer, err = decodeOperator(f.raw)
			d.Operators = append(d.Operators, op)
			m.Layers = append(m.Layers, layer)
		case fModelTensor:
			err = decodeTensor(f.raw, m.Weights, d.Scales)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("decode mobile model: %w", err)
	}
	if d.Version != Version {
		return nil, fmt.Errorf("unsupported mobile model version %d", d.Version)
	}
	if _, err := m.Validate(); err != nil {
		return nil, err
	}
	d.Model = m
	return d, nil
}

func decodeOperator(b []byte) (Operator, artifact.Layer, error) {
	var (
		op    Operator
		layer artifact.Layer
	)
	err := walk(b, func(f field) error {
		switch f.num {
		case fOpName:
			op.Name = string(f.raw)
		case fOpKind:
			op.Kind = string(f.raw)
		case fOpSet:
			op.OpSet = OpSet(f.v)
		case fOpAttrs:
			if err := json.Unmarshal(f.raw, &layer.Config); err != nil {
				return fmt.Errorf("operator attrs: %w", err)
			}
		case fOpTensors:
			op.Tensors = append(op.Tensors, string(f.raw))
		}
		return nil
	})
	layer.Name, layer.Kind = op.Name, op.Kind
	return op, layer, err
}

func decodeTensor(b []byte, into map[string]*tensor.Tensor, scales map[string]float32) error {
	var (
		name  string
		shape tensor.Shape
		dtype DType
		scale float32
		data  []byte
	)
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case fTensorName:
			name = string(f.raw)
		case fTensorShape:
			shape, err = unpackInts(f.raw)
		case fTensorDType:
			dtype = DType(f.v)
		case fTensorScale:
			scale = math.Float32frombits(uint32(f.v))
		case fTensorData:
			data = f.raw
		}
		return err
	})
	if err != nil {
		return err
	}
	if _, dup := into[name]; dup {
		return fmt.Errorf("duplicate tensor %q", name)
	}
	var values []float32
	switch dtype {
	case Float32:
		if values, err = tensor.DecodeLE(data); err != nil {
			return fmt.Errorf("tensor %q: %w", name, err)
		}
	case Int8:
		values = make([]float32, len(data))
		for i, v := range data {
			values[i] = float32(int8(v)) * scale
		}
		scales[name] = scale
	default:
		return fmt.Errorf("tensor %q: unknown dtype %d", name, dtype)
	}
	t, err := tensor.FromData(shape, values)
	if err != nil {
		return fmt.Errorf("tensor %q: %w", name, err)
	}
	into[name] = t
	return nil
}

// Load reads and decodes a mobile artifact from disk.
func Load(path string) (*Decoded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
