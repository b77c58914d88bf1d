package artifact

import (
	"fmt"

	"imgclf/internal/tensor"
)

// LayerInfo is the result of shape inference for one layer.
type LayerInfo struct {
	Layer
	InputShape  tensor.Shape
	OutputShape tensor.Shape
	Params      []WeightSpec
}

// ParamCount sums the elements of every parameter tensor of the layer.
func (l LayerInfo) ParamCount() int {
	n := 0
	for _, p := range l.Params {
		n += p.Shape.Size()
	}
	return n
}

// Plan runs shape inference over layers starting at sig.InputShape. It fails
// on unknown kinds, duplicate names, bad configs, or when the final shape
// differs from sig.OutputShape.
func Plan(sig Signature, layers []Layer) ([]LayerInfo, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("graph has no layers")
	}
	seen := make(map[string]bool, len(layers))
	cur := sig.InputShape.Clone()
	infos := make([]LayerInfo, 0, len(layers))
	for i, l := range layers {
		if l.Name == "" {
			return nil, fmt.Errorf("layer %d has no name", i)
		}
		if seen[l.Name] {
			return nil, fmt.Errorf("duplicate layer name %q", l.Name)
		}
		seen[l.Name] = true
		spec, ok := LookupKind(l.Kind)
		if !ok {
			return nil, fmt.Errorf("layer %q: unknown kind %q", l.Name, l.Kind)
		}
		out, params, err := spec.infer(l.Config, cur)
		if err != nil {
			return nil, fmt.Errorf("layer %q (%s): %w", l.Name, l.Kind, err)
		}
		info := LayerInfo{Layer: l, InputShape: cur, OutputShape: out}
		for _, p := range params {
			info.Params = append(info.Params, WeightSpec{Name: WeightName(l.Name, p.name), Shape: p.shape, DType: DTypeFloat32})
		}
		infos = append(infos, info)
		cur = out
	}
	if !cur.Equal(sig.OutputShape) {
		return nil, fmt.Errorf("graph output %s does not match declared output shape %s", cur, sig.OutputShape)
	}
	return infos, nil
}

// Manifest flattens the parameter specs of a plan in layer order.
func Manifest(infos []LayerInfo) []WeightSpec {
	var out []WeightSpec
	for _, l := range infos {
		out = append(out, l.Params...)
	}
	return out
}

// Validate checks the full model: signature, graph, and that every expected
// weight is present with the right shape and no extra weights exist.
func (m *Model) Validate() ([]LayerInfo, error) {
	infos, err := Plan(m.Metadata.Signature, m.Layers)
	if err != nil {
		return nil, err
	}
	expected := Manifest(infos)
	if len(expected) != len(m.Weights) {
		return nil, fmt.Errorf("model has %d weight tensors, graph needs %d", len(m.Weights), len(expected))
	}
	for _, spec := range expected {
		w, ok := m.Weights[spec.Name]
		if !ok || w == nil {
			return nil, fmt.Errorf("missing weight %q", spec.Name)
		}
		if !w.Shape.Equal(spec.Shape) {
			return nil, fmt.Errorf("weight %q has shape %s, want %s", spec.Name, w.Shape, spec.Shape)
		}
		if len(w.Data) != spec.Shape.Size() {
			return nil, fmt.Errorf("weight %q has %d values, want %d", spec.Name, len(w.Data), spec.Shape.Size())
		}
	}
	return infos, nil
}
