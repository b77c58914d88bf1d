// Package nn executes the sequential layer graph of a model artifact in pure
// Go. Tensors are NHWC with the batch dimension first. Execution is
// deterministic: the same input always yields the same output bits.
package nn

import (
	"context"
	"fmt"

	"imgclf/internal/artifact"
	"imgclf/internal/tensor"
)

// op transforms a single sample (no batch dimension).
type op func(in *tensor.Tensor) *tensor.Tensor

type step struct {
	name string
	kind string
	out  tensor.Shape
	run  op
}

// Network is a compiled, immutable forward pass. It is safe for concurrent
// use.
type Network struct {
	sig   artifact.Signature
	steps []step
}

// Compile validates m and binds every layer to its kernel.
func Compile(m *artifact.Model) (*Network, error) {
	infos, err := m.Validate()
	if err != nil {
		return nil, err
	}
	n := &Network{sig: m.Signature()}
	for _, l := range infos {
		run, err := bind(m, l)
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", l.Name, err)
		}
		n.steps = append(n.steps, step{name: l.Name, kind: l.Kind, out: l.OutputShape, run: run})
	}
	return n, nil
}

// Signature returns the network's input/output contract.
func (n *Network) Signature() artifact.Signature { return n.sig }

// Forward runs a batch through the graph. x must have shape
// (batch, h, w, c); the result has shape (batch, classes). ctx is checked
// between layers.
func (n *Network) Forward(ctx context.Context, x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 || !x.Shape[1:].Equal(n.sig.InputShape) {
		return nil, fmt.Errorf("input shape %s, want (batch,%d,%d,%d)", x.Shape, n.sig.Height(), n.sig.Width(), n.sig.Channels())
	}
	batch := x.Shape[0]
	outShape := append(tensor.Shape{batch}, n.sig.OutputShape...)
	out := tensor.New(outShape)
	per := n.sig.OutputShape.Size()
	for b := 0; b < batch; b++ {
		cur := x.Batch(b)
		for _, s := range n.steps {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			cur = s.run(cur)
		}
		copy(out.Data[b*per:(b+1)*per], cur.Data)
	}
	return out, nil
}

func bind(m *artifact.Model, l artifact.LayerInfo) (op, error) {
	c := l.Config
	switch l.Kind {
	case artifact.KindRescaling:
		return rescale(float32(*c.Scale), float32(c.Offset)), nil
	case artifact.KindConv2D:
		act, err := activation(c.Activation)
		if err != nil {
			return nil, err
		}
		return conv2D(l, m.Weight(l.Name, artifact.ParamKernel), m.Weight(l.Name, artifact.ParamBias), act), nil
	case artifact.KindMaxPooling2D:
		return maxPool(l), nil
	case artifact.KindBatchNormalization:
		return batchNorm(
			m.Weight(l.Name, artifact.ParamGamma), m.Weight(l.Name, artifact.ParamBeta),
			m.Weight(l.Name, artifact.ParamMean), m.Weight(l.Name, artifact.ParamVariance),
			float32(c.EpsilonOr())), nil
	case artifact.KindUnitNormalization:
		return unitNorm, nil
	case artifact.KindFlatten:
		return flatten, nil
	case artifact.KindGlobalAveragePooling2D:
		return globalAvgPool, nil
	case artifact.KindDense:
		act, err := activation(c.Activation)
		if err != nil {
			return nil, err
		}
		return dense(m.Weight(l.Name, artifact.ParamKernel), m.Weight(l.Name, artifact.ParamBias), act), nil
	case artifact.KindDropout:
		return identity, nil
	case artifact.KindActivation:
		act, err := activation(c.Activation)
		if err != nil {
			return nil, err
		}
		return func(in *tensor.Tensor) *tensor.Tensor {
			out := in.Clone()
			act(out.Data, lastDim(out.Shape))
			return out
		}, nil
	}
	return nil, fmt.Errorf("no kernel for kind %q", l.Kind)
}

func lastDim(s tensor.Shape) int { return s[len(s)-1] }

func identity(in *tensor.Tensor) *tensor.Tensor { return in }
