//go:build onnx

package runtime

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"imgclf/internal/artifact"
	"imgclf/internal/format"
	"imgclf/internal/tensor"
)

// onnxModel runs an .onnx graph with batch size one. The session is bound to
// pre-allocated tensors, so calls are serialized.
type onnxModel struct {
	mu      sync.Mutex
	sig     artifact.Signature
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func openONNX(path string) (Model, error) {
	meta, err := readONNXMeta(path)
	if err != nil {
		return nil, err
	}
	if lib := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY"); lib != "" {
		ort.SetSharedLibraryPath(lib)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnx runtime: %v: %w", err, ErrDependencyUnavailable)
		}
	}
	inShape := append([]int64{1}, meta.InputShape.Int64()...)
	outShape := append([]int64{1}, meta.OutputShape.Int64()...)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(inShape...))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(outShape...))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	session, err := ort.NewAdvancedSession(path,
		[]string{meta.InputName}, []string{meta.OutputName},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	return &onnxModel{sig: meta.Signature, session: session, input: input, output: output}, nil
}

func (m *onnxModel) Signature() artifact.Signature { return m.sig }
func (m *onnxModel) Format() format.Kind           { return format.ONNX }

func (m *onnxModel) Forward(ctx context.Context, x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 || !x.Shape[1:].Equal(m.sig.InputShape) {
		return nil, fmt.Errorf("input shape %s does not match %s", x.Shape, m.sig.InputShape)
	}
	batch := x.Shape[0]
	per := m.sig.OutputShape.Size()
	out := tensor.New(append(tensor.Shape{batch}, m.sig.OutputShape...))
	m.mu.Lock()
	defer m.mu.Unlock()
	for b := 0; b < batch; b++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		copy(m.input.GetData(), x.Batch(b).Data)
		if err := m.session.Run(); err != nil {
			return nil, fmt.Errorf("onnx run: %w", err)
		}
		copy(out.Data[b*per:(b+1)*per], m.output.GetData())
	}
	return out, nil
}

func (m *onnxModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.input != nil {
		m.input.Destroy()
	}
	if m.output != nil {
		m.output.Destroy()
	}
	if m.session != nil {
		return m.session.Destroy()
	}
	return nil
}
