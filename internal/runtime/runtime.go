// Package runtime opens a model artifact in any supported format and exposes
// a single forward-pass interface to the inference service and the
// conversion verifier.
package runtime

import (
	"context"
	"fmt"

	"imgclf/internal/artifact"
	"imgclf/internal/common/fsutil"
	"imgclf/internal/format"
	"imgclf/internal/format/browser"
	"imgclf/internal/format/mobile"
	"imgclf/internal/nn"
	"imgclf/internal/tensor"
)

// Model is a loaded, executable classifier.
type Model interface {
	// Signature is the declared input/output contract.
	Signature() artifact.Signature
	// Forward runs a (batch, h, w, c) input and returns (batch, classes).
	Forward(ctx context.Context, x *tensor.Tensor) (*tensor.Tensor, error)
	// Format reports which on-disk format the model came from.
	Format() format.Kind
	Close() error
}

// Open detects the format of path and loads it. Every failure is an
// *artifact.LoadError.
func Open(path string) (Model, error) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, &artifact.LoadError{Path: path, Err: err}
	}
	kind, err := format.Detect(p)
	if err != nil {
		return nil, &artifact.LoadError{Path: path, Err: err}
	}
	var m Model
	switch kind {
	case format.Bundle:
		var src *artifact.Model
		if src, err = artifact.Load(p); err == nil {
			m, err = newNative(src, kind)
		}
	case format.Browser:
		var src *artifact.Model
		if src, err = browser.Load(p); err == nil {
			m, err = newNative(src, kind)
		}
	case format.Mobile:
		var d *mobile.Decoded
		if d, err = mobile.Load(p); err == nil {
			m, err = newNative(d.Model, kind)
		}
	case format.ONNX:
		m, err = openONNX(p)
	default:
		err = fmt.Errorf("unsupported format %q", kind)
	}
	if err != nil {
		if artifact.IsLoadError(err) {
			return nil, err
		}
		return nil, &artifact.LoadError{Path: path, Err: err}
	}
	return m, nil
}

// FromArtifact wraps an in-memory model with the native executor.
func FromArtifact(m *artifact.Model) (Model, error) {
	return newNative(m, format.Bundle)
}

type native struct {
	net  *nn.Network
	kind format.Kind
}

func newNative(m *artifact.Model, kind format.Kind) (*native, error) {
	net, err := nn.Compile(m)
	if err != nil {
		return nil, err
	}
	return &native{net: net, kind: kind}, nil
}

func (n *native) Signature() artifact.Signature { return n.net.Signature() }
func (n *native) Format() format.Kind           { return n.kind }
func (n *native) Close() error                  { return nil }

func (n *native) Forward(ctx context.Context, x *tensor.Tensor) (*tensor.Tensor, error) {
	return n.net.Forward(ctx, x)
}
