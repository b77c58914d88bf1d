// Package tensor holds the dense float32 tensor used by the artifact formats
// and the executor. Layout is row-major; image tensors are NHWC.
package tensor

import (
	"fmt"
	"strconv"
	"strings"
)

// Shape lists dimension sizes, outermost first.
type Shape []int

// Size returns the number of elements described by the shape.
// An empty shape describes a scalar (size 1).
func (s Shape) Size() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Equal reports whether both shapes have the same rank and dimensions.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Valid reports whether every dimension is positive.
func (s Shape) Valid() bool {
	for _, d := range s {
		if d <= 0 {
			return false
		}
	}
	return true
}

// Clone returns a copy that does not alias s.
func (s Shape) Clone() Shape { return append(Shape(nil), s...) }

// Int64 converts the shape for APIs that take int64 dimensions.
func (s Shape) Int64() []int64 {
	out := make([]int64, len(s))
	for i, d := range s {
		out[i] = int64(d)
	}
	return out
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.Itoa(d)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// FromInt64 converts int64 dimensions into a Shape.
func FromInt64(dims []int64) Shape {
	out := make(Shape, len(dims))
	for i, d := range dims {
		out[i] = int(d)
	}
	return out
}

// Tensor is a dense float32 tensor.
type Tensor struct {
	Shape Shape
	Data  []float32
}

// New allocates a zero tensor of the given shape.
func New(shape Shape) *Tensor {
	return &Tensor{Shape: shape.Clone(), Data: make([]float32, shape.Size())}
}

// FromData wraps data without copying. It fails when the length does not match the shape.
func FromData(shape Shape, data []float32) (*Tensor, error) {
	if !shape.Valid() {
		return nil, fmt.Errorf("invalid shape %s", shape)
	}
	if len(data) != shape.Size() {
		return nil, fmt.Errorf("shape %s needs %d values, got %d", shape, shape.Size(), len(data))
	}
	return &Tensor{Shape: shape.Clone(), Data: data}, nil
}

// Clone deep-copies the tensor.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{Shape: t.Shape.Clone(), Data: append([]float32(nil), t.Data...)}
}

// Reshape returns a view with a new shape over the same data.
func (t *Tensor) Reshape(shape Shape) (*Tensor, error) {
	if shape.Size() != len(t.Data) {
		return nil, fmt.Errorf("cannot reshape %s into %s", t.Shape, shape)
	}
	return &Tensor{Shape: shape.Clone(), Data: t.Data}, nil
}

// Batch returns the i-th item along the first axis as a view.
func (t *Tensor) Batch(i int) *Tensor {
	inner := t.Shape[1:]
	n := inner.Size()
	return &Tensor{Shape: inner.Clone(), Data: t.Data[i*n : (i+1)*n]}
}
