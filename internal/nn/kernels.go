package nn

import (
	"fmt"
	"math"

	"imgclf/internal/artifact"
	"imgclf/internal/tensor"
)

// actFunc applies an activation in place. width is the size of the last
// axis, which softmax normalizes over.
type actFunc func(v []float32, width int)

func activation(name string) (actFunc, error) {
	switch name {
	case "", artifact.ActLinear:
		return func([]float32, int) {}, nil
	case artifact.ActReLU:
		return func(v []float32, _ int) {
			for i, x := range v {
				if x < 0 {
					v[i] = 0
				}
			}
		}, nil
	case artifact.ActReLU6:
		return func(v []float32, _ int) {
			for i, x := range v {
				v[i] = min(max(x, 0), 6)
			}
		}, nil
	case artifact.ActSigmoid:
		return func(v []float32, _ int) {
			for i, x := range v {
				v[i] = float32(1 / (1 + math.Exp(-float64(x))))
			}
		}, nil
	case artifact.ActTanh:
		return func(v []float32, _ int) {
			for i, x := range v {
				v[i] = float32(math.Tanh(float64(x)))
			}
		}, nil
	case artifact.ActSoftmax:
		return softmax, nil
	}
	return nil, fmt.Errorf("unknown activation %q", name)
}

func softmax(v []float32, width int) {
	for off := 0; off+width <= len(v); off += width {
		row := v[off : off+width]
		hi := row[0]
		for _, x := range row[1:] {
			hi = max(hi, x)
		}
		var sum float64
		for i, x := range row {
			e := math.Exp(float64(x - hi))
			row[i] = float32(e)
			sum += e
		}
		for i := range row {
			row[i] = float32(float64(row[i]) / sum)
		}
	}
}

func rescale(scale, offset float32) op {
	return func(in *tensor.Tensor) *tensor.Tensor {
		out := tensor.New(in.Shape)
		for i, x := range in.Data {
			out.Data[i] = x*scale + offset
		}
		return out
	}
}

// conv2D is a direct NHWC convolution. kernel is (kh, kw, cin, cout).
func conv2D(l artifact.LayerInfo, kernel, bias *tensor.Tensor, act actFunc) op {
	c := l.Config
	kh, kw := c.KernelSize[0], c.KernelSize[1]
	s := c.StrideOr([]int{1, 1})
	sh, sw := s[0], s[1]
	h, w, cin := l.InputShape[0], l.InputShape[1], l.InputShape[2]
	oh, ow, cout := l.OutputShape[0], l.OutputShape[1], l.OutputShape[2]
	padT, padL := 0, 0
	if c.PaddingOr() == artifact.PaddingSame {
		padT = artifact.SamePadding(h, kh, sh)
		padL = artifact.SamePadding(w, kw, sw)
	}
	return func(in *tensor.Tensor) *tensor.Tensor {
		out := tensor.New(l.OutputShape)
		acc := make([]float32, cout)
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				if bias != nil {
					copy(acc, bias.Data)
				} else {
					clear(acc)
				}
				for ky := 0; ky < kh; ky++ {
					iy := oy*sh + ky - padT
					if iy < 0 || iy >= h {
						continue
					}
					for kx := 0; kx < kw; kx++ {
						ix := ox*sw + kx - padL
						if ix < 0 || ix >= w {
							continue
						}
						px := in.Data[(iy*w+ix)*cin : (iy*w+ix+1)*cin]
						kbase := (ky*kw + kx) * cin * cout
						for ci, v := range px {
							krow := kernel.Data[kbase+ci*cout : kbase+(ci+1)*cout]
							for co, k := range krow {
								acc[co] += v * k
							}
						}
					}
				}
				copy(out.Data[(oy*ow+ox)*cout:], acc)
			}
		}
		act(out.Data, cout)
		return out
	}
}

// maxPool ignores padded positions, so "same" borders take the max of the
// real pixels only.
func maxPool(l artifact.LayerInfo) op {
	c := l.Config
	pool := c.PoolSizeOr()
	s := c.StrideOr(pool)
	h, w, ch := l.InputShape[0], l.InputShape[1], l.InputShape[2]
	oh, ow := l.OutputShape[0], l.OutputShape[1]
	padT, padL := 0, 0
	if c.PaddingOr() == artifact.PaddingSame {
		padT = artifact.SamePadding(h, pool[0], s[0])
		padL = artifact.SamePadding(w, pool[1], s[1])
	}
	return func(in *tensor.Tensor) *tensor.Tensor {
		out := tensor.New(l.OutputShape)
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				dst := out.Data[(oy*ow+ox)*ch : (oy*ow+ox+1)*ch]
				for i := range dst {
					dst[i] = float32(math.Inf(-1))
				}
				for py := 0; py < pool[0]; py++ {
					iy := oy*s[0] + py - padT
					if iy < 0 || iy >= h {
						continue
					}
					for px := 0; px < pool[1]; px++ {
						ix := ox*s[1] + px - padL
						if ix < 0 || ix >= w {
							continue
						}
						src := in.Data[(iy*w+ix)*ch : (iy*w+ix+1)*ch]
						for i, v := range src {
							dst[i] = max(dst[i], v)
						}
					}
				}
			}
		}
		return out
	}
}

func batchNorm(gamma, beta, mean, variance *tensor.Tensor, eps float32) op {
	n := len(gamma.Data)
	mul := make([]float32, n)
	add := make([]float32, n)
	for i := 0; i < n; i++ {
		mul[i] = gamma.Data[i] / float32(math.Sqrt(float64(variance.Data[i]+eps)))
		add[i] = beta.Data[i] - mean.Data[i]*mul[i]
	}
	return func(in *tensor.Tensor) *tensor.Tensor {
		out := tensor.New(in.Shape)
		for i, x := range in.Data {
			c := i % n
			out.Data[i] = x*mul[c] + add[c]
		}
		return out
	}
}

// unitNorm scales each vector along the last axis to unit L2 norm.
func unitNorm(in *tensor.Tensor) *tensor.Tensor {
	out := tensor.New(in.Shape)
	width := lastDim(in.Shape)
	for off := 0; off < len(in.Data); off += width {
		var ss float64
		for _, x := range in.Data[off : off+width] {
			ss += float64(x) * float64(x)
		}
		inv := 1 / math.Sqrt(max(ss, 1e-12))
		for i, x := range in.Data[off : off+width] {
			out.Data[off+i] = float32(float64(x) * inv)
		}
	}
	return out
}

func flatten(in *tensor.Tensor) *tensor.Tensor {
	return &tensor.Tensor{Shape: tensor.Shape{len(in.Data)}, Data: in.Data}
}

func globalAvgPool(in *tensor.Tensor) *tensor.Tensor {
	h, w, ch := in.Shape[0], in.Shape[1], in.Shape[2]
	sums := make([]float64, ch)
	for p := 0; p < h*w; p++ {
		for c, v := range in.Data[p*ch : (p+1)*ch] {
			sums[c] += float64(v)
		}
	}
	out := tensor.New(tensor.Shape{ch})
	for c, s := range sums {
		out.Data[c] = float32(s / float64(h*w))
	}
	return out
}

// dense computes x·kernel + bias with kernel shaped (in, units).
func dense(kernel, bias *tensor.Tensor, act actFunc) op {
	units := kernel.Shape[1]
	return func(in *tensor.Tensor) *tensor.Tensor {
		out := tensor.New(tensor.Shape{units})
		if bias != nil {
			copy(out.Data, bias.Data)
		}
		for i, x := range in.Data {
			if x == 0 {
				continue
			}
			row := kernel.Data[i*units : (i+1)*units]
			for j, k := range row {
				out.Data[j] += x * k
			}
		}
		act(out.Data, units)
		return out
	}
}
