package convert

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"imgclf/internal/artifact"
	"imgclf/internal/format"
	"imgclf/internal/format/browser"
	"imgclf/internal/format/mobile"
	"imgclf/internal/runtime"
	"imgclf/internal/tensor"
)

// Default tolerances on the absolute difference of output scores.
const (
	ExactTolerance     = 1e-5
	QuantizedTolerance = 0.05
	DefaultProbes      = 8
)

// VerifyOptions configure Verify.
type VerifyOptions struct {
	SourcePath    string
	ConvertedPath string
	Probes        int
	Seed          uint64
	// Tolerance of zero picks ExactTolerance, or QuantizedTolerance when the
	// converted artifact holds int8 tensors.
	Tolerance float64
}

// VerifyReport is the outcome of a successful comparison.
type VerifyReport struct {
	SourceFormat    format.Kind  `json:"source_format"`
	ConvertedFormat format.Kind  `json:"converted_format"`
	InputShape      tensor.Shape `json:"input_shape"`
	OutputShape     tensor.Shape `json:"output_shape"`
	Probes          int          `json:"probes"`
	MaxAbsDiff      float64      `json:"max_abs_diff"`
	Tolerance       float64      `json:"tolerance"`
}

// Verify runs seeded random probes through both artifacts and checks that
// their shapes match and their outputs agree within tolerance.
func Verify(ctx context.Context, o VerifyOptions) (VerifyReport, error) {
	var rep VerifyReport
	src, err := runtime.Open(o.SourcePath)
	if err != nil {
		return rep, err
	}
	defer src.Close()
	dst, err := runtime.Open(o.ConvertedPath)
	if err != nil {
		return rep, err
	}
	defer dst.Close()

	ss, ds := src.Signature(), dst.Signature()
	rep.SourceFormat, rep.ConvertedFormat = src.Format(), dst.Format()
	rep.InputShape, rep.OutputShape = ss.InputShape, ss.OutputShape
	if !ss.InputShape.Equal(ds.InputShape) || !ss.OutputShape.Equal(ds.OutputShape) {
		return rep, &ConversionError{Step: "verify", Err: fmt.Errorf("shape mismatch: source %s->%s, converted %s->%s",
			ss.InputShape, ss.OutputShape, ds.InputShape, ds.OutputShape)}
	}

	rep.Tolerance = o.Tolerance
	if rep.Tolerance <= 0 {
		rep.Tolerance = ExactTolerance
		if quantized(o.ConvertedPath) {
			rep.Tolerance = QuantizedTolerance
		}
	}
	rep.Probes = o.Probes
	if rep.Probes <= 0 {
		rep.Probes = DefaultProbes
	}

	x := tensor.New(append(tensor.Shape{rep.Probes}, ss.InputShape...))
	rng := rand.New(rand.NewPCG(o.Seed, o.Seed+1))
	for i := range x.Data {
		x.Data[i] = float32(rng.IntN(256))
	}
	a, err := src.Forward(ctx, x)
	if err != nil {
		return rep, err
	}
	b, err := dst.Forward(ctx, x)
	if err != nil {
		return rep, err
	}
	for i := range a.Data {
		rep.MaxAbsDiff = max(rep.MaxAbsDiff, math.Abs(float64(a.Data[i])-float64(b.Data[i])))
	}
	if math.IsNaN(rep.MaxAbsDiff) || rep.MaxAbsDiff > rep.Tolerance {
		return rep, &ConversionError{Step: "verify", Err: fmt.Errorf("max abs difference %.6g exceeds tolerance %.6g", rep.MaxAbsDiff, rep.Tolerance)}
	}
	return rep, nil
}

func quantized(path string) bool {
	kind, err := format.Detect(path)
	if err != nil || kind != format.Mobile {
		return false
	}
	d, err := mobile.Load(path)
	return err == nil && len(d.Scales) > 0
}

// Inspect loads the artifact at path and summarizes it. ONNX artifacts only
// report their signature.
func Inspect(path string) (artifact.Summary, error) {
	kind, err := format.Detect(path)
	if err != nil {
		return artifact.Summary{}, &artifact.LoadError{Path: path, Err: err}
	}
	var m *artifact.Model
	switch kind {
	case format.Bundle:
		m, err = artifact.Load(path)
	case format.Browser:
		m, err = browser.Load(path)
	case format.Mobile:
		var d *mobile.Decoded
		if d, err = mobile.Load(path); err == nil {
			m = d.Model
		}
	default:
		rm, err := runtime.Open(path)
		if err != nil {
			return artifact.Summary{}, err
		}
		defer rm.Close()
		return artifact.Summary{Format: string(kind), Signature: rm.Signature(), SizeBytes: diskSize(path)}, nil
	}
	if err != nil {
		if artifact.IsLoadError(err) {
			return artifact.Summary{}, err
		}
		return artifact.Summary{}, &artifact.LoadError{Path: path, Err: err}
	}
	infos, err := m.Validate()
	if err != nil {
		return artifact.Summary{}, &artifact.LoadError{Path: path, Err: err}
	}
	s := artifact.Summarize(string(kind), m.Metadata.Name, m.Signature(), infos)
	s.SizeBytes = diskSize(path)
	return s, nil
}

// diskSize sums file sizes under path.
func diskSize(path string) int64 {
	var n int64
	_ = filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if info, err := d.Info(); err == nil && !d.IsDir() {
			n += info.Size()
		}
		return nil
	})
	return n
}
