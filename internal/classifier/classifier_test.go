package classifier

import (
	"context"
	"errors"
	"image/color"
	"math"
	"testing"

	"imgclf/internal/artifact"
	"imgclf/internal/artifact/artifacttest"
	"imgclf/internal/format"
	"imgclf/internal/imageproc"
	"imgclf/internal/runtime"
	"imgclf/internal/tensor"
)

func mustModel(t *testing.T, m *artifact.Model) runtime.Model {
	t.Helper()
	rm, err := runtime.FromArtifact(m)
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	return rm
}

func TestPredictFixedScores(t *testing.T) {
	model := mustModel(t, artifacttest.FixedScores(16, []float32{0.1, 0.7, 0.05, 0.15}))
	svc, err := New(model, []string{"cat", "dog", "bird", "fish"}, Options{ExpectedInputSize: 16})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	img := artifacttest.SolidPNG(t, 40, 30, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	r, err := svc.Predict(context.Background(), img)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if r.Label != "dog" || r.Index != 1 || r.Confidence != 0.7 {
		t.Fatalf("got %+v", r)
	}
	want := []float32{0.1, 0.7, 0.05, 0.15}
	for i := range want {
		if r.Scores[i] != want[i] {
			t.Fatalf("scores: %v", r.Scores)
		}
	}
	top := TopK(r, svc.Labels(), 2)
	if len(top) != 2 || top[0].Label != "dog" || top[1].Label != "fish" {
		t.Fatalf("top-2: %+v", top)
	}
}

func TestPredictIsDeterministic(t *testing.T) {
	model := mustModel(t, artifacttest.CNN(artifacttest.Options{Seed: 42}))
	svc, err := New(model, []string{"a", "b", "c"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	img := artifacttest.SolidPNG(t, 12, 12, color.NRGBA{R: 90, G: 180, B: 30, A: 255})
	first, err := svc.Predict(context.Background(), img)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := svc.Predict(context.Background(), img)
		if err != nil {
			t.Fatal(err)
		}
		for j := range first.Scores {
			if math.Float32bits(first.Scores[j]) != math.Float32bits(again.Scores[j]) {
				t.Fatalf("run %d differs at %d", i, j)
			}
		}
	}
}

func TestPredictRejectsNonImage(t *testing.T) {
	svc, err := New(mustModel(t, artifacttest.CNN(artifacttest.Options{})), []string{"a", "b", "c"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = svc.Predict(context.Background(), []byte("%PDF-1.4 definitely not an image"))
	if !IsDecodeError(err) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	var se interface{ StatusCode() int }
	if !errors.As(err, &se) || se.StatusCode() != 400 {
		t.Fatalf("expected 400 status, got %v", err)
	}
}

func TestPredictRejectsImageAbovePixelBudget(t *testing.T) {
	model := mustModel(t, artifacttest.FixedScores(16, []float32{0.1, 0.7, 0.05, 0.15}))
	svc, err := New(model, []string{"cat", "dog", "bird", "fish"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = svc.Predict(context.Background(), artifacttest.PNGHeader(20000, 20000))
	if !IsDecodeError(err) || !errors.Is(err, imageproc.ErrTooLarge) {
		t.Fatalf("expected DecodeError wrapping ErrTooLarge, got %v", err)
	}

	small, err := New(model, []string{"cat", "dog", "bird", "fish"}, Options{MaxImagePixels: 32 * 32})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := small.Predict(context.Background(), artifacttest.SolidPNG(t, 33, 32, color.Black)); !IsDecodeError(err) {
		t.Fatalf("expected DecodeError for 33x32 under a 32x32 budget, got %v", err)
	}
	if _, err := small.Predict(context.Background(), artifacttest.SolidPNG(t, 32, 32, color.Black)); err != nil {
		t.Fatalf("32x32 fits: %v", err)
	}
	if _, err := New(model, []string{"cat", "dog", "bird", "fish"}, Options{MaxImagePixels: -1}); err == nil {
		t.Fatalf("expected error for negative pixel budget")
	}
}

func TestNewFailsFast(t *testing.T) {
	model := mustModel(t, artifacttest.CNN(artifacttest.Options{Size: 8}))
	if _, err := New(model, []string{"a", "b"}, Options{}); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("label mismatch: %v", err)
	}
	if _, err := New(model, []string{"a", "b", "c"}, Options{ExpectedInputSize: 128}); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("size mismatch: %v", err)
	}
}

// nanModel returns NaN scores to exercise the inference error path.
type nanModel struct{ runtime.Model }

func (nanModel) Forward(context.Context, *tensor.Tensor) (*tensor.Tensor, error) {
	return &tensor.Tensor{Shape: tensor.Shape{1, 2}, Data: []float32{float32(math.NaN()), 1}}, nil
}
func (nanModel) Format() format.Kind { return format.Bundle }

func TestPredictNonFiniteIsInferenceError(t *testing.T) {
	base := mustModel(t, artifacttest.FixedScores(4, []float32{0, 1}))
	svc, err := New(nanModel{base}, []string{"x", "y"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = svc.Predict(context.Background(), artifacttest.SolidPNG(t, 4, 4, color.White))
	if !IsInferenceError(err) {
		t.Fatalf("expected InferenceError, got %v", err)
	}
}

func TestArgmaxTiesPickLowestIndex(t *testing.T) {
	if got := Argmax([]float32{0.2, 0.4, 0.4, 0.1}); got != 1 {
		t.Fatalf("got %d", got)
	}
	r := Result{Scores: []float32{0.3, 0.3, 0.4}}
	top := TopK(r, []string{"a", "b", "c"}, 0)
	if top[0].Index != 2 || top[1].Index != 0 || top[2].Index != 1 {
		t.Fatalf("ranking: %+v", top)
	}
}
