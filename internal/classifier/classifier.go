// Package classifier is the inference service core: it owns the loaded
// model and label table and turns image bytes into a prediction. The
// service holds no mutable state after New, so Predict is safe for
// concurrent use.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"imgclf/internal/artifact"
	"imgclf/internal/imageproc"
	"imgclf/internal/runtime"
)

// Options tune service construction.
type Options struct {
	// ExpectedInputSize is the resize target the operator configured. When
	// non-zero it must equal both declared input dimensions of the model.
	ExpectedInputSize int
	// MaxImagePixels bounds width*height of an upload, read from the image
	// header before decoding. Zero selects imageproc.DefaultMaxPixels.
	MaxImagePixels int
}

// Service answers predictions for one model.
type Service struct {
	model  runtime.Model
	labels []string
	sig    artifact.Signature
	maxPx  int
}

// Result is one prediction. Scores are index-aligned with the label table.
type Result struct {
	Label      string    `json:"class"`
	Index      int       `json:"index"`
	Confidence float32   `json:"confidence"`
	Scores     []float32 `json:"all_scores"`
}

// Ranked is one entry of a top-k list.
type Ranked struct {
	Label string  `json:"class"`
	Index int     `json:"index"`
	Score float32 `json:"score"`
}

// ErrShapeMismatch is wrapped by construction errors about model shape.
var ErrShapeMismatch = errors.New("model shape mismatch")

// New validates that model and labels agree and returns the service.
func New(model runtime.Model, labels []string, o Options) (*Service, error) {
	sig := model.Signature()
	if err := sig.Validate(); err != nil {
		return nil, fmt.Errorf("model signature: %w", err)
	}
	if sig.Channels() != 3 {
		return nil, fmt.Errorf("%w: model expects %d input channels, service feeds RGB", ErrShapeMismatch, sig.Channels())
	}
	if len(labels) != sig.Classes() {
		return nil, fmt.Errorf("%w: label table has %d entries, model has %d outputs", ErrShapeMismatch, len(labels), sig.Classes())
	}
	if n := o.ExpectedInputSize; n > 0 && (sig.Height() != n || sig.Width() != n) {
		return nil, fmt.Errorf("%w: configured input size %dx%d, model declares %dx%d", ErrShapeMismatch, n, n, sig.Height(), sig.Width())
	}
	sig.Preprocessing = sig.Preprocessing.Normalized()
	if o.MaxImagePixels < 0 {
		return nil, fmt.Errorf("max image pixels must not be negative")
	}
	return &Service{model: model, labels: append([]string(nil), labels...), sig: sig, maxPx: o.MaxImagePixels}, nil
}

// Signature returns the model's input/output contract.
func (s *Service) Signature() artifact.Signature { return s.sig }

// Labels returns a copy of the label table.
func (s *Service) Labels() []string { return append([]string(nil), s.labels...) }

// Model returns the underlying runtime model.
func (s *Service) Model() runtime.Model { return s.model }

// Format names the on-disk format the model was loaded from.
func (s *Service) Format() string { return string(s.model.Format()) }

// Ready is always true; a constructed Service has a model.
func (s *Service) Ready() bool { return true }

// Predict classifies one encoded image.
func (s *Service) Predict(ctx context.Context, data []byte) (Result, error) {
	img, _, err := imageproc.DecodeLimit(data, s.maxPx)
	if err != nil {
		return Result{}, &DecodeError{Err: err}
	}
	x, err := imageproc.FromImage(img, s.sig)
	if err != nil {
		return Result{}, &InferenceError{Err: err}
	}
	y, err := s.model.Forward(ctx, x)
	if err != nil {
		return Result{}, &InferenceError{Err: err}
	}
	scores := y.Batch(0).Data
	if len(scores) != len(s.labels) {
		return Result{}, &InferenceError{Err: fmt.Errorf("model returned %d scores for %d labels", len(scores), len(s.labels))}
	}
	for i, v := range scores {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return Result{}, &InferenceError{Err: fmt.Errorf("non-finite score at index %d", i)}
		}
	}
	best := Argmax(scores)
	return Result{
		Label:      s.labels[best],
		Index:      best,
		Confidence: scores[best],
		Scores:     append([]float32(nil), scores...),
	}, nil
}

// Argmax returns the index of the largest score. Ties go to the lowest
// index.
func Argmax(scores []float32) int {
	best := 0
	for i, v := range scores {
		if v > scores[best] {
			best = i
		}
	}
	return best
}

// TopK ranks the k best scores of r, highest first, ties by lowest index.
// k <= 0 or larger than the class count returns every class.
func TopK(r Result, labels []string, k int) []Ranked {
	out := make([]Ranked, len(r.Scores))
	for i, v := range r.Scores {
		out[i] = Ranked{Index: i, Score: v}
		if i < len(labels) {
			out[i].Label = labels[i]
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out
}
