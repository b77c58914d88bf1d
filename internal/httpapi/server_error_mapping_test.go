package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"imgclf/internal/artifact/artifacttest"
	"imgclf/internal/classifier"
	"imgclf/internal/runtime"
	"imgclf/pkg/types"
)

func newFixedService(t *testing.T) *classifier.Service {
	t.Helper()
	m, err := runtime.FromArtifact(artifacttest.FixedScores(16, []float32{0.1, 0.7, 0.05, 0.15}))
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	svc, err := classifier.New(m, []string{"cat", "dog", "bird", "fish"}, classifier.Options{ExpectedInputSize: 16})
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	return svc
}

func TestPredictEndToEndWithClassifier(t *testing.T) {
	h := NewMux(newFixedService(t))
	img := artifacttest.SolidPNG(t, 32, 24, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
	body, ct := multipartBody(t, "file", img)
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp types.PredictResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Class != "dog" || resp.Confidence != 0.7 {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestPredict_NonImageMaps400(t *testing.T) {
	h := NewMux(newFixedService(t))
	body, ct := multipartBody(t, "file", []byte("this is not an image"))
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	decodeError(t, w)
}

func TestPredict_EmptyUploadMaps400(t *testing.T) {
	h := NewMux(newFixedService(t))
	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(nil))
	req.Header.Set("Content-Type", "image/png")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestPredict_OversizedImageHeaderMaps400(t *testing.T) {
	h := NewMux(newFixedService(t))
	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(artifacttest.PNGHeader(20000, 20000)))
	req.Header.Set("Content-Type", "image/png")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", w.Code, w.Body.String())
	}
	if e := decodeError(t, w); !strings.Contains(e.Error, "too large") {
		t.Fatalf("error=%q", e.Error)
	}
}

func TestPredict_InferenceErrorMaps500(t *testing.T) {
	svc := petService()
	svc.predictErr = &classifier.InferenceError{Err: errors.New("boom")}
	h := NewMux(svc)
	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBufferString("raw"))
	req.Header.Set("Content-Type", "image/png")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestPredict_GenericErrorMaps500(t *testing.T) {
	svc := petService()
	svc.predictErr = context.DeadlineExceeded
	h := NewMux(svc)
	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBufferString("raw"))
	req.Header.Set("Content-Type", "image/png")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestPredict_HolderNotReadyMaps503(t *testing.T) {
	h := NewMux(&classifier.Holder{})
	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBufferString("raw"))
	req.Header.Set("Content-Type", "image/png")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
