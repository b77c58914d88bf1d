package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/schema"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"imgclf/internal/artifact"
	"imgclf/internal/classifier"
	"imgclf/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
// *classifier.Service and *classifier.Holder implement it.
type Service interface {
	Ready() bool
	Predict(ctx context.Context, data []byte) (classifier.Result, error)
	Labels() []string
	Signature() artifact.Signature
	Format() string
}

var queryDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		origins, methods, headers := corsSettings()
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: methods,
			AllowedHeaders: headers,
			MaxAge:         300,
		}))
	}
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Post("/predict", predictHandler(svc))
	r.Post("/predict/", predictHandler(svc))

	r.Get("/model", func(w http.ResponseWriter, r *http.Request) {
		if !svc.Ready() {
			writeJSONError(w, http.StatusServiceUnavailable, classifier.ErrNotReady.Error())
			return
		}
		sig := svc.Signature()
		writeJSON(w, types.ModelInfo{
			Format:     svc.Format(),
			InputShape: []int(sig.InputShape.Clone()),
			Classes:    sig.Classes(),
			Resize:     sig.Preprocessing.Normalized().Resize,
			Labels:     svc.Labels(),
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

func predictHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lvl := requestLogLevel(r)
		start := time.Now()
		fail := func(kind string, err error) {
			status := statusOf(err)
			IncrementPredictionError(kind)
			writeJSONError(w, status, err.Error())
			logPredictEnd(r, lvl, status, start, "", nil, err)
		}

		if !svc.Ready() {
			fail(ErrKindUnavailable, classifier.ErrNotReady)
			return
		}
		var q types.PredictQuery
		if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil || q.TopK < 0 {
			fail(ErrKindRequest, badRequest("top_k must be a non-negative integer"))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		data, err := readUpload(r)
		if err != nil {
			fail(ErrKindRequest, err)
			return
		}
		logPredictStart(r, lvl, len(data))

		ctx, cancel := predictContext(r.Context(), serverBaseCtx)
		defer cancel()
		res, err := svc.Predict(ctx, data)
		if err != nil {
			// Client gone or server stopping: nobody reads the answer.
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			switch {
			case classifier.IsDecodeError(err):
				fail(ErrKindDecode, err)
			case statusOf(err) == http.StatusServiceUnavailable:
				fail(ErrKindUnavailable, err)
			default:
				fail(ErrKindInference, err)
			}
			return
		}
		observePrediction(res.Label, time.Since(start))

		resp := types.PredictResponse{Class: res.Label, Confidence: res.Confidence, AllScores: res.Scores}
		if q.TopK > 0 {
			for _, rk := range classifier.TopK(res, svc.Labels(), q.TopK) {
				resp.Top = append(resp.Top, types.RankedClass{Class: rk.Label, Index: rk.Index, Score: rk.Score})
			}
		}
		writeJSON(w, resp)
		logPredictEnd(r, lvl, http.StatusOK, start, res.Label, res.Scores, nil)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}
