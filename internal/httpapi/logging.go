package httpapi

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, falls back to log.Printf.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch s {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// global default, read once
var defaultLogLevel = parseLevel(os.Getenv("IMGCLF_LOG_LEVEL"))

// SetDefaultLogLevel overrides the level used when a request names none.
func SetDefaultLogLevel(s string) { defaultLogLevel = parseLevel(s) }

func requestLogLevel(r *http.Request) LogLevel {
	// Per-request overrides
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// logPredictStart records an accepted upload.
func logPredictStart(r *http.Request, lvl LogLevel, size int) {
	if lvl < LevelInfo {
		return
	}
	if zlog == nil {
		log.Printf("predict start path=%s bytes=%d", r.URL.Path, size)
		return
	}
	z := zlog.Info().Str("path", r.URL.Path).Int("bytes", size)
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		z = z.Str("request_id", rid)
	}
	z.Msg("predict start")
}

// logPredictEnd records the outcome. Failures are logged from LevelError,
// successes from LevelInfo, and scores only at LevelDebug.
func logPredictEnd(r *http.Request, lvl LogLevel, status int, start time.Time, class string, scores []float32, err error) {
	if lvl < LevelError || (err == nil && lvl < LevelInfo) {
		return
	}
	dur := time.Since(start)
	if zlog == nil {
		if err != nil {
			log.Printf("predict end status=%d dur=%s err=%v", status, dur, err)
		} else {
			log.Printf("predict end status=%d dur=%s class=%s", status, dur, class)
		}
		return
	}
	z := zlog.Info()
	if err != nil {
		z = zlog.Error()
	}
	z = z.Int("status", status).Dur("dur", dur)
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		z = z.Str("request_id", rid)
	}
	if err != nil {
		z.Err(err).Msg("predict end")
		return
	}
	z = z.Str("class", class)
	if lvl >= LevelDebug {
		z = z.Interface("all_scores", scores)
	}
	z.Msg("predict end")
}
