package classifier

import (
	"errors"
	"net/http"
)

// DecodeError means the uploaded bytes are not a decodable image. It maps
// to 400.
type DecodeError struct{ Err error }

func (e *DecodeError) Error() string   { return "invalid image: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error   { return e.Err }
func (e *DecodeError) StatusCode() int { return http.StatusBadRequest }

// InferenceError means the model failed to produce usable scores. It maps to
// 500.
type InferenceError struct{ Err error }

func (e *InferenceError) Error() string   { return "inference failed: " + e.Err.Error() }
func (e *InferenceError) Unwrap() error   { return e.Err }
func (e *InferenceError) StatusCode() int { return http.StatusInternalServerError }

// IsDecodeError reports whether err wraps a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IsInferenceError reports whether err wraps an *InferenceError.
func IsInferenceError(err error) bool {
	var ie *InferenceError
	return errors.As(err, &ie)
}

// ErrNotReady is returned while no model has been published. It maps to 503.
var ErrNotReady error = notReadyError{}

type notReadyError struct{}

func (notReadyError) Error() string   { return "model is still loading" }
func (notReadyError) StatusCode() int { return http.StatusServiceUnavailable }
