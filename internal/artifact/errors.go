package artifact

import "errors"

// LoadError reports a model artifact that is missing, unreadable or
// structurally invalid.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return "load model: " + e.Err.Error()
	}
	return "load model " + e.Path + ": " + e.Err.Error()
}

func (e *LoadError) Unwrap() error { return e.Err }

// IsLoadError reports whether err wraps a *LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}
