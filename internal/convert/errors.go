package convert

import "errors"

// ExportError means the model cannot be expressed in the browser format.
type ExportError struct {
	Step string
	Err  error
}

func (e *ExportError) Error() string { return "export (" + e.Step + "): " + e.Err.Error() }
func (e *ExportError) Unwrap() error { return e.Err }

// ConversionError means the mobile converter rejected the model, or a
// converted artifact diverged from its source.
type ConversionError struct {
	Step string
	Err  error
}

func (e *ConversionError) Error() string { return "conversion (" + e.Step + "): " + e.Err.Error() }
func (e *ConversionError) Unwrap() error { return e.Err }

// WriteError means an output could not be written or committed.
type WriteError struct {
	Step string
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return "write " + e.Path + " (" + e.Step + "): " + e.Err.Error()
}
func (e *WriteError) Unwrap() error { return e.Err }

// IsExportError reports whether err wraps an *ExportError.
func IsExportError(err error) bool {
	var e *ExportError
	return errors.As(err, &e)
}

// IsConversionError reports whether err wraps a *ConversionError.
func IsConversionError(err error) bool {
	var e *ConversionError
	return errors.As(err, &e)
}

// IsWriteError reports whether err wraps a *WriteError.
func IsWriteError(err error) bool {
	var e *WriteError
	return errors.As(err, &e)
}
