package cli

import (
	"imgclf/internal/artifact"
	"imgclf/internal/convert"
)

// Process exit codes.
const (
	ExitOK         = 0
	ExitFailure    = 1 // usage and anything unclassified
	ExitLoad       = 2
	ExitConversion = 3 // export or conversion
	ExitWrite      = 4
)

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case artifact.IsLoadError(err):
		return ExitLoad
	case convert.IsExportError(err), convert.IsConversionError(err):
		return ExitConversion
	case convert.IsWriteError(err):
		return ExitWrite
	default:
		return ExitFailure
	}
}
