//go:build !onnx

package runtime

import "fmt"

// openONNX is the default build without ONNX Runtime. The sidecar is still
// validated so a broken artifact reports the real problem first.
func openONNX(path string) (Model, error) {
	if _, err := readONNXMeta(path); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("onnx backend not built (rebuild with -tags onnx): %w", ErrDependencyUnavailable)
}
