package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"imgclf/internal/artifact"
)

// ErrDependencyUnavailable marks a backend that was not compiled in or whose
// shared library is missing.
var ErrDependencyUnavailable = errors.New("dependency unavailable")

// onnxMeta is the <name>.meta.json sidecar describing an .onnx model, which
// carries no preprocessing information of its own.
type onnxMeta struct {
	artifact.Signature
	InputName  string `json:"input_name"`
	OutputName string `json:"output_name"`
}

func sidecarPath(modelPath string) string {
	return strings.TrimSuffix(modelPath, ".onnx") + ".meta.json"
}

func readONNXMeta(modelPath string) (onnxMeta, error) {
	var meta onnxMeta
	b, err := os.ReadFile(sidecarPath(modelPath))
	if err != nil {
		return meta, fmt.Errorf("onnx sidecar: %w", err)
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		return meta, fmt.Errorf("parse onnx sidecar: %w", err)
	}
	meta.Preprocessing = meta.Preprocessing.Normalized()
	if err := meta.Signature.Validate(); err != nil {
		return meta, err
	}
	if meta.InputName == "" {
		meta.InputName = "input"
	}
	if meta.OutputName == "" {
		meta.OutputName = "output"
	}
	return meta, nil
}
