// Package format names the artifact formats and detects them on disk.
package format

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Kind identifies an on-disk model format.
type Kind string

const (
	Bundle  Kind = "bundle"  // source .imgm archive
	Browser Kind = "browser" // model.json + shards directory
	Mobile  Kind = "mobile"  // .imgl protobuf binary
	ONNX    Kind = "onnx"    // .onnx with a .meta.json sidecar
)

// BrowserModelFile is the entry point of a browser-format directory.
const BrowserModelFile = "model.json"

// MobileMagic prefixes every mobile artifact.
const MobileMagic = "IMGL"

// UnsupportedError names the first layer a target format cannot represent.
type UnsupportedError struct {
	Target Kind
	Layer  string
	Kind   string
	Detail string
}

func (e *UnsupportedError) Error() string {
	msg := fmt.Sprintf("layer %q of kind %s is not supported by the %s format", e.Layer, e.Kind, e.Target)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Detect inspects path and reports its format. Directories are browser
// artifacts when they contain model.json; files are sniffed by magic bytes
// and then by extension.
func Detect(path string) (Kind, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if fi.IsDir() {
		if _, err := os.Stat(filepath.Join(path, BrowserModelFile)); err != nil {
			return "", fmt.Errorf("%s: directory has no %s", path, BrowserModelFile)
		}
		return Browser, nil
	}
	if filepath.Base(path) == BrowserModelFile {
		return Browser, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	head := make([]byte, 4)
	n, _ := io.ReadFull(f, head)
	head = head[:n]
	switch {
	case string(head) == MobileMagic:
		return Mobile, nil
	case string(head) == "PK\x03\x04":
		return Bundle, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".onnx":
		return ONNX, nil
	case ".imgl":
		return Mobile, nil
	case ".imgm":
		return Bundle, nil
	}
	return "", fmt.Errorf("%s: unrecognized model format", path)
}
