// Package labels reads and writes the class label table (class_names.json):
// a JSON array of strings where the position is the class index.
package labels

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"

	"imgclf/internal/common/fsutil"
)

// DefaultFile is the conventional file name of a label table.
const DefaultFile = "class_names.json"

// ErrEmpty is returned for a table with no entries.
var ErrEmpty = errors.New("label table is empty")

// Load reads a label table from path.
func Load(path string) ([]string, error) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a label table. Anything other than a non-empty JSON array of
// strings is rejected.
func Parse(data []byte) ([]string, error) {
	var out []string
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("parse label table: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrEmpty
	}
	return out, nil
}

// Encode renders labels exactly index-aligned.
func Encode(names []string) ([]byte, error) {
	if len(names) == 0 {
		return nil, ErrEmpty
	}
	b, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Synthesize returns class_0 .. class_{n-1}.
func Synthesize(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "class_" + strconv.Itoa(i)
	}
	return out
}

// Resolution tells how a table was obtained.
type Resolution struct {
	Labels   []string
	Fallback bool
	// Reason is set when Fallback is true.
	Reason string
}

// LoadOrSynthesize loads the table at path and checks it has n entries. When
// path is empty, unreadable, malformed or of the wrong length the synthesized
// table is returned instead and a warning is logged. It never fails.
func LoadOrSynthesize(path string, n int, log zerolog.Logger) Resolution {
	reason := ""
	if path == "" {
		reason = "no label table given"
	} else if names, err := Load(path); err != nil {
		reason = err.Error()
	} else if len(names) != n {
		reason = fmt.Sprintf("label table has %d entries, model has %d outputs", len(names), n)
	} else {
		return Resolution{Labels: names}
	}
	log.Warn().
		Str("path", path).
		Int("classes", n).
		Str("reason", reason).
		Msg("label table unavailable, using generated class names")
	return Resolution{Labels: Synthesize(n), Fallback: true, Reason: reason}
}
