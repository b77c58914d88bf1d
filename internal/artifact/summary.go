package artifact

import (
	"fmt"
	"io"
	"text/tabwriter"

	"imgclf/internal/tensor"
)

// LayerSummary is one row of a model summary.
type LayerSummary struct {
	Name        string       `json:"name"`
	Kind        string       `json:"kind"`
	OutputShape tensor.Shape `json:"output_shape"`
	Params      int          `json:"params"`
}

// Summary describes a model the way a training framework prints it.
type Summary struct {
	Format      string         `json:"format"`
	Name        string         `json:"name,omitempty"`
	Signature   Signature      `json:"signature"`
	Layers      []LayerSummary `json:"layers,omitempty"`
	TotalParams int            `json:"total_params"`
	SizeBytes   int64          `json:"size_bytes,omitempty"`
}

// Summarize builds a summary from a validated plan.
func Summarize(format, name string, sig Signature, infos []LayerInfo) Summary {
	s := Summary{Format: format, Name: name, Signature: sig}
	for _, l := range infos {
		n := l.ParamCount()
		s.Layers = append(s.Layers, LayerSummary{Name: l.Name, Kind: l.Kind, OutputShape: l.OutputShape, Params: n})
		s.TotalParams += n
	}
	return s
}

// WriteTable prints the summary as an aligned table.
func (s Summary) WriteTable(w io.Writer) error {
	fmt.Fprintf(w, "Model: %q (%s)\n", s.Name, s.Format)
	fmt.Fprintf(w, "Input: %s  Output: %s  Resize: %s\n", s.Signature.InputShape, s.Signature.OutputShape, s.Signature.Preprocessing.Normalized().Resize)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Layer\tKind\tOutput Shape\tParams")
	for _, l := range s.Layers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", l.Name, l.Kind, l.OutputShape, l.Params)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Total params: %d\n", s.TotalParams)
	return err
}
