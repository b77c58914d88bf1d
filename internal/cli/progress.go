package cli

import (
	"io"

	"github.com/schollz/progressbar/v3"

	"imgclf/internal/convert"
)

// progressObserver advances a bar once per finished conversion step.
type progressObserver struct {
	bar *progressbar.ProgressBar
}

func newProgressObserver(w io.Writer, steps int) *progressObserver {
	bar := progressbar.NewOptions(steps,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("converting"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	return &progressObserver{bar: bar}
}

func (p *progressObserver) Publish(e convert.Event) {
	switch e.Name {
	case convert.EventStepStart:
		p.bar.Describe(e.Step)
	case convert.EventStepEnd:
		if e.Err == nil {
			_ = p.bar.Add(1)
		}
	case convert.EventRunEnd:
		if e.Err == nil {
			_ = p.bar.Finish()
		}
	}
}
