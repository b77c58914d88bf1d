package convert

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Step names, in pipeline order.
const (
	StepLoadModel   = "load_model"
	StepLoadLabels  = "load_labels"
	StepConfigure   = "configure"
	StepConvert     = "convert"
	StepWriteModel  = "write_model"
	StepWriteLabels = "write_labels"
	StepCommit      = "commit"
)

// Generator is recorded in every converted artifact.
const Generator = "imgclf-convert"

// StepTiming records one finished step.
type StepTiming struct {
	Step       string        `json:"step"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Report describes a successful run.
type Report struct {
	RunID         string        `json:"run_id"`
	Format        string        `json:"format"`
	Outputs       []string      `json:"outputs"`
	Labels        []string      `json:"labels,omitempty"`
	LabelFallback bool          `json:"label_fallback"`
	Steps         []StepTiming  `json:"steps"`
	Total         time.Duration `json:"total"`
	Bytes         int           `json:"bytes"`
	Quantized     int           `json:"quantized_tensors,omitempty"`
	SelectOps     int           `json:"select_operators,omitempty"`
}

// Common holds the options shared by both conversions.
type Common struct {
	// Logger defaults to a no-op logger.
	Logger *zerolog.Logger
	// Observer defaults to dropping events.
	Observer Observer
}

type run struct {
	ctx     context.Context
	id      string
	log     zerolog.Logger
	obs     Observer
	started time.Time
	report  Report
}

func newRun(ctx context.Context, c Common, format string) *run {
	id := uuid.NewString()
	base := zerolog.Nop()
	if c.Logger != nil {
		base = *c.Logger
	}
	obs := c.Observer
	if obs == nil {
		obs = noopObserver{}
	}
	r := &run{
		ctx:     ctx,
		id:      id,
		log:     base.With().Str("run_id", id).Str("format", format).Logger(),
		obs:     obs,
		started: time.Now(),
	}
	r.report = Report{RunID: id, Format: format}
	r.log.Info().Time("started_at", r.started).Msg("conversion started")
	return r
}

// step times fn and logs its start, completion and elapsed duration. A
// cancelled context stops the run before the next step.
func (r *run) step(name string, fn func() error) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	r.log.Info().Str("step", name).Time("started_at", start).Msg("step started")
	r.obs.Publish(Event{Name: EventStepStart, RunID: r.id, Step: name})
	err := fn()
	end := time.Now()
	elapsed := end.Sub(start)
	r.obs.Publish(Event{Name: EventStepEnd, RunID: r.id, Step: name, Elapsed: elapsed, Err: err})
	if err != nil {
		r.log.Error().Err(err).Str("step", name).Time("started_at", start).Time("finished_at", end).Dur("elapsed", elapsed).Msg("step failed")
		return err
	}
	r.log.Info().Str("step", name).Time("started_at", start).Time("finished_at", end).Dur("elapsed", elapsed).Msg("step finished")
	r.report.Steps = append(r.report.Steps, StepTiming{Step: name, StartedAt: start, FinishedAt: end, Elapsed: elapsed})
	return nil
}

func (r *run) finish(err error) {
	r.report.Total = time.Since(r.started)
	r.obs.Publish(Event{Name: EventRunEnd, RunID: r.id, Elapsed: r.report.Total, Err: err})
	if err != nil {
		r.log.Error().Err(err).Dur("total", r.report.Total).Msg("conversion failed")
		return
	}
	r.log.Info().
		Dur("total", r.report.Total).
		Strs("outputs", r.report.Outputs).
		Int("bytes", r.report.Bytes).
		Msg("conversion finished")
}
