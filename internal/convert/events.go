package convert

import (
	"sync"
	"time"
)

// Event names published during a run.
const (
	EventStepStart     = "step_start"
	EventStepEnd       = "step_end"
	EventLabelFallback = "label_fallback"
	EventRunEnd        = "run_end"
)

// Event is one pipeline notification. Step is empty for run-level events.
type Event struct {
	Name    string
	RunID   string
	Step    string
	Elapsed time.Duration
	Err     error
	Fields  map[string]any
}

// Observer receives pipeline events. Publish must be cheap and must not
// panic; it runs inline with the conversion.
type Observer interface {
	Publish(Event)
}

type noopObserver struct{}

func (noopObserver) Publish(Event) {}

// MemoryObserver records events for tests and summaries.
type MemoryObserver struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryObserver() *MemoryObserver { return &MemoryObserver{} }

func (o *MemoryObserver) Publish(e Event) {
	o.mu.Lock()
	o.events = append(o.events, e)
	o.mu.Unlock()
}

func (o *MemoryObserver) Events() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Event, len(o.events))
	copy(out, o.events)
	return out
}

// Steps returns the names of completed steps in order.
func (o *MemoryObserver) Steps() []string {
	var out []string
	for _, e := range o.Events() {
		if e.Name == EventStepEnd && e.Err == nil {
			out = append(out, e.Step)
		}
	}
	return out
}
