package event

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vk/ucdpipe/internal/ctxlog"
)

// LogObserver mirrors events into the context logger. Error events are
// logged at error level, everything else at debug level.
func LogObserver(ctx context.Context, ev Event) error {
	logger := ctxlog.FromContext(ctx)

	attrs := []any{"event", string(ev.Type), "seq", ev.Seq}
	if ev.Version != "" {
		attrs = append(attrs, "version", ev.Version)
	}
	if ev.RouteID != "" {
		attrs = append(attrs, "route", ev.RouteID)
	}
	if ev.File != nil {
		attrs = append(attrs, "file", ev.File.Path)
	}
	if ev.ArtifactKey != "" {
		attrs = append(attrs, "artifact", ev.ArtifactKey)
	}
	if ev.Reason != "" {
		attrs = append(attrs, "reason", ev.Reason)
	}
	if ev.Duration > 0 {
		attrs = append(attrs, "duration", ev.Duration)
	}

	if ev.Type == Error {
		if ev.Err != nil {
			attrs = append(attrs, "scope", string(ev.Err.Scope), "error", ev.Err.Message)
		}
		logger.Error("Pipeline error.", attrs...)
		return nil
	}
	level := slog.LevelDebug
	if ev.Type == PipelineStart || ev.Type == PipelineEnd {
		level = slog.LevelInfo
	}
	logger.Log(ctx, level, "Pipeline event.", attrs...)
	return nil
}

// Recorder keeps every event it observes. Useful in tests and for callers
// that want the full trace after a run.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Observe implements Observer.
func (r *Recorder) Observe(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a snapshot of recorded events in emission order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of the given type.
func (r *Recorder) OfType(t Type) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
