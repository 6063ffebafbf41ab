package event

import (
	"context"
	"sync"
	"time"

	"github.com/vk/ucdpipe/internal/ctxlog"
)

// Observer receives events. It may block; the emitter waits for it.
type Observer func(ctx context.Context, ev Event) error

// Emitter fans events out to its observers one at a time.
type Emitter struct {
	mu        sync.Mutex
	runID     string
	seq       int
	now       func() time.Time
	observers []Observer
}

// NewEmitter creates an emitter stamping events with runID and the time
// reported by now, or time.Now when now is nil. Nil observers are ignored.
func NewEmitter(runID string, now func() time.Time, observers ...Observer) *Emitter {
	if now == nil {
		now = time.Now
	}
	e := &Emitter{runID: runID, now: now}
	for _, o := range observers {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
	return e
}

// RunID returns the id stamped on every event.
func (e *Emitter) RunID() string { return e.runID }

// Emit stamps ev and delivers it to every observer before returning.
// Sequence number and timestamp are assigned under the same lock, so
// timestamps never decrease as Seq grows. Observer errors are logged and do
// not interrupt the run.
func (e *Emitter) Emit(ctx context.Context, ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seq++
	ev.RunID = e.runID
	ev.Seq = e.seq
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now()
	}

	for _, o := range e.observers {
		if err := o(ctx, ev); err != nil {
			ctxlog.FromContext(ctx).Warn("Event observer failed.", "event", ev.Type, "seq", ev.Seq, "error", err)
		}
	}
}
