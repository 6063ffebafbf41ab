package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vk/ucdpipe/internal/event"
)

// Span is the lifetime of one route task, taken from its route:start and
// route:end events.
type Span struct {
	Version string
	RouteID string
	Start   time.Time
	End     time.Time
}

// SpanRecorder turns route events into spans.
type SpanRecorder struct {
	mu    sync.Mutex
	open  map[string]time.Time
	spans []Span
}

// NewSpanRecorder creates an empty recorder.
func NewSpanRecorder() *SpanRecorder {
	return &SpanRecorder{open: make(map[string]time.Time)}
}

// Observe implements event.Observer.
func (r *SpanRecorder) Observe(_ context.Context, ev event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := ev.Version + "/" + ev.RouteID
	switch ev.Type {
	case event.RouteStart:
		r.open[key] = ev.Timestamp
	case event.RouteEnd:
		r.spans = append(r.spans, Span{Version: ev.Version, RouteID: ev.RouteID, Start: r.open[key], End: ev.Timestamp})
		delete(r.open, key)
	}
	return nil
}

// Spans returns the completed spans ordered by start time.
func (r *SpanRecorder) Spans() []Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]Span(nil), r.spans...)
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Overlapping returns the first pair of spans that were in flight at the same
// time, if any.
func (r *SpanRecorder) Overlapping() (Span, Span, bool) {
	spans := r.Spans()
	if len(spans) == 0 {
		return Span{}, Span{}, false
	}
	latest := spans[0]
	for _, s := range spans[1:] {
		if s.Start.Before(latest.End) {
			return latest, s, true
		}
		if s.End.After(latest.End) {
			latest = s
		}
	}
	return Span{}, Span{}, false
}
