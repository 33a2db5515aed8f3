// Package events delivers notification records to observers.
package events

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/observability"
	"keeper-vault/internal/solana"
)

// Sink receives notifications emitted by committed operations.
type Sink interface {
	Publish(ctx context.Context, events ...*domain.Event) error
}

// Discard drops every notification.
var Discard Sink = discard{}

type discard struct{}

func (discard) Publish(context.Context, ...*domain.Event) error { return nil }

// New returns an event of kind for user with a fresh id.
func New(kind domain.EventKind, user solana.PublicKey, timestamp int64) *domain.Event {
	return &domain.Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		User:      user,
		Timestamp: timestamp,
	}
}

// Recorder keeps published notifications in memory.
// Thread-safe.
type Recorder struct {
	mu     sync.Mutex
	events []*domain.Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish appends copies of events.
func (r *Recorder) Publish(_ context.Context, events ...*domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range events {
		cp := *e
		r.events = append(r.events, &cp)
	}
	return nil
}

// Events returns all recorded notifications in publish order.
func (r *Recorder) Events() []*domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds of all recorded notifications in publish order.
func (r *Recorder) Kinds() []domain.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

// Reset clears the recorder.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Named labels a sink for metrics.
type Named struct {
	Name string
	Sink Sink
}

// Fanout publishes to every sink. A failing sink does not stop the others.
type Fanout struct {
	sinks []Named
}

// NewFanout creates a fanout over sinks.
func NewFanout(sinks ...Named) *Fanout {
	return &Fanout{sinks: sinks}
}

// Add registers another sink.
func (f *Fanout) Add(name string, sink Sink) {
	f.sinks = append(f.sinks, Named{Name: name, Sink: sink})
}

// Publish delivers events to all sinks and joins their errors.
func (f *Fanout) Publish(ctx context.Context, events ...*domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	var errs []error
	for _, s := range f.sinks {
		err := s.Sink.Publish(ctx, events...)
		observability.RecordEventPublished(s.Name, err)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Sink = (*Recorder)(nil)
	_ Sink = (*Fanout)(nil)
)
