// Package testutil holds shared test doubles for the routing packages.
package testutil

import (
	"sync"

	"chatconnect/pkg/interfaces"
)

// Broadcast is the ConnID recorded for EmitAll calls
const Broadcast = "*"

// Emitted is one recorded emission
type Emitted struct {
	ConnID  string
	Event   string
	Payload interface{}
}

// Recorder is an interfaces.Emitter that remembers everything it was asked to send
type Recorder struct {
	mu      sync.Mutex
	emitted []Emitted
	failing map[string]error
}

var _ interfaces.Emitter = (*Recorder)(nil)

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{failing: make(map[string]error)}
}

// FailFor makes every Emit to connID return err
func (r *Recorder) FailFor(connID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing[connID] = err
}

func (r *Recorder) Emit(connID string, event string, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err, ok := r.failing[connID]; ok {
		return err
	}
	r.emitted = append(r.emitted, Emitted{ConnID: connID, Event: event, Payload: payload})
	return nil
}

func (r *Recorder) EmitAll(event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitted = append(r.emitted, Emitted{ConnID: Broadcast, Event: event, Payload: payload})
}

// All returns a copy of every recorded emission in order
func (r *Recorder) All() []Emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Emitted(nil), r.emitted...)
}

// Events returns the emissions of one event name
func (r *Recorder) Events(event string) []Emitted {
	var out []Emitted
	for _, e := range r.All() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// Recipients returns the connection ids that received event, in order
func (r *Recorder) Recipients(event string) []string {
	var out []string
	for _, e := range r.Events(event) {
		out = append(out, e.ConnID)
	}
	return out
}

// For returns everything delivered to connID
func (r *Recorder) For(connID string) []Emitted {
	var out []Emitted
	for _, e := range r.All() {
		if e.ConnID == connID {
			out = append(out, e)
		}
	}
	return out
}

// Last returns the most recent emission of event
func (r *Recorder) Last(event string) (Emitted, bool) {
	events := r.Events(event)
	if len(events) == 0 {
		return Emitted{}, false
	}
	return events[len(events)-1], true
}

// Reset forgets all recorded emissions
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitted = nil
}
