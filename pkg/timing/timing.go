// Package timing provides per-request phase measurement for the server.
package timing

import (
	"fmt"
	"time"
)

// Metrics captures the duration of each phase of one request/response cycle.
type Metrics struct {
	// Accept is the time spent waiting for the transport adapter to report
	// the connection readable, i.e. the span of the run() wait step.
	Accept time.Duration `json:"accept"`

	// Parse is the time spent inside the incremental HTTP parser for this
	// request, summed across every run() tick that advanced it.
	Parse time.Duration `json:"parse"`

	// Dispatch is the time spent inside connector handlers.
	Dispatch time.Duration `json:"dispatch"`

	// Generate is the time spent inside the response serializer.
	Generate time.Duration `json:"generate"`

	// Send is the time spent inside the transport adapter's send calls.
	Send time.Duration `json:"send"`

	// Total is the time elapsed from NewTimer to the Metrics call.
	Total time.Duration `json:"total"`
}

// Timer accumulates phase durations across the many short run() ticks a
// single request/response cycle is driven through.
type Timer struct {
	start time.Time

	acceptStart time.Time
	accept      time.Duration

	parseStart time.Time
	parse      time.Duration

	dispatchStart time.Time
	dispatch      time.Duration

	generateStart time.Time
	generate      time.Duration

	sendStart time.Time
	send      time.Duration
}

// NewTimer starts a new request timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// StartAccept marks the beginning of a wait-for-readable phase.
func (t *Timer) StartAccept() { t.acceptStart = time.Now() }

// EndAccept accumulates the elapsed accept-wait time.
func (t *Timer) EndAccept() {
	if !t.acceptStart.IsZero() {
		t.accept += time.Since(t.acceptStart)
		t.acceptStart = time.Time{}
	}
}

// StartParse marks the beginning of a parser invocation.
func (t *Timer) StartParse() { t.parseStart = time.Now() }

// EndParse accumulates the elapsed parse time.
func (t *Timer) EndParse() {
	if !t.parseStart.IsZero() {
		t.parse += time.Since(t.parseStart)
		t.parseStart = time.Time{}
	}
}

// StartDispatch marks the beginning of a connector handler call.
func (t *Timer) StartDispatch() { t.dispatchStart = time.Now() }

// EndDispatch accumulates the elapsed dispatch time.
func (t *Timer) EndDispatch() {
	if !t.dispatchStart.IsZero() {
		t.dispatch += time.Since(t.dispatchStart)
		t.dispatchStart = time.Time{}
	}
}

// StartGenerate marks the beginning of response serialization.
func (t *Timer) StartGenerate() { t.generateStart = time.Now() }

// EndGenerate accumulates the elapsed generate time.
func (t *Timer) EndGenerate() {
	if !t.generateStart.IsZero() {
		t.generate += time.Since(t.generateStart)
		t.generateStart = time.Time{}
	}
}

// StartSend marks the beginning of a transport send call.
func (t *Timer) StartSend() { t.sendStart = time.Now() }

// EndSend accumulates the elapsed send time.
func (t *Timer) EndSend() {
	if !t.sendStart.IsZero() {
		t.send += time.Since(t.sendStart)
		t.sendStart = time.Time{}
	}
}

// Metrics returns the accumulated phase durations plus total elapsed time.
func (t *Timer) Metrics() Metrics {
	return Metrics{
		Accept:   t.accept,
		Parse:    t.parse,
		Dispatch: t.dispatch,
		Generate: t.generate,
		Send:     t.send,
		Total:    time.Since(t.start),
	}
}

// String provides a human-readable representation of the metrics.
func (m Metrics) String() string {
	return fmt.Sprintf("accept=%v parse=%v dispatch=%v generate=%v send=%v total=%v",
		m.Accept, m.Parse, m.Dispatch, m.Generate, m.Send, m.Total)
}
