// Package connector implements the priority-ordered handler registry and
// dispatch fabric of spec §4.5. Though small, this is part of the core
// because it interacts tightly with parser suspension: a connector may
// return CONTINUE/INCOMPLETE and be re-entered by the client state
// machine across several run() ticks before a response is complete.
package connector

import (
	"sort"

	"oakserve/oakhttpd/pkg/buffer"
	"oakserve/oakhttpd/pkg/message"
)

// Standard priorities, ascending (lowest runs first).
const (
	PriorityFilter    = 0
	PriorityAuth      = 1
	PriorityDocFilter = 4
	PriorityDocument  = 5
	PriorityError     = 10
)

// Handler processes one request/response pair. It returns Success once
// the response is complete, Continue if it should be re-entered to
// stream more content, Incomplete if it is waiting on something external,
// or Reject to mean "not mine, try the next connector".
type Handler func(req, resp *message.Message) buffer.Result

// OnHeaders is a completion callback invoked after response headers are
// serialized but before the body is sent, used to inject synthetic
// headers (Date, signatures) — grounded on ouistiti's mod_date.c /
// mod_cookie.c pattern of header-injection modules.
type OnHeaders func(resp *message.Message)

// Connector is one registered handler entry.
type Connector struct {
	Priority int
	Name     string
	Handler  Handler
}

// Registry is the priority-ordered connector list plus the registered
// header-completion hooks. The server builds one Registry at startup and
// shares it read-only across every Client (spec §5 "shared resources").
type Registry struct {
	connectors []Connector
	onHeaders  []OnHeaders
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add inserts a connector, keeping the list sorted by ascending priority;
// connectors of equal priority preserve registration order (stable sort).
func (r *Registry) Add(priority int, name string, handler Handler) {
	r.connectors = append(r.connectors, Connector{Priority: priority, Name: name, Handler: handler})
	sort.SliceStable(r.connectors, func(i, j int) bool {
		return r.connectors[i].Priority < r.connectors[j].Priority
	})
}

// AddOnHeaders registers a header-completion callback.
func (r *Registry) AddOnHeaders(fn OnHeaders) {
	r.onHeaders = append(r.onHeaders, fn)
}

// Dispatch iterates connectors in priority order starting just after
// startAfter (the name of the connector that last ran, which is itself
// skipped), or from the beginning when startAfter is "", invoking each
// until one returns a non-Reject result.
// Returns the result, the connector name that produced it, and whether
// any connector in the list matched at all.
func (r *Registry) Dispatch(req, resp *message.Message, startAfter string) (buffer.Result, string, bool) {
	started := startAfter == ""
	for _, c := range r.connectors {
		if !started {
			if c.Name == startAfter {
				started = true
			}
			continue
		}
		result := c.Handler(req, resp)
		if result != buffer.Reject {
			return result, c.Name, true
		}
	}
	return buffer.Reject, "", false
}

// Resume re-invokes the single named connector — used when a prior
// dispatch returned Continue/Incomplete and the client driver is giving
// it another tick.
func (r *Registry) Resume(name string, req, resp *message.Message) (buffer.Result, bool) {
	for _, c := range r.connectors {
		if c.Name == name {
			return c.Handler(req, resp), true
		}
	}
	return buffer.Reject, false
}

// RunOnHeaders invokes every registered header-completion hook.
func (r *Registry) RunOnHeaders(resp *message.Message) {
	for _, fn := range r.onHeaders {
		fn(resp)
	}
}
