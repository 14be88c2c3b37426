// Package progress streams human-readable pipeline status to the observer
// connected for a client session.
//
// Delivery is best-effort: events published while no endpoint is
// registered are dropped, and an endpoint that fails a send is removed.
// Publishing never returns an error to the caller.
package progress

import (
	"log/slog"
	"sync"

	"github.com/sujanshetty01/OMD/pkg/logging"
)

// Status of a progress event.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusWarning    Status = "warning"
	StatusError      Status = "error"
	StatusComplete   Status = "complete"
)

// Event is one progress message.
type Event struct {
	Step   string         `json:"step"`
	Status Status         `json:"status"`
	Data   map[string]any `json:"data"`
}

// Publisher sends events to a session.
type Publisher interface {
	Publish(session string, ev Event)
}

// Endpoint is a delivery target for one session.
type Endpoint interface {
	Send(ev Event) error
	Close() error
}

// Hub maps each session to its single active endpoint.
type Hub struct {
	mu        sync.RWMutex
	endpoints map[string]Endpoint
	logger    *slog.Logger

	// OnDrop, when set, is called for every event that could not be delivered.
	OnDrop func(session string)
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		endpoints: make(map[string]Endpoint),
		logger:    logging.Or(logger),
	}
}

// Register sets the endpoint for session, closing any previous one.
func (h *Hub) Register(session string, ep Endpoint) {
	h.mu.Lock()
	old := h.endpoints[session]
	h.endpoints[session] = ep
	h.mu.Unlock()

	if old != nil && old != ep {
		old.Close()
	}
}

// Deregister removes the endpoint for session.
func (h *Hub) Deregister(session string) {
	h.mu.Lock()
	delete(h.endpoints, session)
	h.mu.Unlock()
}

// release removes ep only if it is still the session's endpoint, so a
// closing connection cannot evict its replacement.
func (h *Hub) release(session string, ep Endpoint) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.endpoints[session] != ep {
		return false
	}
	delete(h.endpoints, session)
	return true
}

// Publish delivers ev to the session's endpoint, if any.
func (h *Hub) Publish(session string, ev Event) {
	h.mu.RLock()
	ep := h.endpoints[session]
	h.mu.RUnlock()

	if ep == nil {
		h.drop(session)
		return
	}

	if err := ep.Send(ev); err != nil {
		h.logger.Debug("progress endpoint failed, deregistering", "session", session, "error", err)
		if h.release(session, ep) {
			ep.Close()
		}
		h.drop(session)
	}
}

// Registered reports whether session has an endpoint.
func (h *Hub) Registered(session string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.endpoints[session]
	return ok
}

// Len returns the number of registered sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.endpoints)
}

func (h *Hub) drop(session string) {
	if h.OnDrop != nil {
		h.OnDrop(session)
	}
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(string, Event) {}

// Func adapts a function into an Endpoint. Used by the CLI to render
// events in-process.
func Func(fn func(ev Event) error) Endpoint {
	return &funcEndpoint{fn: fn}
}

type funcEndpoint struct {
	fn func(ev Event) error
}

func (f *funcEndpoint) Send(ev Event) error { return f.fn(ev) }

func (f *funcEndpoint) Close() error { return nil }
