package progress

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
)

// sseEndpoint streams events as Server-Sent Events.
type sseEndpoint struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	seq     atomic.Int64
	done    chan struct{}
	once    sync.Once
}

func (e *sseEndpoint) Send(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.done:
		return fmt.Errorf("sse stream closed")
	default:
	}
	if err := writeSSEEvent(e.w, e.seq.Add(1), string(ev.Status), data); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

// Close waits for an in-flight Send so the handler never returns mid-write.
func (e *sseEndpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.once.Do(func() { close(e.done) })
	return nil
}

// writeSSEEvent writes an event in SSE format.
func writeSSEEvent(w http.ResponseWriter, id int64, event string, data []byte) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}

// ServeSSE registers an event stream for session. It blocks until the
// client goes away or the endpoint is replaced.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request, session string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ep := &sseEndpoint{w: w, flusher: flusher, done: make(chan struct{})}
	h.Register(session, ep)
	h.logger.Debug("progress stream opened", "session", session)

	select {
	case <-r.Context().Done():
	case <-ep.done:
	}

	if h.release(session, ep) {
		ep.Close()
	}
	h.logger.Debug("progress stream closed", "session", session)
}
