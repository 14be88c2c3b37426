package progress

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujanshetty01/OMD/pkg/logging"
)

type recordingEndpoint struct {
	mu     sync.Mutex
	events []Event
	err    error
	closed bool
}

func (r *recordingEndpoint) Send(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingEndpoint) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingEndpoint) steps() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Step
	}
	return out
}

func TestHub_PublishInOrder(t *testing.T) {
	hub := NewHub(logging.Discard())
	ep := &recordingEndpoint{}
	hub.Register("s1", ep)

	hub.Publish("s1", Event{Step: "one", Status: StatusProcessing})
	hub.Publish("s1", Event{Step: "two", Status: StatusComplete})
	hub.Publish("other", Event{Step: "lost"})

	assert.Equal(t, []string{"one", "two"}, ep.steps())
}

func TestHub_RegisterReplacesAndClosesPrevious(t *testing.T) {
	hub := NewHub(logging.Discard())
	first := &recordingEndpoint{}
	second := &recordingEndpoint{}

	hub.Register("s1", first)
	hub.Register("s1", second)
	hub.Publish("s1", Event{Step: "after"})

	assert.True(t, first.closed)
	assert.Empty(t, first.steps())
	assert.Equal(t, []string{"after"}, second.steps())
	assert.Equal(t, 1, hub.Len())
}

func TestHub_FailedSendDeregistersAndIsSwallowed(t *testing.T) {
	hub := NewHub(logging.Discard())
	var drops []string
	hub.OnDrop = func(session string) { drops = append(drops, session) }

	ep := &recordingEndpoint{err: errors.New("broken pipe")}
	hub.Register("s1", ep)

	hub.Publish("s1", Event{Step: "x"})

	assert.False(t, hub.Registered("s1"))
	assert.True(t, ep.closed)
	assert.Equal(t, []string{"s1"}, drops)

	// later events are dropped silently
	hub.Publish("s1", Event{Step: "y"})
	assert.Equal(t, []string{"s1", "s1"}, drops)
}

func TestHub_Deregister(t *testing.T) {
	hub := NewHub(logging.Discard())
	ep := &recordingEndpoint{}
	hub.Register("s1", ep)
	hub.Deregister("s1")
	hub.Publish("s1", Event{Step: "x"})

	assert.Empty(t, ep.steps())
	assert.False(t, hub.Registered("s1"))
}

func TestHub_ReleaseKeepsReplacement(t *testing.T) {
	hub := NewHub(logging.Discard())
	old := &recordingEndpoint{}
	replacement := &recordingEndpoint{}
	hub.Register("s1", old)
	hub.Register("s1", replacement)

	assert.False(t, hub.release("s1", old))
	assert.True(t, hub.Registered("s1"))
}

func TestFuncEndpoint(t *testing.T) {
	hub := NewHub(logging.Discard())
	var got []Status
	hub.Register("cli", Func(func(ev Event) error {
		got = append(got, ev.Status)
		return nil
	}))
	hub.Register("cli", Func(func(ev Event) error {
		got = append(got, StatusWarning)
		return nil
	}))

	hub.Publish("cli", Event{Status: StatusComplete})
	assert.Equal(t, []Status{StatusWarning}, got)
}

func TestServeWS_StreamsEvents(t *testing.T) {
	hub := NewHub(logging.Discard())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, strings.TrimPrefix(r.URL.Path, "/ws/"))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/client-42"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return hub.Registered("client-42") }, time.Second, 10*time.Millisecond)

	hub.Publish("client-42", Event{Step: "Profiling dataset structure...", Status: StatusProcessing})

	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "Profiling dataset structure...", got.Step)
	assert.Equal(t, StatusProcessing, got.Status)

	conn.Close()
	require.Eventually(t, func() bool { return !hub.Registered("client-42") }, time.Second, 10*time.Millisecond)
}

func TestRedisRelay_Deliver(t *testing.T) {
	hub := NewHub(logging.Discard())
	ep := &recordingEndpoint{}
	hub.Register("s1", ep)

	relay := &RedisRelay{cfg: DefaultRedisConfig("unused"), hub: hub, logger: logging.Discard()}
	relay.deliver("omd:progress:s1", `{"step":"relayed","status":"warning","data":null}`)
	relay.deliver("omd:progress:s1", `not json`)
	relay.deliver("other:s1", `{"step":"foreign"}`)

	assert.Equal(t, []string{"relayed"}, ep.steps())
}

func TestServeSSE_StreamsEvents(t *testing.T) {
	hub := NewHub(logging.Discard())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeSSE(w, r, "client-7")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return hub.Registered("client-7") }, time.Second, 10*time.Millisecond)
	hub.Publish("client-7", Event{Step: "Bucket is empty.", Status: StatusWarning})

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for sc.Scan() && sc.Text() != "" {
		lines = append(lines, sc.Text())
	}
	require.Len(t, lines, 3)
	assert.Equal(t, "id: 1", lines[0])
	assert.Equal(t, "event: warning", lines[1])
	assert.Equal(t, `data: {"step":"Bucket is empty.","status":"warning","data":null}`, lines[2])

	cancel()
	require.Eventually(t, func() bool { return !hub.Registered("client-7") }, time.Second, 10*time.Millisecond)
}
