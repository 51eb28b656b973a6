package node

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-process audio node speaking the websocket and REST protocol.
type fakeBackend struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu        sync.Mutex
	conns     []*websocket.Conn
	accepted  int
	dials     int
	reject    bool
	headers   []http.Header
	onConnect func(c *websocket.Conn, attempt int)
	rest      http.HandlerFunc
	requests  []*recordedRequest
}

type recordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Body   string
	Header http.Header
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{t: t}

	mux := http.NewServeMux()
	mux.HandleFunc("/v4/websocket", fb.serveWebsocket)
	mux.HandleFunc("/v4/", fb.serveREST)
	fb.server = httptest.NewServer(mux)

	t.Cleanup(func() {
		fb.closeAll()
		fb.server.Close()
	})
	return fb
}

func (fb *fakeBackend) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	fb.dials++
	reject := fb.reject
	fb.mu.Unlock()
	if reject {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	if r.Header.Get("Authorization") != "youshallnotpass" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := fb.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	fb.mu.Lock()
	fb.conns = append(fb.conns, conn)
	fb.headers = append(fb.headers, r.Header.Clone())
	fb.accepted++
	attempt := fb.accepted
	onConnect := fb.onConnect
	fb.mu.Unlock()

	if onConnect != nil {
		onConnect(conn, attempt)
	}
}

func (fb *fakeBackend) serveREST(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	fb.mu.Lock()
	fb.requests = append(fb.requests, &recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Body:   string(body),
		Header: r.Header.Clone(),
	})
	rest := fb.rest
	fb.mu.Unlock()

	if rest == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	rest(w, r)
}

func (fb *fakeBackend) config(name string) Config {
	u, err := url.Parse(fb.server.URL)
	require.NoError(fb.t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(fb.t, err)
	return Config{
		Name:        name,
		Host:        u.Hostname(),
		Port:        port,
		Password:    "youshallnotpass",
		UserID:      1234,
		RetryAmount: 0,
		RetryDelay:  10 * time.Millisecond,
	}
}

func (fb *fakeBackend) connCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.accepted
}

func (fb *fakeBackend) dialCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.dials
}

func (fb *fakeBackend) setReject(v bool) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.reject = v
}

func (fb *fakeBackend) setREST(h http.HandlerFunc) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.rest = h
}

func (fb *fakeBackend) findRequest(method, path string) *recordedRequest {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for _, r := range fb.requests {
		if r.Method == method && r.Path == path {
			return r
		}
	}
	return nil
}

func (fb *fakeBackend) header(i int) http.Header {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.headers[i]
}

func (fb *fakeBackend) lastRequest() *recordedRequest {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if len(fb.requests) == 0 {
		return nil
	}
	return fb.requests[len(fb.requests)-1]
}

func (fb *fakeBackend) requestCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return len(fb.requests)
}

// closeAll closes every server-side socket abruptly.
func (fb *fakeBackend) closeAll() {
	fb.mu.Lock()
	conns := fb.conns
	fb.conns = nil
	fb.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

// sendJSON is called from server goroutines, so it must not use require.
func sendJSON(t *testing.T, c *websocket.Conn, raw string) {
	assert.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(raw)))
}

// newTestNode builds a node against fb with no jitter.
func newTestNode(t *testing.T, fb *fakeBackend, cfg Config) *Node {
	t.Helper()
	n := New(cfg, fb.server.Client(), nil)
	n.jitter = 0
	t.Cleanup(n.Destroy)
	return n
}
