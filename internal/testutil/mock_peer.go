// mock_peer.go - Fake AppVision server for testing
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/appvision-bridge/bridge/internal/gateway"
)

type mockResponse struct {
	status int
	body   string
}

// MockPeer is an httptest-backed stand-in for an AppVision server. Tests
// script per-endpoint responses and a FIFO of GetNotifications bodies, and
// assert on recorded call counts.
type MockPeer struct {
	Server *httptest.Server

	mu         sync.Mutex
	calls      map[string]int
	headers    map[string]string // endpoint -> last session header seen
	responses  map[string]mockResponse
	notifQueue []string
	down       bool
}

// NewMockPeer starts a mock peer with permissive defaults: Open returns a
// session token, everything else returns 200 with an empty body.
func NewMockPeer() *MockPeer {
	p := &MockPeer{
		calls:   make(map[string]int),
		headers: make(map[string]string),
		responses: map[string]mockResponse{
			"Open": {status: http.StatusOK, body: "mock-session-1"},
		},
	}
	p.Server = httptest.NewServer(http.HandlerFunc(p.handle))
	return p
}

func (p *MockPeer) handle(w http.ResponseWriter, r *http.Request) {
	endpoint := strings.TrimPrefix(r.URL.Path, gateway.BasePath+"/")

	p.mu.Lock()
	p.calls[endpoint]++
	p.headers[endpoint] = r.Header.Get(gateway.SessionHeader)

	if p.down {
		p.mu.Unlock()
		// Drop the connection so the client sees a transport failure, not
		// an HTTP status.
		hj, ok := w.(http.Hijacker)
		if ok {
			if conn, _, err := hj.Hijack(); err == nil {
				conn.Close()
				return
			}
		}
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	if endpoint == "GetNotifications" && len(p.notifQueue) > 0 {
		body := p.notifQueue[0]
		p.notifQueue = p.notifQueue[1:]
		p.mu.Unlock()
		w.Write([]byte(body))
		return
	}

	resp, ok := p.responses[endpoint]
	p.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(resp.status)
	w.Write([]byte(resp.body))
}

// Address returns the host:port the mock listens on.
func (p *MockPeer) Address() string {
	return strings.TrimPrefix(p.Server.URL, "http://")
}

// SetResponse scripts the status and body for an endpoint.
func (p *MockPeer) SetResponse(endpoint string, status int, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses[endpoint] = mockResponse{status: status, body: body}
}

// QueueNotifications appends GetNotifications bodies served in order; once
// drained, the scripted/default response applies again.
func (p *MockPeer) QueueNotifications(bodies ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifQueue = append(p.notifQueue, bodies...)
}

// SetDown makes every subsequent call fail at the transport level.
func (p *MockPeer) SetDown(down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.down = down
}

// Calls returns how many times an endpoint was hit.
func (p *MockPeer) Calls(endpoint string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[endpoint]
}

// LastSessionHeader returns the session token last presented to an endpoint.
func (p *MockPeer) LastSessionHeader(endpoint string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.headers[endpoint]
}

// Close shuts the mock down.
func (p *MockPeer) Close() {
	p.Server.Close()
}
