package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepresearch/internal/server/ports"
)

func wsURL(server *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + path
}

func TestWebSocketHandler_StreamsUntilTerminal(t *testing.T) {
	svc := newStubService(ports.NewResearchTask("research-1", "goal", ports.ResearchModeHeavy, time.Now()))
	server := httptest.NewServer(newTestRouter(svc, 0))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/api/research/research-1/ws"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first StreamEvent
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "status", first.Type)
	assert.Equal(t, "running", first.Status)

	svc.setStatus("research-1", ports.TaskStatusDone, nil)

	var events []StreamEvent
	for {
		var event StreamEvent
		if err := conn.ReadJSON(&event); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		events = append(events, event)
	}
	require.NotEmpty(t, events)
	assert.Equal(t, StreamEvent{Type: "complete", Status: "done"}, events[len(events)-1])
}

func TestWebSocketHandler_UnknownTask(t *testing.T) {
	server := httptest.NewServer(newTestRouter(newStubService(), 0))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/api/research/missing/ws"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var event StreamEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, StreamEvent{Type: "complete", Status: "not_found"}, event)
}

func TestWebSocketHandler_RejectsForeignOrigin(t *testing.T) {
	svc := newStubService(ports.NewResearchTask("research-1", "goal", ports.ResearchModeQuick, time.Now()))
	router := NewRouter(RouterDeps{Service: svc}, RouterConfig{
		Environment:    "production",
		AllowedOrigins: []string{"https://app.example.com"},
	})
	server := httptest.NewServer(router)
	defer server.Close()

	header := http.Header{"Origin": []string{"https://evil.example.net"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "/api/research/research-1/ws"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestOriginChecker(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	devAll := originChecker("development", nil)
	assert.True(t, devAll(req("http://localhost:3000")))

	prod := originChecker("production", []string{"https://app.example.com/"})
	assert.True(t, prod(req("https://app.example.com")))
	assert.True(t, prod(req("")))
	assert.False(t, prod(req("https://other.example.com")))

	prodNone := originChecker("production", nil)
	assert.False(t, prodNone(req("https://app.example.com")))
}
