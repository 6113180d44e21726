package introspect

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rclgo/internal/executor"
	"github.com/roach88/rclgo/internal/launch"
	"github.com/roach88/rclgo/internal/rcl"
	"github.com/roach88/rclgo/internal/testutil"
)

const graphSource = `
nodes: talker: {
	namespace: "/demo"
	publishers: out: topic: "chatter"
}
nodes: listener: {
	namespace: "/demo"
	subscriptions: in: topic: "chatter"
	services: echo: {}
	clients: ask: service: "echo"
}
`

// envelope is used to decode the standard response envelope.
type envelope struct {
	Status    string          `json:"status"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testServer(t *testing.T) (*Server, *launch.System) {
	t.Helper()
	desc, err := launch.LoadBytes("graph.cue", []byte(graphSource))
	require.NoError(t, err)
	sys, err := launch.Build(testutil.NewContext(t), desc, launch.WithLogger(testLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sys.Close(context.Background()) })
	return New(sys.Context, sys.Executor, testLogger()), sys
}

func doGet(t *testing.T, srv http.Handler, path string, wantStatus int) envelope {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	require.Equal(t, wantStatus, w.Code, "GET %s body=%s", path, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "GET %s: invalid JSON", path)
	return env
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	env := doGet(t, srv, "/healthz", http.StatusOK)
	assert.Equal(t, "ok", env.Status)
	assert.NotEmpty(t, env.RequestID)

	var h Health
	require.NoError(t, json.Unmarshal(env.Data, &h))
	assert.Equal(t, "healthy", h.Status)
	assert.True(t, h.ContextOK)
	assert.Equal(t, "idle", h.ExecutorState)
}

func TestHealth_UnhealthyAfterShutdown(t *testing.T) {
	srv, sys := testServer(t)
	require.NoError(t, sys.Context.Shutdown())

	env := doGet(t, srv, "/healthz", http.StatusServiceUnavailable)
	var h Health
	require.NoError(t, json.Unmarshal(env.Data, &h))
	assert.Equal(t, "unhealthy", h.Status)
	assert.False(t, h.ContextOK)
}

func TestGraphNodes(t *testing.T) {
	srv, _ := testServer(t)
	env := doGet(t, srv, "/graph/nodes", http.StatusOK)

	var nodes []NodeInfo
	require.NoError(t, json.Unmarshal(env.Data, &nodes))
	require.Len(t, nodes, 2)
	assert.Equal(t, "listener", nodes[0].Name)
	assert.Equal(t, "/demo", nodes[0].Namespace)
	require.Len(t, nodes[0].Subscriptions, 1)
	assert.Equal(t, "/demo/chatter", nodes[0].Subscriptions[0].Name)
	require.Len(t, nodes[0].Services, 1)
	assert.Equal(t, "/demo/echo", nodes[0].Services[0].Name)
	require.Len(t, nodes[0].Clients, 1)

	assert.Equal(t, "talker", nodes[1].Name)
	require.Len(t, nodes[1].Publishers, 1)
	assert.Equal(t, []string{launch.DefaultMessageType}, nodes[1].Publishers[0].Types)
}

func TestGraphTopics(t *testing.T) {
	srv, _ := testServer(t)
	env := doGet(t, srv, "/graph/topics", http.StatusOK)

	var topics []TopicInfo
	require.NoError(t, json.Unmarshal(env.Data, &topics))
	require.Len(t, topics, 1)
	assert.Equal(t, TopicInfo{
		Name:        "/demo/chatter",
		Types:       []string{launch.DefaultMessageType},
		Publishers:  1,
		Subscribers: 1,
	}, topics[0])
}

func TestGraphTopicEndpoints(t *testing.T) {
	srv, _ := testServer(t)
	env := doGet(t, srv, "/graph/topics/demo/chatter", http.StatusOK)

	var ep TopicEndpoints
	require.NoError(t, json.Unmarshal(env.Data, &ep))
	assert.Equal(t, "/demo/chatter", ep.Name)
	require.Len(t, ep.Publishers, 1)
	assert.Equal(t, "talker", ep.Publishers[0].NodeName)
	assert.Equal(t, rcl.EndpointPublisher, ep.Publishers[0].EndpointType)
	require.Len(t, ep.Subscriptions, 1)
	assert.Equal(t, "listener", ep.Subscriptions[0].NodeName)

	env = doGet(t, srv, "/graph/topics/nowhere", http.StatusNotFound)
	assert.Equal(t, "error", env.Status)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrCodeNotFound, env.Error.Code)
}

func TestGraphServices(t *testing.T) {
	srv, _ := testServer(t)
	env := doGet(t, srv, "/graph/services", http.StatusOK)

	var services []rcl.NameAndTypes
	require.NoError(t, json.Unmarshal(env.Data, &services))
	require.Len(t, services, 1)
	assert.Equal(t, "/demo/echo", services[0].Name)
	assert.Equal(t, []string{launch.DefaultServiceType}, services[0].Types)
}

func TestExecutorStats(t *testing.T) {
	srv, sys := testServer(t)
	require.NoError(t, sys.Publish("talker", "out", nil))
	require.NoError(t, sys.Executor.SpinOnce(context.Background(), 0))

	env := doGet(t, srv, "/executor", http.StatusOK)
	var stats executor.Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, executor.SingleThreaded, stats.Kind)
	assert.Equal(t, 2, stats.Nodes)
	assert.Equal(t, int64(1), stats.Dispatched)
}

func TestExecutorUnavailable(t *testing.T) {
	srv := New(testutil.NewContext(t), nil, testLogger())
	env := doGet(t, srv, "/executor", http.StatusServiceUnavailable)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrCodeUnavailable, env.Error.Code)

	env = doGet(t, srv, "/healthz", http.StatusOK)
	var h Health
	require.NoError(t, json.Unmarshal(env.Data, &h))
	assert.Empty(t, h.ExecutorState)
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t)
	env := doGet(t, srv, "/nope", http.StatusNotFound)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, ErrCodeNotFound, env.Error.Code)
}
