package agent_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshailabs-org/meshai-mcp/pkg/agent"
)

func TestInvoke(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	var gotBody agent.InvokeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"agent_id": "code-reviewer", "output": {"verdict": "lgtm"}, "duration_ms": 1200}`))
	}))
	defer server.Close()

	c := agent.NewHTTPClient(server.URL, "process-token", 5*time.Second)
	result, err := c.Invoke(context.Background(), &agent.InvokeRequest{
		AgentID:  "code-reviewer",
		Role:     "review",
		Workflow: "code-review",
		RunID:    "run-1",
		Params:   map[string]any{"files": []any{"main.go"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "/agents/code-reviewer/invoke", gotPath)
	assert.Equal(t, "Bearer process-token", gotAuth)
	assert.Equal(t, "review", gotBody.Role)
	assert.Equal(t, "run-1", gotBody.RunID)

	assert.Equal(t, "code-reviewer", result.AgentID)
	assert.Equal(t, map[string]any{"verdict": "lgtm"}, result.Output)
	assert.Equal(t, int64(1200), result.Duration)
}

func TestInvokeServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := agent.NewHTTPClient(server.URL, "", 5*time.Second)
	_, err := c.Invoke(context.Background(), &agent.InvokeRequest{AgentID: "code-reviewer"})
	require.Error(t, err)
	assert.True(t, agent.IsTransient(err))
}

func TestInvokeRejectionIsNotTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := agent.NewHTTPClient(server.URL, "", 5*time.Second)
	_, err := c.Invoke(context.Background(), &agent.InvokeRequest{AgentID: "no-such-agent"})
	require.Error(t, err)
	assert.False(t, agent.IsTransient(err))
}

func TestInvokeConnectionFailureIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	server.Close()

	c := agent.NewHTTPClient(server.URL, "", time.Second)
	_, err := c.Invoke(context.Background(), &agent.InvokeRequest{AgentID: "code-reviewer"})
	require.Error(t, err)
	assert.True(t, agent.IsTransient(err))
}

func TestRepeatedServerErrorsOpenCircuit(t *testing.T) {
	t.Parallel()

	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := agent.NewHTTPClient(server.URL, "", 5*time.Second)
	for i := 0; i < 5; i++ {
		_, err := c.Invoke(context.Background(), &agent.InvokeRequest{AgentID: "code-reviewer"})
		require.Error(t, err)
		assert.True(t, agent.IsTransient(err))
	}
	assert.Equal(t, 5, hits)

	// The circuit is open now; the backend must not be contacted again.
	_, err := c.Invoke(context.Background(), &agent.InvokeRequest{AgentID: "code-reviewer"})
	require.ErrorIs(t, err, agent.ErrCircuitOpen)
	assert.False(t, agent.IsTransient(err), "an open circuit should not be retried")
	assert.Equal(t, 5, hits)

	_, err = c.Discover(context.Background(), agent.DiscoverFilter{})
	require.ErrorIs(t, err, agent.ErrCircuitOpen)
	assert.Equal(t, 5, hits)
}

func TestRejectionDoesNotOpenCircuit(t *testing.T) {
	t.Parallel()

	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := agent.NewHTTPClient(server.URL, "", 5*time.Second)
	for i := 0; i < 10; i++ {
		_, err := c.Invoke(context.Background(), &agent.InvokeRequest{AgentID: "no-such-agent"})
		require.Error(t, err)
	}
	// Rejections prove the backend reachable; every call goes through.
	assert.Equal(t, 10, hits)
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"agents": [
			{"id": "code-reviewer", "name": "Code Reviewer", "framework": "langchain", "capabilities": ["review"]},
			{"id": "test-generator", "name": "Test Generator", "framework": "crewai", "capabilities": ["testing"]}
		]}`))
	}))
	defer server.Close()

	c := agent.NewHTTPClient(server.URL, "", 5*time.Second)
	agents, err := c.Discover(context.Background(), agent.DiscoverFilter{
		Capability: "review",
		Framework:  "langchain",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"review"}, gotQuery["capability"])
	assert.Equal(t, []string{"langchain"}, gotQuery["framework"])
	require.Len(t, agents, 2)
	assert.Equal(t, "code-reviewer", agents[0].ID)
	assert.Equal(t, []string{"testing"}, agents[1].Capabilities)
}

func TestDiscoverWithoutFilters(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		_, _ = w.Write([]byte(`{"agents": []}`))
	}))
	defer server.Close()

	c := agent.NewHTTPClient(server.URL, "", 5*time.Second)
	agents, err := c.Discover(context.Background(), agent.DiscoverFilter{})
	require.NoError(t, err)
	assert.Empty(t, agents)
}
