// Package agent provides the client for the MeshAI agent runtime API. The
// dispatcher uses it to invoke remote agents and to discover what is
// registered; it never interprets agent output beyond carrying it back.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// maxResponseBody bounds how much of an agent response is read.
const maxResponseBody = 4 << 20

// InvokeRequest describes one unit of work sent to a remote agent.
type InvokeRequest struct {
	// AgentID identifies the agent to invoke.
	AgentID string `json:"agent_id"`

	// Role is the step role within the workflow, for the agent's context.
	Role string `json:"role,omitempty"`

	// Workflow names the workflow this invocation belongs to.
	Workflow string `json:"workflow,omitempty"`

	// RunID correlates all invocations of one workflow run.
	RunID string `json:"run_id,omitempty"`

	// Params carries the client-supplied request parameters.
	Params map[string]any `json:"params,omitempty"`

	// Inputs carries the outputs of completed dependency steps, keyed by
	// role.
	Inputs map[string]any `json:"inputs,omitempty"`
}

// InvokeResult is a remote agent's output.
type InvokeResult struct {
	// AgentID echoes the invoked agent.
	AgentID string `json:"agent_id"`

	// Output is the agent's result payload, opaque to the gateway.
	Output any `json:"output"`

	// Duration is the agent-reported execution time in milliseconds.
	Duration int64 `json:"duration_ms,omitempty"`
}

// AgentInfo describes a registered agent.
type AgentInfo struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Framework    string   `json:"framework,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Status       string   `json:"status,omitempty"`
}

// DiscoverFilter narrows agent discovery. Zero values match everything.
type DiscoverFilter struct {
	Capability string
	Framework  string
}

// Client invokes remote agents and queries the agent registry.
type Client interface {
	// Invoke runs one agent call, blocking until the agent responds or
	// ctx is done.
	Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResult, error)

	// Discover lists registered agents matching the filter.
	Discover(ctx context.Context, filter DiscoverFilter) ([]AgentInfo, error)
}

// transientError marks failures worth retrying: connection errors, timeouts,
// and 5xx responses. A 4xx rejection is never transient.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// IsTransient reports whether the error came from a failure that a retry
// could plausibly clear.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// NewTransientError marks err as transient. Client implementations use it to
// classify their own failures; it is also handy for test doubles.
func NewTransientError(err error) error {
	return &transientError{err: err}
}

// HTTPClient is the HTTP implementation of Client. A circuit breaker guards
// all outbound calls: after repeated transport failures or 5xx responses the
// client returns [ErrCircuitOpen] without contacting the backend until the
// recovery timeout elapses.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *circuitBreaker
}

// NewHTTPClient creates an agent API client. The token is the gateway's
// process credential; timeout bounds each call end to end.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    newCircuitBreaker(),
	}
}

// Invoke posts the request to the agent's invoke endpoint.
func (c *HTTPClient) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResult, error) {
	if !c.breaker.allow() {
		return nil, ErrCircuitOpen
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invoke request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/agents/%s/invoke", c.baseURL, url.PathEscape(req.AgentID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build invoke request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setAuth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.breaker.recordFailure()
		return nil, &transientError{err: fmt.Errorf("agent %s unreachable: %w", req.AgentID, err)}
	}
	defer resp.Body.Close()
	c.recordOutcome(resp)

	if err := checkStatus(resp, req.AgentID); err != nil {
		return nil, err
	}

	var result InvokeResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response from agent %s: %w", req.AgentID, err)
	}
	if result.AgentID == "" {
		result.AgentID = req.AgentID
	}
	return &result, nil
}

// Discover queries the agent registry with optional capability and framework
// filters.
func (c *HTTPClient) Discover(ctx context.Context, filter DiscoverFilter) ([]AgentInfo, error) {
	if !c.breaker.allow() {
		return nil, ErrCircuitOpen
	}

	endpoint, err := url.Parse(c.baseURL + "/agents")
	if err != nil {
		return nil, fmt.Errorf("invalid agent API URL: %w", err)
	}
	query := endpoint.Query()
	if filter.Capability != "" {
		query.Set("capability", filter.Capability)
	}
	if filter.Framework != "" {
		query.Set("framework", filter.Framework)
	}
	endpoint.RawQuery = query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build discovery request: %w", err)
	}
	c.setAuth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.breaker.recordFailure()
		return nil, &transientError{err: fmt.Errorf("agent registry unreachable: %w", err)}
	}
	defer resp.Body.Close()
	c.recordOutcome(resp)

	if err := checkStatus(resp, "registry"); err != nil {
		return nil, err
	}

	var payload struct {
		Agents []AgentInfo `json:"agents"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode discovery response: %w", err)
	}
	return payload.Agents, nil
}

// recordOutcome feeds the breaker. A 5xx response counts as a failure; any
// other response proves the backend reachable, even a 4xx rejection.
func (c *HTTPClient) recordOutcome(resp *http.Response) {
	if resp.StatusCode >= 500 {
		c.breaker.recordFailure()
	} else {
		c.breaker.recordSuccess()
	}
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func checkStatus(resp *http.Response, target string) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode >= 500:
		return &transientError{err: fmt.Errorf("agent API returned status %d for %s", resp.StatusCode, target)}
	default:
		return fmt.Errorf("agent API rejected call to %s with status %d", target, resp.StatusCode)
	}
}
