// Package dispatch routes decoded request envelopes to their handlers:
// introspection methods answered from the workflow catalogue, agent
// discovery, and workflow execution against remote agents. Both transports
// funnel into the same Dispatcher.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meshailabs-org/meshai-mcp/pkg/agent"
	"github.com/meshailabs-org/meshai-mcp/pkg/auth"
	"github.com/meshailabs-org/meshai-mcp/pkg/envelope"
	gwerr "github.com/meshailabs-org/meshai-mcp/pkg/errors"
	"github.com/meshailabs-org/meshai-mcp/pkg/logger"
	"github.com/meshailabs-org/meshai-mcp/pkg/workflow"
)

// Permissions gating introspection methods.
const (
	permReadTools     = "read:tools"
	permReadResources = "read:resources"
)

// defaultMaxConcurrentSteps bounds the fan-out within one workflow wave.
const defaultMaxConcurrentSteps = 4

// Dispatcher executes request envelopes on behalf of authenticated users.
type Dispatcher struct {
	catalogue     *workflow.Catalogue
	agents        agent.Client
	stepTimeout   time.Duration
	maxConcurrent int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMaxConcurrentSteps overrides the per-wave concurrency bound.
func WithMaxConcurrentSteps(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxConcurrent = n
		}
	}
}

// New creates a Dispatcher. stepTimeout bounds each remote agent call.
func New(catalogue *workflow.Catalogue, agents agent.Client, stepTimeout time.Duration, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		catalogue:     catalogue,
		agents:        agents,
		stepTimeout:   stepTimeout,
		maxConcurrent: defaultMaxConcurrentSteps,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle executes one request and returns the response envelope, echoing the
// request id. A nil return means the context was cancelled and no response
// should be written.
func (d *Dispatcher) Handle(ctx context.Context, req *envelope.Request, user *auth.UserContext) *envelope.Message {
	result, err := d.dispatch(ctx, req, user)
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		logger.Debugw("Request failed", "method", req.Method, "user_id", user.UserID, "error", err)
		return envelope.NewErrorMessage(req.ID, err)
	}
	return envelope.NewResponse(req.ID, result)
}

func (d *Dispatcher) dispatch(ctx context.Context, req *envelope.Request, user *auth.UserContext) (any, error) {
	switch req.Method {
	case "tools/list":
		if err := requirePermissions(user, []string{permReadTools}); err != nil {
			return nil, err
		}
		return map[string]any{"tools": d.catalogue.Tools()}, nil
	case "resources/list":
		if err := requirePermissions(user, []string{permReadResources}); err != nil {
			return nil, err
		}
		return map[string]any{"resources": d.catalogue.Resources()}, nil
	case "workflows/list":
		return map[string]any{"workflows": d.catalogue.Definitions()}, nil
	case "mesh_discover_agents":
		return d.discoverAgents(ctx, req.Params, user)
	default:
		return d.runWorkflow(ctx, req, user)
	}
}

func (d *Dispatcher) discoverAgents(ctx context.Context, params map[string]any, user *auth.UserContext) (any, error) {
	if err := requirePermissions(user, []string{permReadTools}); err != nil {
		return nil, err
	}
	filter := agent.DiscoverFilter{}
	if capability, ok := params["capability"].(string); ok {
		filter.Capability = capability
	}
	if framework, ok := params["framework"].(string); ok {
		filter.Framework = framework
	}

	agents, err := d.agents.Discover(ctx, filter)
	if err != nil {
		return nil, gwerr.NewUpstreamAgentError("agent registry unavailable", err)
	}
	return map[string]any{"agents": agents}, nil
}

func (d *Dispatcher) runWorkflow(ctx context.Context, req *envelope.Request, user *auth.UserContext) (any, error) {
	def, err := d.catalogue.Resolve(req.Method, req.Params)
	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrUnknownMethod):
			return nil, gwerr.NewMethodNotFoundError(fmt.Sprintf("unknown method: %s", req.Method))
		case errors.Is(err, workflow.ErrUnknownWorkflow):
			return nil, gwerr.NewMethodNotFoundError(err.Error())
		default:
			return nil, gwerr.NewInternalError("failed to resolve workflow", err)
		}
	}

	// Every denial is reported at once so the client can fix its grant in
	// one round trip. No remote agent is contacted past this point unless
	// the check passes.
	if err := requirePermissions(user, def.RequiredPermissions); err != nil {
		return nil, err
	}

	if def.RequiredParameter != "" {
		if _, ok := req.Params[def.RequiredParameter]; !ok {
			return nil, gwerr.NewMalformedEnvelopeError(
				fmt.Sprintf("missing required parameter: %s", def.RequiredParameter), nil)
		}
	}

	return d.execute(ctx, def, req.Params, user)
}

func requirePermissions(user *auth.UserContext, required []string) error {
	missing := user.MissingPermissions(required)
	if len(missing) == 0 {
		return nil
	}
	return gwerr.NewPermissionDeniedError(
		fmt.Sprintf("missing required permissions: %s", strings.Join(missing, ", ")))
}
