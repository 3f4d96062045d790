// Package workflow defines the static catalogue of multi-agent workflows and
// the heuristic selector used for ad hoc tool calls. The catalogue is built
// once at process start and read-only thereafter.
package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors surfaced by Resolve.
var (
	// ErrUnknownMethod means the method matches no workflow or tool.
	ErrUnknownMethod = errors.New("unknown method")

	// ErrUnknownWorkflow means a workflow name was given but not found.
	ErrUnknownWorkflow = errors.New("unknown workflow")
)

// methodPrefix is prepended to workflow tool names on the wire, e.g.
// the code-review workflow is invoked as mesh_code_review.
const methodPrefix = "mesh_"

// executePermissions are required by every workflow: agents perform work on
// the caller's behalf and write their results back through the agent API.
var executePermissions = []string{"execute:mcp", "write:agents"}

// AgentStep declares one unit of remote agent work within a workflow.
type AgentStep struct {
	// Role names the step within its workflow; unique per workflow.
	Role string `json:"role"`

	// AgentHint identifies the preferred remote agent for this step.
	AgentHint string `json:"agent_hint"`

	// DependsOn lists roles that must complete successfully before this
	// step runs. Empty means the step can start immediately.
	DependsOn []string `json:"depends_on,omitempty"`
}

// Definition is a named, ordered set of agent steps invoked as a unit.
type Definition struct {
	// Name is the workflow identifier, e.g. "code-review".
	Name string `json:"name"`

	// Description is shown in tool listings.
	Description string `json:"description"`

	// Steps are the agent steps in declaration order.
	Steps []AgentStep `json:"steps"`

	// Parameters documents the accepted request parameters.
	Parameters map[string]string `json:"parameters,omitempty"`

	// RequiredParameter is the one parameter callers must supply.
	RequiredParameter string `json:"required_parameter,omitempty"`

	// RequiredPermissions must all be held by the caller before any remote
	// agent call is made.
	RequiredPermissions []string `json:"required_permissions"`
}

// Method returns the wire method name for the workflow.
func (d *Definition) Method() string {
	return methodPrefix + strings.ReplaceAll(d.Name, "-", "_")
}

// Catalogue is the static registry of workflow definitions.
type Catalogue struct {
	definitions []*Definition
	byMethod    map[string]*Definition
	byName      map[string]*Definition
}

// NewCatalogue builds the catalogue of named workflows.
func NewCatalogue() *Catalogue {
	c := &Catalogue{
		byMethod: make(map[string]*Definition),
		byName:   make(map[string]*Definition),
	}
	for _, def := range builtinDefinitions() {
		c.definitions = append(c.definitions, def)
		c.byMethod[def.Method()] = def
		c.byName[def.Name] = def
	}
	return c
}

// Definitions returns the workflows in declaration order.
func (c *Catalogue) Definitions() []*Definition {
	return c.definitions
}

// Resolve maps a request method and params to a workflow definition. Named
// workflow methods resolve directly; mesh_execute builds a single-wave ad
// hoc workflow from explicit agents, a named workflow, or the selector's
// reading of the task text. Anything else is ErrUnknownMethod.
func (c *Catalogue) Resolve(method string, params map[string]any) (*Definition, error) {
	if def, ok := c.byMethod[method]; ok {
		return def, nil
	}
	if method != "mesh_execute" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}

	if agents := stringSlice(params["agents"]); len(agents) > 0 {
		return adHocDefinition(agents), nil
	}

	if name, ok := params["workflow"].(string); ok && name != "" {
		def, ok := c.byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, name)
		}
		return def, nil
	}

	task, _ := params["task"].(string)
	return adHocDefinition(SelectAgents(task)), nil
}

// adHocDefinition wraps a flat agent list as a single-wave workflow: every
// step is independent and may run concurrently.
func adHocDefinition(agents []string) *Definition {
	def := &Definition{
		Name:                "ad-hoc",
		Description:         "Ad hoc multi-agent execution",
		RequiredPermissions: executePermissions,
	}
	for _, agent := range agents {
		def.Steps = append(def.Steps, AgentStep{Role: agent, AgentHint: agent})
	}
	return def
}

func stringSlice(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func builtinDefinitions() []*Definition {
	return []*Definition{
		{
			Name:        "code-review",
			Description: "Comprehensive code review with security and best practices analysis",
			Steps: []AgentStep{
				{Role: "review", AgentHint: "code-reviewer"},
				{Role: "security", AgentHint: "security-analyzer", DependsOn: []string{"review"}},
				{Role: "practices", AgentHint: "best-practices-advisor", DependsOn: []string{"review"}},
			},
			Parameters: map[string]string{
				"files":       "List of files to review",
				"depth":       "Review depth: standard, comprehensive, security-focused",
				"focus_areas": "Specific areas to focus on (optional)",
			},
			RequiredParameter:   "files",
			RequiredPermissions: executePermissions,
		},
		{
			Name:        "refactor-optimize",
			Description: "Refactor code with performance optimization and test generation",
			Steps: []AgentStep{
				{Role: "optimize", AgentHint: "code-optimizer"},
				{Role: "performance", AgentHint: "performance-analyzer", DependsOn: []string{"optimize"}},
				{Role: "tests", AgentHint: "test-generator", DependsOn: []string{"optimize"}},
			},
			Parameters: map[string]string{
				"files":        "Files to refactor",
				"goals":        "Refactoring goals: performance, readability, maintainability",
				"preserve_api": "Whether to preserve existing API contracts",
			},
			RequiredParameter:   "files",
			RequiredPermissions: executePermissions,
		},
		{
			Name:        "debug-fix",
			Description: "Debug issues and generate tests for fixes",
			Steps: []AgentStep{
				{Role: "diagnose", AgentHint: "debugger-expert"},
				{Role: "logs", AgentHint: "log-analyzer"},
				{Role: "tests", AgentHint: "test-generator", DependsOn: []string{"diagnose"}},
			},
			Parameters: map[string]string{
				"issue_description": "Description of the bug or issue",
				"error_logs":        "Error logs or stack traces (optional)",
				"affected_files":    "Files that might be affected",
			},
			RequiredParameter:   "issue_description",
			RequiredPermissions: executePermissions,
		},
		{
			Name:        "document-explain",
			Description: "Generate documentation and explanations with examples",
			Steps: []AgentStep{
				{Role: "explain", AgentHint: "code-explainer"},
				{Role: "document", AgentHint: "doc-writer", DependsOn: []string{"explain"}},
				{Role: "examples", AgentHint: "example-generator", DependsOn: []string{"explain"}},
			},
			Parameters: map[string]string{
				"files":    "Files to document",
				"audience": "Target audience: developers, users, contributors",
				"style":    "Documentation style: api, tutorial, reference",
			},
			RequiredParameter:   "files",
			RequiredPermissions: executePermissions,
		},
		{
			Name:        "architecture-review",
			Description: "Comprehensive architecture analysis and recommendations",
			Steps: []AgentStep{
				{Role: "architecture", AgentHint: "system-architect"},
				{Role: "performance", AgentHint: "performance-analyst", DependsOn: []string{"architecture"}},
				{Role: "security", AgentHint: "security-auditor", DependsOn: []string{"architecture"}},
			},
			Parameters: map[string]string{
				"scope":       "Architecture scope: module, service, system",
				"focus":       "Analysis focus: scalability, security, performance",
				"constraints": "Any architectural constraints or requirements",
			},
			RequiredParameter:   "scope",
			RequiredPermissions: executePermissions,
		},
		{
			Name:        "feature-development",
			Description: "End-to-end feature development from design to testing",
			Steps: []AgentStep{
				{Role: "design", AgentHint: "product-designer"},
				{Role: "implement", AgentHint: "senior-developer", DependsOn: []string{"design"}},
				{Role: "test", AgentHint: "test-engineer", DependsOn: []string{"implement"}},
				{Role: "document", AgentHint: "doc-writer", DependsOn: []string{"implement"}},
			},
			Parameters: map[string]string{
				"feature_description": "Detailed feature description",
				"requirements":        "Functional and non-functional requirements",
				"include_tests":       "Whether to generate tests",
				"include_docs":        "Whether to generate documentation",
			},
			RequiredParameter:   "feature_description",
			RequiredPermissions: executePermissions,
		},
	}
}
