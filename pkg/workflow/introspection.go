package workflow

import "fmt"

// Tool describes an invokable tool for tools/list.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Resource describes a readable resource for resources/list.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

// Tools returns the tool descriptors exposed by the gateway: the generic
// executor, one tool per named workflow, and agent discovery.
func (c *Catalogue) Tools() []Tool {
	workflowNames := make([]string, 0, len(c.definitions))
	for _, def := range c.definitions {
		workflowNames = append(workflowNames, def.Name)
	}

	tools := []Tool{
		{
			Name:        "mesh_execute",
			Description: "Execute a task using MeshAI's multi-agent orchestration",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"task": map[string]any{
						"type":        "string",
						"description": "Task description for the agents to execute",
					},
					"workflow": map[string]any{
						"type":        "string",
						"description": "Predefined workflow name (optional)",
						"enum":        workflowNames,
					},
					"agents": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Specific agents to use (optional, overrides workflow)",
					},
					"context": map[string]any{
						"type":        "object",
						"description": "Additional context for the task (file contents, project info, etc.)",
					},
				},
				"required": []string{"task"},
			},
		},
	}

	for _, def := range c.definitions {
		properties := map[string]any{
			"context": map[string]any{
				"type":        "object",
				"description": "Additional context (file contents, etc.)",
			},
		}
		var required []string
		for param, desc := range def.Parameters {
			properties[param] = map[string]any{
				"type":        "string",
				"description": desc,
			}
		}
		if def.RequiredParameter != "" {
			required = []string{def.RequiredParameter}
		}
		tools = append(tools, Tool{
			Name:        def.Method(),
			Description: "Execute " + def.Description,
			InputSchema: map[string]any{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		})
	}

	tools = append(tools, Tool{
		Name:        "mesh_discover_agents",
		Description: "Discover available agents and their capabilities",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"capability": map[string]any{
					"type":        "string",
					"description": "Filter agents by capability (optional)",
				},
				"framework": map[string]any{
					"type":        "string",
					"description": "Filter agents by framework (optional)",
				},
			},
		},
	})

	return tools
}

// Resources returns the resource descriptors: one per workflow definition
// plus the live agent registry.
func (c *Catalogue) Resources() []Resource {
	resources := make([]Resource, 0, len(c.definitions)+1)
	for _, def := range c.definitions {
		resources = append(resources, Resource{
			URI:         fmt.Sprintf("meshai://workflow/%s", def.Name),
			Name:        fmt.Sprintf("MeshAI Workflow: %s", def.Name),
			Description: def.Description,
			MimeType:    "application/json",
		})
	}
	resources = append(resources, Resource{
		URI:         "meshai://agents/registry",
		Name:        "MeshAI Agent Registry",
		Description: "Available AI agents in the MeshAI registry",
		MimeType:    "application/json",
	})
	return resources
}
