// Package tools provides the tool registry and executor backing LLM
// function calling. Tools declare their parameters once; the JSON Schema
// advertised to the model is derived from that declaration, with the
// required list computed from parameters not marked optional.
package tools

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/mindpattern/voicegate/types"
)

// Param describes a single tool parameter.
type Param struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Optional    bool     `json:"-"`
}

// Tool is the contract every callable tool implements.
type Tool interface {
	// Name returns the tool's unique identifier.
	Name() string

	// Description returns a model-facing summary of what the tool does.
	Description() string

	// Parameters declares the tool's arguments by name.
	Parameters() map[string]Param

	// Execute runs the tool with validated JSON arguments and returns
	// its output as a string suitable for a tool-role message.
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// jsonSchema is the wire shape advertised to the model.
type jsonSchema struct {
	Type       string           `json:"type"`
	Properties map[string]Param `json:"properties"`
	Required   []string         `json:"required"`
}

// BuildSchema derives a tool's function-calling schema from its
// parameter declaration. Required holds every parameter not marked
// optional, sorted for a stable wire representation.
func BuildSchema(t Tool) types.ToolSchema {
	params := t.Parameters()
	required := make([]string, 0, len(params))
	for name, p := range params {
		if !p.Optional {
			required = append(required, name)
		}
	}
	sort.Strings(required)

	raw, _ := json.Marshal(jsonSchema{
		Type:       "object",
		Properties: params,
		Required:   required,
	})
	return types.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  raw,
	}
}
