// Package refhandler implements the nine node-type handlers §6.2 names, each
// a thin binding between the handler.Handler contract and a capability
// resolved from the Service Registry. These are reference implementations —
// real deployments supply their own code-sandbox, Notion, and HTTP backends
// behind the same interfaces (§1: concrete handlers are out of the core's
// scope); what's fixed here is the property schema and output shape §6.2
// specifies for each type, grounded on the original Python handlers under
// original_source/.../execution/executors/handlers.
package refhandler

import (
	"context"

	"github.com/sorryhyun/dipeo-engine/handler"
)

// startHandler seeds an execution with its configured custom_data, exactly
// once — it is always dependency-satisfied (§4.5).
type startHandler struct{}

// NewStart constructs the "start" node handler.
func NewStart() handler.Handler { return startHandler{} }

func (startHandler) NodeType() string           { return "start" }
func (startHandler) RequiresServices() []string { return nil }

func (startHandler) ParseProperties(raw map[string]any) (any, error) {
	props := handler.StartProps{TriggerMode: "manual"}
	if v, ok := raw["custom_data"].(map[string]any); ok {
		props.CustomData = v
	}
	if v, ok := raw["trigger_mode"].(string); ok && v != "" {
		props.TriggerMode = v
	}
	return props, nil
}

func (startHandler) Run(_ context.Context, props any, _ handler.ContextSnapshot, _ map[string]any, _ handler.Services) (handler.NodeOutput, error) {
	p := props.(handler.StartProps)
	data := p.CustomData
	if data == nil {
		data = map[string]any{}
	}
	return handler.NodeOutput{
		Value:    map[string]any{"default": data},
		Metadata: map[string]any{"status": handler.StatusCompleted},
	}, nil
}
