package refhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/sorryhyun/dipeo-engine/handler"
	"github.com/sorryhyun/dipeo-engine/registry"
)

// userResponseHandler routes its prompt to the execution's InteractiveService
// (the per-run interactive_handler callback, §6.1's execute() parameter) and
// returns whatever the human or caller answered.
type userResponseHandler struct{}

// NewUserResponse constructs the "user_response" node handler.
func NewUserResponse() handler.Handler { return userResponseHandler{} }

func (userResponseHandler) NodeType() string           { return "user_response" }
func (userResponseHandler) RequiresServices() []string { return []string{registry.InteractiveKey.Name} }

func (userResponseHandler) ParseProperties(raw map[string]any) (any, error) {
	props := handler.UserResponseProps{Timeout: 300}
	if v, ok := raw["prompt"].(string); ok {
		props.Prompt = v
	}
	if v, ok := raw["timeout"].(int); ok && v > 0 {
		props.Timeout = v
	}
	if props.Prompt == "" {
		return nil, &handler.ValidationError{NodeType: "user_response", Fields: []handler.FieldError{{Path: "prompt", Msg: "required"}}}
	}
	return props, nil
}

func (userResponseHandler) Run(ctx context.Context, props any, _ handler.ContextSnapshot, _ map[string]any, services handler.Services) (handler.NodeOutput, error) {
	p := props.(handler.UserResponseProps)
	interactive, ok := services[registry.InteractiveKey.Name].(registry.InteractiveService)
	if !ok {
		return handler.NodeOutput{}, fmt.Errorf("user_response: service %q did not resolve to an InteractiveService", registry.InteractiveKey.Name)
	}

	answer, err := interactive.Ask(ctx, p.Prompt, time.Duration(p.Timeout)*time.Second)
	if err != nil {
		return handler.NodeOutput{}, err
	}

	return handler.NodeOutput{
		Value:    map[string]any{"default": answer},
		Metadata: map[string]any{"status": handler.StatusCompleted},
	}, nil
}
