package refhandler

import (
	"context"
	"fmt"

	"github.com/sorryhyun/dipeo-engine/handler"
	"github.com/sorryhyun/dipeo-engine/registry"
)

// notionHandler dispatches a provider operation through the NotionService;
// it is the reference binding for §6.2's "notion"/"integrated_api" type —
// manifest-driven provider routing itself is out of scope (§1), so provider
// selection here is the single, fixed NotionService the registry holds.
type notionHandler struct{}

// NewNotion constructs the "notion"/"integrated_api" node handler.
func NewNotion() handler.Handler { return notionHandler{} }

func (notionHandler) NodeType() string           { return "notion" }
func (notionHandler) RequiresServices() []string { return []string{registry.NotionKey.Name} }

func (notionHandler) ParseProperties(raw map[string]any) (any, error) {
	props := handler.IntegratedAPIProps{Provider: "notion"}
	if v, ok := raw["provider"].(string); ok && v != "" {
		props.Provider = v
	}
	if v, ok := raw["operation"].(string); ok {
		props.Operation = v
	}
	if v, ok := raw["resource_id"].(string); ok {
		props.ResourceID = v
	}
	if v, ok := raw["config"].(map[string]any); ok {
		props.Config = v
	}
	if props.Operation == "" {
		return nil, &handler.ValidationError{NodeType: "notion", Fields: []handler.FieldError{{Path: "operation", Msg: "required"}}}
	}
	return props, nil
}

func (notionHandler) Run(ctx context.Context, props any, _ handler.ContextSnapshot, _ map[string]any, services handler.Services) (handler.NodeOutput, error) {
	p := props.(handler.IntegratedAPIProps)
	notion, ok := services[registry.NotionKey.Name].(registry.NotionService)
	if !ok {
		return handler.NodeOutput{}, fmt.Errorf("notion: service %q did not resolve to a NotionService", registry.NotionKey.Name)
	}

	result, err := notion.Execute(ctx, p.Operation, p.ResourceID, p.Config)
	if err != nil {
		return handler.NodeOutput{}, err
	}

	value := make(map[string]any, len(result)+1)
	for k, v := range result {
		value[k] = v
	}
	if _, ok := value["default"]; !ok {
		value["default"] = result
	}

	return handler.NodeOutput{
		Value:    value,
		Metadata: map[string]any{"status": handler.StatusCompleted},
	}, nil
}
