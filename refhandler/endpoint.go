package refhandler

import (
	"context"

	"github.com/sorryhyun/dipeo-engine/handler"
	"github.com/sorryhyun/dipeo-engine/registry"
)

// endpointHandler is the terminal node: it passes its input through
// unchanged and, when configured, writes it to a file via the FileService.
// The scheduler sets endpoint_reached once this handler returns
// successfully (§4.5 step 6).
type endpointHandler struct{}

// NewEndpoint constructs the "endpoint" node handler.
func NewEndpoint() handler.Handler { return endpointHandler{} }

func (endpointHandler) NodeType() string { return "endpoint" }

func (endpointHandler) RequiresServices() []string { return nil }

func (endpointHandler) ParseProperties(raw map[string]any) (any, error) {
	props := handler.EndpointProps{}
	if v, ok := raw["save_to_file"].(bool); ok {
		props.SaveToFile = v
	}
	if v, ok := raw["file_name"].(string); ok {
		props.FileName = v
	}
	if props.SaveToFile && props.FileName == "" {
		return nil, &handler.ValidationError{NodeType: "endpoint", Fields: []handler.FieldError{
			{Path: "file_name", Msg: "required when save_to_file is true"},
		}}
	}
	return props, nil
}

func (endpointHandler) Run(ctx context.Context, props any, _ handler.ContextSnapshot, inputs map[string]any, services handler.Services) (handler.NodeOutput, error) {
	p := props.(handler.EndpointProps)
	if p.SaveToFile {
		fs, ok := services[registry.FileKey.Name].(registry.FileService)
		if ok {
			content := renderForFile(inputs["default"])
			if err := fs.WriteFile(p.FileName, []byte(content)); err != nil {
				return handler.NodeOutput{}, err
			}
		}
	}
	return handler.NodeOutput{
		Value:    map[string]any{"default": inputs["default"]},
		Metadata: map[string]any{"status": handler.StatusCompleted},
	}, nil
}

func renderForFile(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return jsonOrEmpty(v)
}
