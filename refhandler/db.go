package refhandler

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/sorryhyun/dipeo-engine/handler"
	"github.com/sorryhyun/dipeo-engine/registry"
)

// dbHandler reads, writes, or appends to a file through the FileService.
// source_details names the path; for "read" it also supports a dotted
// gjson query suffix ("path.json#query") to pull one field out of a JSON
// file rather than returning the whole document.
type dbHandler struct{}

// NewDB constructs the "db" node handler.
func NewDB() handler.Handler { return dbHandler{} }

func (dbHandler) NodeType() string           { return "db" }
func (dbHandler) RequiresServices() []string { return []string{registry.FileKey.Name} }

func (dbHandler) ParseProperties(raw map[string]any) (any, error) {
	props := handler.DBProps{Operation: "read"}
	if v, ok := raw["operation"].(string); ok && v != "" {
		props.Operation = v
	}
	if v, ok := raw["source_details"].(string); ok {
		props.SourceDetails = v
	}
	switch props.Operation {
	case "read", "write", "append":
	default:
		return nil, &handler.ValidationError{NodeType: "db", Fields: []handler.FieldError{
			{Path: "operation", Msg: fmt.Sprintf("must be one of read, write, append (got %q)", props.Operation)},
		}}
	}
	if props.SourceDetails == "" {
		return nil, &handler.ValidationError{NodeType: "db", Fields: []handler.FieldError{
			{Path: "source_details", Msg: "required"},
		}}
	}
	return props, nil
}

func (dbHandler) Run(_ context.Context, props any, _ handler.ContextSnapshot, inputs map[string]any, services handler.Services) (handler.NodeOutput, error) {
	p := props.(handler.DBProps)
	fs, ok := services[registry.FileKey.Name].(registry.FileService)
	if !ok {
		return handler.NodeOutput{}, fmt.Errorf("db: service %q did not resolve to a FileService", registry.FileKey.Name)
	}

	switch p.Operation {
	case "read":
		path, query := splitQuery(p.SourceDetails)
		data, err := fs.ReadFile(path)
		if err != nil {
			return handler.NodeOutput{}, err
		}
		if query == "" {
			return handler.NodeOutput{
				Value:    map[string]any{"default": string(data)},
				Metadata: map[string]any{"status": handler.StatusCompleted},
			}, nil
		}
		result := gjson.GetBytes(data, query)
		return handler.NodeOutput{
			Value:    map[string]any{"default": result.Value()},
			Metadata: map[string]any{"status": handler.StatusCompleted},
		}, nil

	case "write":
		content := renderForFile(inputs["default"])
		if err := fs.WriteFile(p.SourceDetails, []byte(content)); err != nil {
			return handler.NodeOutput{}, err
		}
		return handler.NodeOutput{
			Value:    map[string]any{"default": "written"},
			Metadata: map[string]any{"status": handler.StatusCompleted},
		}, nil

	default: // "append"
		existing, _ := fs.ReadFile(p.SourceDetails)
		merged, err := sjson.SetBytesOptions(existing, "entries.-1", inputs["default"], &sjson.Options{Optimistic: true})
		if err != nil {
			return handler.NodeOutput{}, fmt.Errorf("db: append: %w", err)
		}
		if err := fs.WriteFile(p.SourceDetails, merged); err != nil {
			return handler.NodeOutput{}, err
		}
		return handler.NodeOutput{
			Value:    map[string]any{"default": "appended"},
			Metadata: map[string]any{"status": handler.StatusCompleted},
		}, nil
	}
}

// splitQuery splits "path.json#gjson.query" into its path and query halves;
// a source_details with no "#" has no query and the whole file is returned.
func splitQuery(sourceDetails string) (path, query string) {
	for i := 0; i < len(sourceDetails); i++ {
		if sourceDetails[i] == '#' {
			return sourceDetails[:i], sourceDetails[i+1:]
		}
	}
	return sourceDetails, ""
}
