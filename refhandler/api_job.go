package refhandler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/sorryhyun/dipeo-engine/handler"
	"github.com/sorryhyun/dipeo-engine/registry"
)

// apiJobHandler issues one outbound HTTP call through the HTTPService and
// returns its body as the node's default output.
type apiJobHandler struct{}

// NewAPIJob constructs the "api_job" node handler.
func NewAPIJob() handler.Handler { return apiJobHandler{} }

func (apiJobHandler) NodeType() string           { return "api_job" }
func (apiJobHandler) RequiresServices() []string { return []string{registry.HTTPKey.Name} }

func (apiJobHandler) ParseProperties(raw map[string]any) (any, error) {
	props := handler.APIJobProps{Method: "GET"}
	if v, ok := raw["url"].(string); ok {
		props.URL = v
	}
	if v, ok := raw["method"].(string); ok && v != "" {
		props.Method = strings.ToUpper(v)
	}
	if v, ok := raw["headers"].(map[string]any); ok {
		props.Headers = make(map[string]string, len(v))
		for k, hv := range v {
			if s, ok := hv.(string); ok {
				props.Headers[k] = s
			}
		}
	}
	props.Body = raw["body"]
	if props.URL == "" {
		return nil, &handler.ValidationError{NodeType: "api_job", Fields: []handler.FieldError{{Path: "url", Msg: "required"}}}
	}
	return props, nil
}

func (apiJobHandler) Run(ctx context.Context, props any, _ handler.ContextSnapshot, _ map[string]any, services handler.Services) (handler.NodeOutput, error) {
	p := props.(handler.APIJobProps)
	httpSvc, ok := services[registry.HTTPKey.Name].(registry.HTTPService)
	if !ok {
		return handler.NodeOutput{}, fmt.Errorf("api_job: service %q did not resolve to an HTTPService", registry.HTTPKey.Name)
	}

	var bodyReader io.Reader
	if p.Body != nil {
		if s, ok := p.Body.(string); ok {
			bodyReader = strings.NewReader(s)
		} else {
			bodyReader = bytes.NewReader([]byte(jsonOrEmpty(p.Body)))
		}
	}

	req, err := http.NewRequestWithContext(ctx, p.Method, p.URL, bodyReader)
	if err != nil {
		return handler.NodeOutput{}, fmt.Errorf("api_job: build request: %w", err)
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	resp, err := httpSvc.Do(req)
	if err != nil {
		return handler.NodeOutput{}, fmt.Errorf("api_job: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return handler.NodeOutput{}, fmt.Errorf("api_job: read response: %w", err)
	}

	var body any = string(raw)
	if gjson.ValidBytes(raw) {
		body = gjson.ParseBytes(raw).Value()
	}

	return handler.NodeOutput{
		Value: map[string]any{"default": body},
		Metadata: map[string]any{
			"status":      statusFor(resp.StatusCode),
			"status_code": resp.StatusCode,
		},
	}, nil
}

func statusFor(code int) string {
	if code >= 200 && code < 400 {
		return handler.StatusCompleted
	}
	return handler.StatusFailed
}
