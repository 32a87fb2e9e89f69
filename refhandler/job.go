package refhandler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"

	"github.com/sorryhyun/dipeo-engine/handler"
)

// jobHandler is the reference "job"/"code_job" node: the core's scope stops
// at the sandboxed-execution contract (§1), so this evaluates `code` as a
// single `result = <expression>` assignment through expr-lang rather than
// shelling out to a real python/javascript/bash sandbox — enough to drive
// the engine's data flow (§8 scenario 1) without embedding a real sandbox.
type jobHandler struct{}

// NewJob constructs the "job"/"code_job" node handler.
func NewJob() handler.Handler { return jobHandler{} }

func (jobHandler) NodeType() string           { return "job" }
func (jobHandler) RequiresServices() []string { return nil }

func (jobHandler) ParseProperties(raw map[string]any) (any, error) {
	props := handler.JobProps{Language: "python", Timeout: 30}
	if v, ok := raw["language"].(string); ok && v != "" {
		props.Language = v
	}
	if v, ok := raw["code"].(string); ok {
		props.Code = v
	}
	if v, ok := raw["timeout"].(int); ok && v > 0 {
		props.Timeout = v
	}
	switch props.Language {
	case "python", "javascript", "bash":
	default:
		return nil, &handler.ValidationError{NodeType: "job", Fields: []handler.FieldError{
			{Path: "language", Msg: fmt.Sprintf("must be one of python, javascript, bash (got %q)", props.Language)},
		}}
	}
	if strings.TrimSpace(props.Code) == "" {
		return nil, &handler.ValidationError{NodeType: "job", Fields: []handler.FieldError{{Path: "code", Msg: "required"}}}
	}
	return props, nil
}

func (jobHandler) Run(ctx context.Context, props any, cctx handler.ContextSnapshot, inputs map[string]any, _ handler.Services) (handler.NodeOutput, error) {
	p := props.(handler.JobProps)

	runCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(p.Timeout)*time.Second)
		defer cancel()
	}

	if err := runCtx.Err(); err != nil {
		return handler.NodeOutput{}, err
	}

	expression := parseAssignment(p.Code)
	env := map[string]any{
		"inputs":    inputs,
		"variables": cctx.Variables,
	}
	out, err := expr.Eval(expression, env)
	if err != nil {
		return handler.NodeOutput{}, fmt.Errorf("job: evaluate code: %w", err)
	}

	return handler.NodeOutput{
		Value:    map[string]any{"default": out},
		Metadata: map[string]any{"status": handler.StatusCompleted},
	}, nil
}

// parseAssignment strips a leading "result =" or "result=" from code,
// leaving the expression to evaluate. Code with no such prefix is
// evaluated as-is.
func parseAssignment(code string) string {
	trimmed := strings.TrimSpace(code)
	const prefix = "result"
	if !strings.HasPrefix(trimmed, prefix) {
		return trimmed
	}
	rest := strings.TrimSpace(trimmed[len(prefix):])
	if !strings.HasPrefix(rest, "=") {
		return trimmed
	}
	return strings.TrimSpace(rest[1:])
}
