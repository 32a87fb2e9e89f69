package refhandler

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/sorryhyun/dipeo-engine/handler"
)

// conditionHandler evaluates a boolean expression over the node's inputs and
// forwards them on whichever of the "true"/"false" output keys the result
// selects, per §6.2's condition contract and §4.6's branch-skip rule that
// reads condition_result back out of this metadata.
type conditionHandler struct{}

// NewCondition constructs the "condition" node handler.
func NewCondition() handler.Handler { return conditionHandler{} }

func (conditionHandler) NodeType() string           { return "condition" }
func (conditionHandler) RequiresServices() []string { return nil }

func (conditionHandler) ParseProperties(raw map[string]any) (any, error) {
	props := handler.ConditionProps{ConditionType: "expression"}
	if v, ok := raw["condition_type"].(string); ok && v != "" {
		props.ConditionType = v
	}
	if v, ok := raw["expression"].(string); ok {
		props.Expression = v
	}
	if props.ConditionType == "expression" && props.Expression == "" {
		return nil, &handler.ValidationError{NodeType: "condition", Fields: []handler.FieldError{
			{Path: "expression", Msg: "required when condition_type is \"expression\""},
		}}
	}
	return props, nil
}

func (conditionHandler) Run(_ context.Context, props any, cctx handler.ContextSnapshot, inputs map[string]any, _ handler.Services) (handler.NodeOutput, error) {
	p := props.(handler.ConditionProps)

	var result bool
	switch p.ConditionType {
	case "detect_max_iterations":
		// The scheduler alone knows a node's max_iterations cap (§4.5); a
		// ContextSnapshot only carries exec_counts, so this condition_type
		// is only meaningful when the diagram also threads the cap through
		// a "max_iterations" variable for this handler to compare against.
		count := cctx.ExecCounts[cctx.CurrentNodeID]
		maxIter, _ := cctx.Variables["max_iterations"].(int)
		result = maxIter > 0 && count >= maxIter
	default:
		env := map[string]any{
			"inputs":        inputs,
			"variables":     cctx.Variables,
			"executionCount": cctx.ExecCounts[cctx.CurrentNodeID],
		}
		out, err := expr.Eval(p.Expression, env)
		if err != nil {
			return handler.NodeOutput{}, fmt.Errorf("condition: evaluate %q: %w", p.Expression, err)
		}
		b, ok := out.(bool)
		if !ok {
			return handler.NodeOutput{}, fmt.Errorf("condition: expression %q did not evaluate to a bool (got %T)", p.Expression, out)
		}
		result = b
	}

	value := make(map[string]any, len(inputs)+1)
	for k, v := range inputs {
		value[k] = v
	}
	branchKey := "false"
	if result {
		branchKey = "true"
	}
	value[branchKey] = inputs["default"]

	return handler.NodeOutput{
		Value: value,
		Metadata: map[string]any{
			"status":           handler.StatusCompleted,
			"condition_result": result,
		},
	}, nil
}
