// Package handler defines the abstract contract node type implementations
// are built against (§6.2): typed properties, a read-only context snapshot,
// collected inputs, resolved services, and the NodeOutput they return.
package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/sorryhyun/dipeo-engine/diagram"
)

// NodeOutput is the single value a handler hands back to the scheduler.
// Value is keyed by edge label so producers and consumers agree on which
// slot carries which payload; Metadata carries status, error, tokenUsage,
// condition_result, and timing fields.
type NodeOutput struct {
	Value    map[string]any
	Metadata map[string]any
}

// TokenUsage is the per-call token breakdown an LLM-backed handler reports
// via NodeOutput.Metadata["tokenUsage"].
type TokenUsage struct {
	Input  int
	Output int
	Total  int
	Cached int
}

// Status constants used in NodeOutput.Metadata["status"].
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
	StatusCancelled = "cancelled"
)

// ContextSnapshot is the read-only view of the ExecutionContext a handler
// receives. It is a value copy of the live maps taken under lock at the
// moment of invocation; handlers must not assume it reflects later writes.
type ContextSnapshot struct {
	ExecutionID   diagram.ExecutionID
	DiagramID     string
	CurrentNodeID diagram.NodeID
	Variables     map[string]any
	APIKeys       map[string]string
	Persons       map[diagram.PersonID]diagram.Person
	NodeOutputs   map[diagram.NodeID]NodeOutput
	ExecCounts    map[diagram.NodeID]int
}

// Services is the subset of the Service Registry a handler declared via
// RequiresServices, resolved by name and passed in.
type Services map[string]any

// Handler binds a node type to its property schema and invocation function.
type Handler interface {
	// NodeType returns the unique type tag this handler serves, e.g. "start".
	NodeType() string

	// RequiresServices lists Service Registry keys the scheduler must
	// resolve and pass in Services before Run is called.
	RequiresServices() []string

	// ParseProperties parses a node's raw property bag into this handler's
	// typed properties value, or returns a *ValidationError.
	ParseProperties(raw map[string]any) (any, error)

	// Run executes the node. props is the value ParseProperties returned.
	Run(ctx context.Context, props any, cctx ContextSnapshot, inputs map[string]any, services Services) (NodeOutput, error)
}

// FieldError pairs a dotted property path with a human-readable message.
type FieldError struct {
	Path string
	Msg  string
}

func (e FieldError) String() string { return fmt.Sprintf("%s: %s", e.Path, e.Msg) }

// ValidationError is returned by ParseProperties when the raw property bag
// fails the handler's schema; it lists every violation found.
type ValidationError struct {
	NodeType string
	Fields   []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("%s: validation failed: %s", e.NodeType, strings.Join(parts, "; "))
}

// Fail constructs a failed NodeOutput carrying the given error message. A
// handler may return it to report handler_failure, and the state observer
// persists this shape for a node_error. The scheduler does not write it into
// the node's own output: it records the failure with NodeView.SetFailed and
// leaves the previous output in place.
func Fail(msg string) NodeOutput {
	return NodeOutput{
		Value:    map[string]any{},
		Metadata: map[string]any{"status": StatusFailed, "error": msg},
	}
}
