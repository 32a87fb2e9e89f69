package engine

import (
	"sync"

	"github.com/sorryhyun/dipeo-engine/diagram"
	"github.com/sorryhyun/dipeo-engine/handler"
)

// ExecutionContext is the scheduler's mutable run state: variables and
// resolved api keys supplied by the caller, plus the node_outputs/exec_counts
// every handler invocation can read a point-in-time copy of. Per §5 "Shared
// resources", node_outputs is written only by the scheduler's per-node
// post-step, so a single mutex protecting the read side is sufficient.
type ExecutionContext struct {
	ExecutionID diagram.ExecutionID
	DiagramID   string
	Variables   map[string]any
	APIKeys     map[string]string
	Persons     map[diagram.PersonID]diagram.Person

	mu          sync.RWMutex
	nodeOutputs map[diagram.NodeID]handler.NodeOutput
	execCounts  map[diagram.NodeID]int
}

// NewExecutionContext builds an ExecutionContext seeded from d's persons.
func NewExecutionContext(executionID diagram.ExecutionID, diagramID string, variables map[string]any, apiKeys map[string]string, d diagram.Diagram) *ExecutionContext {
	persons := make(map[diagram.PersonID]diagram.Person, len(d.Persons))
	for _, p := range d.Persons {
		persons[p.ID] = p
	}
	if variables == nil {
		variables = map[string]any{}
	}
	if apiKeys == nil {
		apiKeys = map[string]string{}
	}
	return &ExecutionContext{
		ExecutionID: executionID,
		DiagramID:   diagramID,
		Variables:   variables,
		APIKeys:     apiKeys,
		Persons:     persons,
		nodeOutputs: make(map[diagram.NodeID]handler.NodeOutput),
		execCounts:  make(map[diagram.NodeID]int),
	}
}

// recordOutput stores n's latest output and bumps its exec count, called once
// by the scheduler's per-node post-step (step 6 of §4.5).
func (c *ExecutionContext) recordOutput(n diagram.NodeID, out handler.NodeOutput) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodeOutputs[n] = out
	c.execCounts[n]++
}

// recordFailure bumps n's exec count on a failed attempt without recording
// an output, mirroring NodeView.SetFailed's own exec_count advance (§4.5
// step 6 treats exec_count as one counter incremented on every attempt,
// success or failure — view.NodeView.ExecCount is authoritative; this map is
// the copy handlers see via ContextSnapshot.ExecCounts).
func (c *ExecutionContext) recordFailure(n diagram.NodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execCounts[n]++
}

// Snapshot returns a read-only copy of the context for a handler invocation
// on currentNodeID, per the handler.ContextSnapshot contract in §6.2.
func (c *ExecutionContext) Snapshot(currentNodeID diagram.NodeID) handler.ContextSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	outputs := make(map[diagram.NodeID]handler.NodeOutput, len(c.nodeOutputs))
	for k, v := range c.nodeOutputs {
		outputs[k] = v
	}
	counts := make(map[diagram.NodeID]int, len(c.execCounts))
	for k, v := range c.execCounts {
		counts[k] = v
	}
	return handler.ContextSnapshot{
		ExecutionID:   c.ExecutionID,
		DiagramID:     c.DiagramID,
		CurrentNodeID: currentNodeID,
		Variables:     c.Variables,
		APIKeys:       c.APIKeys,
		Persons:       c.Persons,
		NodeOutputs:   outputs,
		ExecCounts:    counts,
	}
}

// TokenAccumulator sums handler.TokenUsage across a run, read by the
// Coordinator at termination (§3 "Token accumulator").
type TokenAccumulator struct {
	mu                          sync.Mutex
	Input, Output, Total, Cached int
}

// Add folds u into the running totals. u may be nil (no-op).
func (t *TokenAccumulator) Add(u *handler.TokenUsage) {
	if u == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Input += u.Input
	t.Output += u.Output
	t.Total += u.Total
	t.Cached += u.Cached
}

// Snapshot returns the current totals.
func (t *TokenAccumulator) Snapshot() handler.TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return handler.TokenUsage{Input: t.Input, Output: t.Output, Total: t.Total, Cached: t.Cached}
}
