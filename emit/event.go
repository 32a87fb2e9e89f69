// Package emit implements the Event Bus / Observers (C7): the lifecycle
// event stream the scheduler produces and the pluggable sinks (log, buffered
// streaming, state persistence, Prometheus) that consume it.
package emit

import (
	"time"

	"github.com/sorryhyun/dipeo-engine/diagram"
)

// Type tags the kind of lifecycle event, matching the §6.1 table.
type Type string

const (
	ExecutionStart    Type = "execution_start"
	NodeStart         Type = "node_start"
	NodeComplete      Type = "node_complete"
	NodeError         Type = "node_error"
	IterationTick     Type = "iteration_tick"
	ExecutionComplete Type = "execution_complete"
	ExecutionError    Type = "execution_error"
)

// Event is one entry in the lifecycle stream §6.1 describes. Not every
// field is populated for every Type; see the table in spec §6.1.
type Event struct {
	Type        Type
	ExecutionID diagram.ExecutionID
	NodeID      diagram.NodeID
	NodeType    string
	State       string // "COMPLETED" | "FAILED", for node events
	Status      string // "completed" | "failed", for execution-terminal events
	Output      map[string]any
	Metadata    map[string]any
	Error       string
	Kind        string // error kind: validation, missing_service, handler_failure, timeout, cancelled, deadlock, iteration_limit, internal
	Iteration   int
	Executed    int
	EndpointHit bool
	Timestamp   time.Time
}
