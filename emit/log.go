package emit

import (
	"fmt"
	"io"
	"os"
)

// LogEmitter writes a one-line human-readable record of every event to an
// io.Writer, defaulting to stdout.
type LogEmitter struct {
	w io.Writer
}

// NewLogEmitter builds a LogEmitter writing to w, or os.Stdout if w is nil.
func NewLogEmitter(w io.Writer) *LogEmitter {
	if w == nil {
		w = os.Stdout
	}
	return &LogEmitter{w: w}
}

func (l *LogEmitter) Emit(e Event) {
	switch e.Type {
	case NodeStart:
		fmt.Fprintf(l.w, "[%s] node_start %s (%s)\n", e.ExecutionID, e.NodeID, e.NodeType)
	case NodeComplete:
		fmt.Fprintf(l.w, "[%s] node_complete %s (%s)\n", e.ExecutionID, e.NodeID, e.NodeType)
	case NodeError:
		fmt.Fprintf(l.w, "[%s] node_error %s (%s): %s [%s]\n", e.ExecutionID, e.NodeID, e.NodeType, e.Error, e.Kind)
	case IterationTick:
		fmt.Fprintf(l.w, "[%s] iteration %d: %d executed, endpoint_reached=%v\n", e.ExecutionID, e.Iteration, e.Executed, e.EndpointHit)
	case ExecutionStart:
		fmt.Fprintf(l.w, "[%s] execution_start\n", e.ExecutionID)
	case ExecutionComplete:
		fmt.Fprintf(l.w, "[%s] execution_complete: %s\n", e.ExecutionID, e.Status)
	case ExecutionError:
		fmt.Fprintf(l.w, "[%s] execution_error: %s [%s]\n", e.ExecutionID, e.Error, e.Kind)
	}
}
