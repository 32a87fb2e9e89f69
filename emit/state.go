package emit

import (
	"context"
	"log"

	"github.com/sorryhyun/dipeo-engine/handler"
	"github.com/sorryhyun/dipeo-engine/store"
)

// StateObserver is the canonical state-persistence observer (§4.7): it
// mirrors the event stream into a store.Store document per execution and
// writes the final status on the terminal event. Per §5 "Backpressure", its
// writes are awaited synchronously in the per-node path rather than dropped.
// The execution's create_execution record is written by the Coordinator
// before the run starts (it alone knows diagram_id and variables); this
// observer only records the per-node and terminal transitions thereafter.
type StateObserver struct {
	store store.Store
}

// NewStateObserver wraps s as an Emitter.
func NewStateObserver(s store.Store) *StateObserver {
	return &StateObserver{store: s}
}

func (o *StateObserver) Emit(e Event) {
	ctx := context.Background()
	var err error
	switch e.Type {
	case NodeComplete:
		err = o.store.UpdateNodeStatus(ctx, e.ExecutionID, e.NodeID, handler.StatusCompleted, &handler.NodeOutput{Value: e.Output, Metadata: e.Metadata})
	case NodeError:
		out := handler.Fail(e.Error)
		err = o.store.UpdateNodeStatus(ctx, e.ExecutionID, e.NodeID, handler.StatusFailed, &out)
	case ExecutionComplete:
		err = o.store.UpdateStatus(ctx, e.ExecutionID, e.Status, nil)
	case ExecutionError:
		err = o.store.UpdateStatus(ctx, e.ExecutionID, "failed", errString(e.Error))
	}
	if err != nil {
		log.Printf("emit: state observer: %v", err)
	}
}

// errString turns a non-empty message into an error, matching the
// store.Store.UpdateStatus(..., err error) signature.
func errString(msg string) error {
	if msg == "" {
		return nil
	}
	return &stateError{msg}
}

type stateError struct{ msg string }

func (e *stateError) Error() string { return e.msg }
