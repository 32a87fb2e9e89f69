// Package engine implements the Scheduler (C5) and Input Collector (C6): the
// ready-set batch loop that drives an Execution View to completion and the
// per-node input-assembly algorithm it calls on each step.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sorryhyun/dipeo-engine/diagram"
	"github.com/sorryhyun/dipeo-engine/emit"
	"github.com/sorryhyun/dipeo-engine/handler"
	"github.com/sorryhyun/dipeo-engine/registry"
	"github.com/sorryhyun/dipeo-engine/view"
)

// Scheduler drives one diagram execution to completion. Concurrency within a
// batch is a counting semaphore via errgroup.SetLimit, grounded on the
// teacher's Frontier semaphore pattern (graph/scheduler.go, graph/engine.go
// runConcurrent) but simplified: the ready set is recomputed once between
// batches rather than drained from the teacher's OrderKey priority heap,
// since correctness here rests on the ready-set predicate rather than
// deterministic cross-node interleaving (see DESIGN.md).
type Scheduler struct {
	View     *view.ExecutionView
	Context  *ExecutionContext
	Services *registry.ServiceRegistry
	Bus      *emit.Bus
	Tokens   *TokenAccumulator
	Options  Options
}

// NewScheduler constructs a Scheduler with defaulted Options.
func NewScheduler(ev *view.ExecutionView, ec *ExecutionContext, services *registry.ServiceRegistry, bus *emit.Bus, opts Options) *Scheduler {
	return &Scheduler{
		View:     ev,
		Context:  ec,
		Services: services,
		Bus:      bus,
		Tokens:   &TokenAccumulator{},
		Options:  opts.WithDefaults(),
	}
}

// Run executes the ready-set loop until quiescence, the global iteration
// cap, an endpoint node, or cancellation, then returns the final status
// ("completed" | "failed"). A non-nil error means the run ended on
// deadlock, cancellation, or an internal fault (§7: these "terminate
// immediately" via execution_error rather than a per-node node_error).
func (s *Scheduler) Run(ctx context.Context) (string, *Error) {
	runCtx := ctx
	if s.Options.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.Options.Timeout)
		defer cancel()
	}

	completed := make(map[diagram.NodeID]bool)
	endpointReached := false
	iter := 0

	for {
		if endpointReached {
			break
		}
		if iter >= s.Options.MaxGlobalIterations {
			break
		}
		if err := runCtx.Err(); err != nil {
			return s.finishCancelled(err)
		}

		ready := s.readySet()
		if len(ready) == 0 {
			if len(completed) == 0 {
				return "failed", newError(KindDeadlock, "no ready nodes and none completed")
			}
			break
		}

		if err := s.runBatch(runCtx, ready, completed, &endpointReached); err != nil {
			return s.finishCancelled(err)
		}
		s.rearmConditions()

		iter++
		s.Bus.Emit(emit.Event{
			Type:        emit.IterationTick,
			ExecutionID: s.Context.ExecutionID,
			Iteration:   iter,
			Executed:    len(completed),
			EndpointHit: endpointReached,
			Timestamp:   time.Now(),
		})
	}

	return s.finalStatus(), nil
}

func (s *Scheduler) finishCancelled(err error) (string, *Error) {
	kind := classifyCtxErr(err)
	return "failed", newError(kind, "run cancelled: %v", err)
}

// finalStatus implements §7's rule: failed if any node's metadata recorded
// status:"failed", else completed.
func (s *Scheduler) finalStatus() string {
	for _, id := range s.View.Order {
		if failed, _ := s.View.Nodes[id].Failed(); failed {
			return "failed"
		}
	}
	return "completed"
}

// readySet evaluates the §4.5 ready-set predicate over every node, in
// diagram declaration order for deterministic batch composition.
func (s *Scheduler) readySet() []*view.NodeView {
	var ready []*view.NodeView
	for _, id := range s.View.Order {
		nv := s.View.Nodes[id]
		if s.isReady(nv) {
			ready = append(ready, nv)
		}
	}
	return ready
}

func (s *Scheduler) isReady(nv *view.NodeView) bool {
	if nv.Completed() {
		return false
	}
	if nv.ExecCount() >= nv.MaxIterations {
		return false
	}
	if nv.Node.Type == "start" {
		return true
	}

	firstEdges, defaultEdges := splitIncoming(nv)
	if nv.Node.Type == "person_job" && nv.ExecCount() == 0 && len(firstEdges) > 0 {
		for _, e := range firstEdges {
			if e.HasNewOutput() {
				return true
			}
		}
		return false
	}

	deps := defaultEdges
	if nv.Node.Type != "person_job" {
		deps = append(append([]*view.EdgeView{}, defaultEdges...), firstEdges...)
	}
	if len(deps) == 0 {
		return true
	}
	for _, e := range deps {
		if !e.HasNewOutput() {
			return false
		}
	}
	return true
}

// runBatch runs every ready node concurrently, bounded by MaxParallel,
// collecting completion/endpoint state under mu rather than the teacher's
// per-WorkItem channel plumbing — there is no cross-node ordering to
// preserve within a batch.
func (s *Scheduler) runBatch(ctx context.Context, ready []*view.NodeView, completed map[diagram.NodeID]bool, endpointReached *bool) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Options.MaxParallel)

	var mu sync.Mutex
	for _, nv := range ready {
		nv := nv
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			succeeded := s.runNode(gctx, nv)

			mu.Lock()
			if nv.Completed() {
				completed[nv.Node.ID] = true
			}
			if succeeded && nv.Node.Type == "endpoint" {
				*endpointReached = true
			}
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// runNode executes the per-node step (§4.5): validate properties, resolve
// services, collect inputs, invoke the handler under its timeout, and record
// the outcome. It reports whether the node completed successfully.
func (s *Scheduler) runNode(ctx context.Context, nv *view.NodeView) bool {
	execID := s.Context.ExecutionID
	nodeID := nv.Node.ID
	nodeType := nv.Node.Type

	s.Bus.Emit(emit.Event{Type: emit.NodeStart, ExecutionID: execID, NodeID: nodeID, NodeType: nodeType, Timestamp: time.Now()})

	props, err := nv.Handler.ParseProperties(nv.Node.Properties)
	if err != nil {
		s.failNode(nv, KindValidation, err.Error())
		return false
	}

	services, err := s.resolveServices(nv.Handler.RequiresServices())
	if err != nil {
		s.failNode(nv, KindMissingService, err.Error())
		return false
	}

	inputs := CollectInputs(nv)
	snapshot := s.Context.Snapshot(nodeID)

	nodeCtx := ctx
	if timeout := nodeTimeout(nv.Node, s.Options.DefaultNodeTimeout); timeout > 0 {
		var cancel context.CancelFunc
		nodeCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out, runErr := nv.Handler.Run(nodeCtx, props, snapshot, inputs, services)
	if runErr != nil {
		if ctxErr := nodeCtx.Err(); ctxErr != nil {
			s.failNode(nv, classifyCtxErr(ctxErr), runErr.Error())
			return false
		}
		s.failNode(nv, KindHandlerFailure, runErr.Error())
		return false
	}

	if status, _ := out.Metadata["status"].(string); status == handler.StatusFailed {
		msg, _ := out.Metadata["error"].(string)
		s.failNode(nv, KindHandlerFailure, msg)
		return false
	}

	nv.SetOutput(out)
	s.Context.recordOutput(nodeID, out)
	if tokens, ok := out.Metadata["tokenUsage"].(*handler.TokenUsage); ok {
		s.Tokens.Add(tokens)
	}

	s.Bus.Emit(emit.Event{
		Type: emit.NodeComplete, ExecutionID: execID, NodeID: nodeID, NodeType: nodeType,
		State: "COMPLETED", Output: out.Value, Metadata: out.Metadata, Timestamp: time.Now(),
	})
	return true
}

func (s *Scheduler) failNode(nv *view.NodeView, kind Kind, msg string) {
	nv.SetFailed(msg)
	s.Context.recordFailure(nv.Node.ID)
	s.Bus.Emit(emit.Event{
		Type: emit.NodeError, ExecutionID: s.Context.ExecutionID, NodeID: nv.Node.ID, NodeType: nv.Node.Type,
		State: "FAILED", Error: msg, Kind: string(kind), Timestamp: time.Now(),
	})
}

func (s *Scheduler) resolveServices(names []string) (handler.Services, error) {
	services := make(handler.Services, len(names))
	for _, name := range names {
		v, err := s.Services.Resolve(name)
		if err != nil {
			return nil, err
		}
		services[name] = v
	}
	return services, nil
}

// rearmConditions implements the condition re-arming mutation (§4.5, §9):
// a condition node that is a successor of a producer with remaining
// iterations has its output cleared so it can re-fire next run. The
// generation-counter readiness predicate (view.EdgeView.HasNewOutput) does
// not depend on this for correctness in any diagram shape we've traced
// (self-loops, direct two-node cycles); it is applied for literal fidelity
// to the documented behavior and so a condition node's stale
// condition_result is never visible after its producer has moved on.
func (s *Scheduler) rearmConditions() {
	for _, id := range s.View.Order {
		nv := s.View.Nodes[id]
		if nv.Node.Type != "condition" || nv.Output() == nil {
			continue
		}
		for _, e := range nv.Incoming {
			src := e.Source
			if src.ExecCount() < src.MaxIterations && !src.Completed() {
				nv.ClearOutput()
				break
			}
		}
	}
}

func nodeTimeout(n diagram.Node, defaultTimeout time.Duration) time.Duration {
	if raw, ok := n.Properties["timeout"]; ok {
		switch v := raw.(type) {
		case int:
			return time.Duration(v) * time.Second
		case float64:
			return time.Duration(v) * time.Second
		}
	}
	return defaultTimeout
}

func classifyCtxErr(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindCancelled
}
