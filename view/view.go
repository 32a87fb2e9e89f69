// Package view implements the Execution View (C4): the immutable structural
// projection of a Diagram the scheduler operates on — indexed nodes, edges
// with resolved endpoints, per-node incoming/outgoing edge lists, and an
// initial topological level assignment. Grounded on execution_view.py's
// NodeView/EdgeView/_compute_execution_order.
package view

import (
	"fmt"
	"sync"

	"github.com/sorryhyun/dipeo-engine/diagram"
	"github.com/sorryhyun/dipeo-engine/handler"
	"github.com/sorryhyun/dipeo-engine/registry"
)

// EdgeView is a resolved arrow: both endpoints bound to their NodeView, with
// handle, label, branch, and content-type carried over from the diagram.
type EdgeView struct {
	Source       *NodeView
	Target       *NodeView
	SourceHandle string
	TargetHandle string
	Label        string
	Branch       *bool
	ContentType  string

	// lastConsumedExecCount is the Source's ExecCount at the moment Target
	// last consumed this edge's output. It is the per-edge firing-generation
	// counter that gates re-use of stale data in cyclic diagrams; see
	// DESIGN.md for why this, rather than the condition-output-nil mutation
	// alone, is what makes loop readiness correct in general.
	mu                     sync.Mutex
	lastConsumedExecCount int
}

// HasNewOutput reports whether Source has produced output this Target has
// not yet consumed on this edge. A Source whose most recent attempt failed
// reports no new output.
func (e *EdgeView) HasNewOutput() bool {
	if e.Source.Output() == nil {
		return false
	}
	if failed, _ := e.Source.Failed(); failed {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Source.ExecCount() > e.lastConsumedExecCount
}

// MarkConsumed advances this edge's generation counter to Source's current
// ExecCount, acknowledging Target has read its current output.
func (e *EdgeView) MarkConsumed() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastConsumedExecCount = e.Source.ExecCount()
}

// NodeView is a node plus its bound handler and runtime execution state.
// The structural fields (Node, Handler, Person, Incoming, Outgoing,
// MaxIterations) are immutable after Build; ExecCount, Output, Completed and
// the failure state reported by Failed are the only fields the scheduler
// mutates during a run.
type NodeView struct {
	Node          diagram.Node
	Handler       handler.Handler
	Person        *diagram.Person
	Incoming      []*EdgeView
	Outgoing      []*EdgeView
	MaxIterations int

	mu         sync.RWMutex
	execCount  int
	output     *handler.NodeOutput
	completed  bool
	failed     bool
	failureMsg string
}

func (n *NodeView) ExecCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.execCount
}

func (n *NodeView) Output() *handler.NodeOutput {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.output
}

func (n *NodeView) Completed() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.completed
}

// SetOutput records out as the node's latest output and, if exec_count has
// now reached MaxIterations, marks the node completed. This is the scheduler's
// single per-step write (§3 Lifecycles: "set exactly once per iteration").
func (n *NodeView) SetOutput(out handler.NodeOutput) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.output = &out
	n.failed = false
	n.failureMsg = ""
	n.execCount++
	if n.execCount >= n.MaxIterations {
		n.completed = true
	}
}

// Failed reports whether n's most recent attempt ended in failure, and the
// message recorded for it. A failed attempt never calls SetOutput, and
// EdgeView.HasNewOutput checks Failed, so a failed node's edges never report
// new output (§7 propagation: "downstream consumers... remain unready").
func (n *NodeView) Failed() (bool, string) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.failed, n.failureMsg
}

// SetFailed records a failed attempt: exec_count advances (so a node that
// keeps failing does not stay ready forever) and the node is marked
// completed once it has exhausted max_iterations, but Output is left
// untouched so dependents never observe new output from this attempt.
func (n *NodeView) SetFailed(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = true
	n.failureMsg = msg
	n.execCount++
	if n.execCount >= n.MaxIterations {
		n.completed = true
	}
}

// ClearOutput resets Output to nil without touching ExecCount or Completed.
// It is the scheduler's one documented exception to "output written once per
// step" (§4.5), applied only to condition nodes during re-arming.
func (n *NodeView) ClearOutput() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.output = nil
}

// ExecutionView is the immutable (structurally) projection the scheduler
// drives. Duplicate incoming-label warnings and Kahn orphan diagnostics are
// collected in Warnings rather than discarded, per SPEC_FULL §4.4.
type ExecutionView struct {
	Nodes    map[diagram.NodeID]*NodeView
	Order    []diagram.NodeID // nodes in diagram declaration order, for deterministic iteration
	Levels   [][]diagram.NodeID
	Warnings []string
}

// Build constructs an ExecutionView from a validated diagram, binding each
// node's handler via hreg.
func Build(d diagram.Diagram, hreg *registry.HandlerRegistry) (*ExecutionView, error) {
	personByID := make(map[diagram.PersonID]diagram.Person, len(d.Persons))
	for _, p := range d.Persons {
		personByID[p.ID] = p
	}

	ev := &ExecutionView{Nodes: make(map[diagram.NodeID]*NodeView, len(d.Nodes))}
	for _, n := range d.Nodes {
		h, ok := hreg.Resolve(n.Type)
		if !ok {
			return nil, fmt.Errorf("view: no handler registered for node type %q (node %q)", n.Type, n.ID)
		}
		nv := &NodeView{
			Node:          n,
			Handler:       h,
			MaxIterations: n.EffectiveMaxIterations(),
		}
		if n.Type == "person_job" {
			if pid, ok := n.Properties["person_id"].(string); ok && pid != "" {
				if p, ok := personByID[diagram.PersonID(pid)]; ok {
					nv.Person = &p
				}
			}
		}
		ev.Nodes[n.ID] = nv
		ev.Order = append(ev.Order, n.ID)
	}

	labelSeen := make(map[diagram.NodeID]map[string]bool)
	for _, a := range d.Arrows {
		srcID, srcHandle := diagram.ParseEndpoint(a.Source)
		tgtID, tgtHandle := diagram.ParseEndpoint(a.Target)
		src, ok := ev.Nodes[srcID]
		if !ok {
			return nil, fmt.Errorf("view: arrow source %q references unknown node", a.Source)
		}
		tgt, ok := ev.Nodes[tgtID]
		if !ok {
			return nil, fmt.Errorf("view: arrow target %q references unknown node", a.Target)
		}

		label := a.EffectiveLabel()
		if labelSeen[tgtID] == nil {
			labelSeen[tgtID] = make(map[string]bool)
		}
		if tgtHandle != "first" && labelSeen[tgtID][label] {
			ev.Warnings = append(ev.Warnings, fmt.Sprintf(
				"node %q has more than one incoming edge labeled %q; last writer wins at input-collection time", tgtID, label))
		}
		labelSeen[tgtID][label] = true

		edge := &EdgeView{
			Source:       src,
			Target:       tgt,
			SourceHandle: srcHandle,
			TargetHandle: tgtHandle,
			Label:        label,
			Branch:       a.Branch,
			ContentType:  a.ContentType,
		}
		src.Outgoing = append(src.Outgoing, edge)
		tgt.Incoming = append(tgt.Incoming, edge)
	}

	ev.Levels, ev.Warnings = computeLevels(ev, ev.Warnings)
	return ev, nil
}

// computeLevels runs Kahn's algorithm to produce a list-of-lists topological
// ordering, used for readability/diagnostics only — the scheduler's
// correctness rests on the ready-set predicate, not this ordering (§4.4
// step 4, §9 "two historically parallel scheduler implementations"). A
// person-job node's in-degree counts only its "first"-handle incoming edges
// when any exist, so loops can seed without waiting on their back-edge.
func computeLevels(ev *ExecutionView, warnings []string) ([][]diagram.NodeID, []string) {
	inDegree := make(map[diagram.NodeID]int, len(ev.Nodes))
	countedEdges := make(map[diagram.NodeID][]*EdgeView, len(ev.Nodes))

	for id, nv := range ev.Nodes {
		var firstEdges []*EdgeView
		for _, e := range nv.Incoming {
			if e.TargetHandle == "first" {
				firstEdges = append(firstEdges, e)
			}
		}
		edges := nv.Incoming
		if nv.Node.Type == "person_job" && len(firstEdges) > 0 {
			edges = firstEdges
		}
		countedEdges[id] = edges
		inDegree[id] = len(edges)
	}

	processed := make(map[diagram.NodeID]bool, len(ev.Nodes))
	var levels [][]diagram.NodeID
	remaining := len(ev.Nodes)

	for remaining > 0 {
		var level []diagram.NodeID
		for _, id := range ev.Order {
			if !processed[id] && inDegree[id] == 0 {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			break // cycle or orphan remainder; stop and report below
		}
		for _, id := range level {
			processed[id] = true
			remaining--
			for _, e := range ev.Nodes[id].Outgoing {
				if edges, ok := countedEdges[e.Target.Node.ID]; ok {
					for _, ce := range edges {
						if ce == e {
							inDegree[e.Target.Node.ID]--
						}
					}
				}
			}
		}
		levels = append(levels, level)
	}

	if remaining > 0 {
		var orphans []diagram.NodeID
		for _, id := range ev.Order {
			if !processed[id] {
				orphans = append(orphans, id)
			}
		}
		warnings = append(warnings, fmt.Sprintf(
			"%d node(s) not resolved by initial Kahn levelling (cyclic or orphaned): %v; still scheduled via the ready-set loop", len(orphans), orphans))
		levels = append(levels, orphans)
	}

	return levels, warnings
}
