package engine

import (
	"testing"

	"github.com/sorryhyun/dipeo-engine/diagram"
	"github.com/sorryhyun/dipeo-engine/handler"
)

func TestNewExecutionContextSeedsPersonsAndDefaults(t *testing.T) {
	d := diagram.Diagram{Persons: []diagram.Person{{ID: "alice", Service: "anthropic"}}}
	ec := NewExecutionContext("exec1", "d1", nil, nil, d)

	if ec.Variables == nil || ec.APIKeys == nil {
		t.Fatal("expected nil variables/apiKeys to default to empty maps")
	}
	if _, ok := ec.Persons["alice"]; !ok {
		t.Error("expected persons to be seeded from the diagram")
	}
}

func TestRecordOutputAdvancesExecCountAndSnapshot(t *testing.T) {
	ec := NewExecutionContext("exec1", "d1", nil, nil, diagram.Diagram{})
	ec.recordOutput("n1", handler.NodeOutput{Value: map[string]any{"default": 1}})
	ec.recordOutput("n1", handler.NodeOutput{Value: map[string]any{"default": 2}})

	snap := ec.Snapshot("n2")
	if snap.ExecCounts["n1"] != 2 {
		t.Errorf("got exec count %d, want 2", snap.ExecCounts["n1"])
	}
	if snap.NodeOutputs["n1"].Value["default"] != 2 {
		t.Errorf("expected latest output recorded, got %v", snap.NodeOutputs["n1"])
	}
	if snap.CurrentNodeID != "n2" {
		t.Errorf("got current node %q, want n2", snap.CurrentNodeID)
	}
}

func TestSnapshotReturnsIndependentCopy(t *testing.T) {
	ec := NewExecutionContext("exec1", "d1", nil, nil, diagram.Diagram{})
	ec.recordOutput("n1", handler.NodeOutput{Value: map[string]any{"default": 1}})

	snap := ec.Snapshot("n1")
	snap.NodeOutputs["n2"] = handler.NodeOutput{}
	snap.ExecCounts["n2"] = 99

	fresh := ec.Snapshot("n1")
	if _, ok := fresh.NodeOutputs["n2"]; ok {
		t.Error("expected Snapshot to return a defensive copy of node outputs")
	}
	if _, ok := fresh.ExecCounts["n2"]; ok {
		t.Error("expected Snapshot to return a defensive copy of exec counts")
	}
}

func TestTokenAccumulatorAddSumsAcrossCalls(t *testing.T) {
	acc := &TokenAccumulator{}
	acc.Add(&handler.TokenUsage{Input: 10, Output: 5, Total: 15, Cached: 2})
	acc.Add(&handler.TokenUsage{Input: 3, Output: 1, Total: 4})
	acc.Add(nil)

	got := acc.Snapshot()
	want := handler.TokenUsage{Input: 13, Output: 6, Total: 19, Cached: 2}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
