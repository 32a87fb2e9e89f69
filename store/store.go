// Package store implements the persistence interface consumed from the
// state-persistence observer (C6.4): create an execution record, record
// per-node status transitions, record the final run status, and read it
// back. Grounded on graph/store/store.go's Store[S] shape, narrowed to the
// four operations §6.4 names.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sorryhyun/dipeo-engine/diagram"
	"github.com/sorryhyun/dipeo-engine/handler"
)

// ErrNotFound is returned when a requested execution id does not exist.
var ErrNotFound = errors.New("store: execution not found")

// NodeStatus is a single node's latest recorded state within an execution.
type NodeStatus struct {
	NodeID    diagram.NodeID
	Status    string // "running" | "completed" | "failed" | "skipped"
	Output    *handler.NodeOutput
	UpdatedAt time.Time
}

// ExecutionState is the durable, queryable record of one run.
type ExecutionState struct {
	ExecutionID diagram.ExecutionID
	DiagramID   string
	Variables   map[string]any
	Status      string // "running" | "completed" | "failed"
	Error       string
	Nodes       map[diagram.NodeID]NodeStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store is the persistence interface (C6.4) the state-persistence observer
// writes through. Implementations may back it with memory, a file, or a
// database.
type Store interface {
	CreateExecution(ctx context.Context, executionID diagram.ExecutionID, diagramID string, variables map[string]any) error
	UpdateNodeStatus(ctx context.Context, executionID diagram.ExecutionID, nodeID diagram.NodeID, status string, output *handler.NodeOutput) error
	UpdateStatus(ctx context.Context, executionID diagram.ExecutionID, status string, err error) error
	GetState(ctx context.Context, executionID diagram.ExecutionID) (ExecutionState, error)
}

// MemoryStore is the default in-process Store implementation.
type MemoryStore struct {
	mu    sync.RWMutex
	execs map[diagram.ExecutionID]*ExecutionState
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{execs: make(map[diagram.ExecutionID]*ExecutionState)}
}

func (s *MemoryStore) CreateExecution(_ context.Context, executionID diagram.ExecutionID, diagramID string, variables map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.execs[executionID] = &ExecutionState{
		ExecutionID: executionID,
		DiagramID:   diagramID,
		Variables:   variables,
		Status:      "running",
		Nodes:       make(map[diagram.NodeID]NodeStatus),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return nil
}

func (s *MemoryStore) UpdateNodeStatus(_ context.Context, executionID diagram.ExecutionID, nodeID diagram.NodeID, status string, output *handler.NodeOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.execs[executionID]
	if !ok {
		return ErrNotFound
	}
	exec.Nodes[nodeID] = NodeStatus{NodeID: nodeID, Status: status, Output: output, UpdatedAt: time.Now()}
	exec.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, executionID diagram.ExecutionID, status string, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.execs[executionID]
	if !ok {
		return ErrNotFound
	}
	exec.Status = status
	if err != nil {
		exec.Error = err.Error()
	}
	exec.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) GetState(_ context.Context, executionID diagram.ExecutionID) (ExecutionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.execs[executionID]
	if !ok {
		return ExecutionState{}, ErrNotFound
	}
	nodes := make(map[diagram.NodeID]NodeStatus, len(exec.Nodes))
	for k, v := range exec.Nodes {
		nodes[k] = v
	}
	cp := *exec
	cp.Nodes = nodes
	return cp, nil
}
