// Package sqlite is a durable-within-a-process store.Store backed by
// modernc.org/sqlite (pure Go, no cgo — matching the teacher's own driver
// choice in graph/store/sqlite.go), which the state-persistence observer
// (emit.StateObserver) can wrap like any other store.Store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sorryhyun/dipeo-engine/diagram"
	"github.com/sorryhyun/dipeo-engine/handler"
	"github.com/sorryhyun/dipeo-engine/store"
)

// Store persists execution state to a single SQLite file (or ":memory:").
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path and migrates it.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS executions (
			execution_id TEXT PRIMARY KEY,
			diagram_id   TEXT NOT NULL,
			variables    TEXT NOT NULL,
			status       TEXT NOT NULL,
			error        TEXT NOT NULL DEFAULT '',
			created_at   TIMESTAMP NOT NULL,
			updated_at   TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS node_statuses (
			execution_id TEXT NOT NULL,
			node_id      TEXT NOT NULL,
			status       TEXT NOT NULL,
			output       TEXT,
			updated_at   TIMESTAMP NOT NULL,
			PRIMARY KEY (execution_id, node_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_node_statuses_exec ON node_statuses(execution_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) CreateExecution(ctx context.Context, executionID diagram.ExecutionID, diagramID string, variables map[string]any) error {
	vars, err := json.Marshal(variables)
	if err != nil {
		return fmt.Errorf("sqlite: marshal variables: %w", err)
	}
	now := time.Now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (execution_id, diagram_id, variables, status, created_at, updated_at)
		 VALUES (?, ?, ?, 'running', ?, ?)`,
		string(executionID), diagramID, string(vars), now, now)
	if err != nil {
		return fmt.Errorf("sqlite: create execution: %w", err)
	}
	return nil
}

func (s *Store) UpdateNodeStatus(ctx context.Context, executionID diagram.ExecutionID, nodeID diagram.NodeID, status string, output *handler.NodeOutput) error {
	var outJSON []byte
	if output != nil {
		var err error
		outJSON, err = json.Marshal(output)
		if err != nil {
			return fmt.Errorf("sqlite: marshal output: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO node_statuses (execution_id, node_id, status, output, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(execution_id, node_id) DO UPDATE SET status=excluded.status, output=excluded.output, updated_at=excluded.updated_at`,
		string(executionID), string(nodeID), status, string(outJSON), time.Now())
	if err != nil {
		return fmt.Errorf("sqlite: update node status: %w", err)
	}
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, executionID diagram.ExecutionID, status string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status=?, error=?, updated_at=? WHERE execution_id=?`,
		status, msg, time.Now(), string(executionID))
	if err != nil {
		return fmt.Errorf("sqlite: update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetState(ctx context.Context, executionID diagram.ExecutionID) (store.ExecutionState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT diagram_id, variables, status, error, created_at, updated_at FROM executions WHERE execution_id=?`,
		string(executionID))

	var (
		diagramID, varsJSON, status, errMsg string
		createdAt, updatedAt                time.Time
	)
	if err := row.Scan(&diagramID, &varsJSON, &status, &errMsg, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return store.ExecutionState{}, store.ErrNotFound
		}
		return store.ExecutionState{}, fmt.Errorf("sqlite: get state: %w", err)
	}

	var variables map[string]any
	if err := json.Unmarshal([]byte(varsJSON), &variables); err != nil {
		return store.ExecutionState{}, fmt.Errorf("sqlite: unmarshal variables: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id, status, output, updated_at FROM node_statuses WHERE execution_id=?`, string(executionID))
	if err != nil {
		return store.ExecutionState{}, fmt.Errorf("sqlite: list node statuses: %w", err)
	}
	defer rows.Close()

	nodes := make(map[diagram.NodeID]store.NodeStatus)
	for rows.Next() {
		var nodeID, nodeStatus string
		var outJSON sql.NullString
		var nodeUpdatedAt time.Time
		if err := rows.Scan(&nodeID, &nodeStatus, &outJSON, &nodeUpdatedAt); err != nil {
			return store.ExecutionState{}, fmt.Errorf("sqlite: scan node status: %w", err)
		}
		ns := store.NodeStatus{NodeID: diagram.NodeID(nodeID), Status: nodeStatus, UpdatedAt: nodeUpdatedAt}
		if outJSON.Valid && outJSON.String != "" {
			var out handler.NodeOutput
			if err := json.Unmarshal([]byte(outJSON.String), &out); err == nil {
				ns.Output = &out
			}
		}
		nodes[diagram.NodeID(nodeID)] = ns
	}

	return store.ExecutionState{
		ExecutionID: executionID,
		DiagramID:   diagramID,
		Variables:   variables,
		Status:      status,
		Error:       errMsg,
		Nodes:       nodes,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}
