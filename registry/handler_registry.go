// Package registry implements the Handler Registry (C1) and Service
// Registry (C2): process-wide, name-keyed lookups the scheduler consults to
// bind a node to its handler and to resolve the capabilities that handler
// declared it needs.
package registry

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sorryhyun/dipeo-engine/handler"
)

// HandlerRecord audits a single Register call, mirroring the caller_info
// tracked by the original EnhancedServiceRegistry registration records.
type HandlerRecord struct {
	NodeType  string
	Replaced  bool
	Caller    string
	Timestamp time.Time
}

// HandlerRegistry maps a node type name to its Handler. Registration is
// idempotent per node type; a second registration for the same type
// replaces the prior one only outside production (§4.1).
type HandlerRegistry struct {
	mu          sync.RWMutex
	handlers    map[string]handler.Handler
	environment string
	records     []HandlerRecord
}

// NewHandlerRegistry constructs a registry for the given deployment
// environment ("production" gates handler replacement).
func NewHandlerRegistry(environment string) *HandlerRegistry {
	return &HandlerRegistry{
		handlers:    make(map[string]handler.Handler),
		environment: environment,
	}
}

// Register binds h under its NodeType(). In production, registering a
// second handler for an already-bound type is rejected.
func (r *HandlerRegistry) Register(h handler.Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	nodeType := h.NodeType()
	_, exists := r.handlers[nodeType]
	if exists && r.environment == "production" {
		return fmt.Errorf("registry: handler for node type %q already registered in production", nodeType)
	}

	r.handlers[nodeType] = h

	_, file, line, _ := runtime.Caller(1)
	r.records = append(r.records, HandlerRecord{
		NodeType:  nodeType,
		Replaced:  exists,
		Caller:    fmt.Sprintf("%s:%d", file, line),
		Timestamp: time.Now(),
	})
	return nil
}

// Resolve looks up the handler bound to nodeType.
func (r *HandlerRegistry) Resolve(nodeType string) (handler.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[nodeType]
	return h, ok
}

// Records returns the registration audit trail.
func (r *HandlerRegistry) Records() []HandlerRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]HandlerRecord, len(r.records))
	copy(out, r.records)
	return out
}
