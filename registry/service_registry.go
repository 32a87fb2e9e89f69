package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrKeyNotFound is wrapped with a suggestion list in Resolve's error.
type ErrKeyNotFound struct {
	Key         string
	Suggestions []string
}

func (e *ErrKeyNotFound) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("registry: key %q not found", e.Key)
	}
	return fmt.Sprintf("registry: key %q not found; did you mean one of: %s?", e.Key, strings.Join(e.Suggestions, ", "))
}

// AuditEntry records one registration, override, or failed resolve/register
// attempt against the Service Registry.
type AuditEntry struct {
	Timestamp   time.Time
	Key         string
	Action      string // "register" | "override" | "freeze" | "resolve_failed" | "register_failed"
	Caller      string
	Environment string
	Success     bool
	Reason      string
}

type binding struct {
	value     any
	factory   func() (any, error)
	resolved  bool
	final     bool
	immutable bool
}

const defaultMaxAudit = 2000

// ServiceRegistry is a name-keyed container of capabilities exposed to
// handlers (C2). Resolution is thread-safe; mutation takes an exclusive
// lock and appends to the bounded audit log.
type ServiceRegistry struct {
	mu          sync.RWMutex
	bindings    map[string]*binding
	frozen      bool
	frozenKeys  map[string]bool
	environment string
	audit       []AuditEntry
	maxAudit    int
}

// NewServiceRegistry constructs an empty registry for the given environment.
func NewServiceRegistry(environment string) *ServiceRegistry {
	return &ServiceRegistry{
		bindings:    make(map[string]*binding),
		frozenKeys:  make(map[string]bool),
		environment: environment,
		maxAudit:    defaultMaxAudit,
	}
}

// RegisterOptions configures a single Register/RegisterFactory call.
type RegisterOptions struct {
	Override  bool
	Reason    string
	Final     bool // once set, this key can never be overridden again
	Immutable bool // once bound, cannot be rebound even with Override
}

func (r *ServiceRegistry) recordAudit(key, action string, success bool, reason string) {
	r.audit = append(r.audit, AuditEntry{
		Timestamp:   time.Now(),
		Key:         key,
		Action:      action,
		Environment: r.environment,
		Success:     success,
		Reason:      reason,
	})
	if len(r.audit) > r.maxAudit {
		r.audit = r.audit[len(r.audit)-r.maxAudit:]
	}
}

// Register binds key to value.
func (r *ServiceRegistry) Register(key string, value any, opts RegisterOptions) error {
	return r.register(key, value, nil, opts)
}

// RegisterFactory binds key to a factory invoked lazily on first Resolve.
func (r *ServiceRegistry) RegisterFactory(key string, factory func() (any, error), opts RegisterOptions) error {
	return r.register(key, nil, factory, opts)
}

func (r *ServiceRegistry) register(key string, value any, factory func() (any, error), opts RegisterOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.bindings[key]

	if exists && existing.final {
		err := fmt.Errorf("registry: key %q is final and cannot be overridden", key)
		r.recordAudit(key, "register_failed", false, err.Error())
		return err
	}
	if exists && existing.immutable {
		err := fmt.Errorf("registry: key %q is immutable and already bound", key)
		r.recordAudit(key, "register_failed", false, err.Error())
		return err
	}
	frozenHere := r.frozen || r.frozenKeys[key]
	if frozenHere && !opts.Override {
		err := fmt.Errorf("registry: key %q is frozen", key)
		r.recordAudit(key, "register_failed", false, err.Error())
		return err
	}
	if opts.Override && r.environment == "production" && opts.Reason == "" {
		err := fmt.Errorf("registry: override of key %q in production requires a reason", key)
		r.recordAudit(key, "register_failed", false, err.Error())
		return err
	}

	r.bindings[key] = &binding{
		value:     value,
		factory:   factory,
		final:     opts.Final,
		immutable: opts.Immutable,
	}

	action := "register"
	if exists {
		action = "override"
	}
	r.recordAudit(key, action, true, opts.Reason)
	return nil
}

// Resolve returns the bound value, instantiating a factory lazily on first
// resolve. The error, when the key is unknown, suggests similarly named keys.
func (r *ServiceRegistry) Resolve(key string) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[key]
	if !ok {
		err := &ErrKeyNotFound{Key: key, Suggestions: r.suggestLocked(key)}
		r.recordAudit(key, "resolve_failed", false, err.Error())
		return nil, err
	}
	if b.factory != nil && !b.resolved {
		v, err := b.factory()
		if err != nil {
			r.recordAudit(key, "resolve_failed", false, err.Error())
			return nil, fmt.Errorf("registry: factory for key %q failed: %w", key, err)
		}
		b.value = v
		b.resolved = true
	} else {
		b.resolved = true
	}
	return b.value, nil
}

func (r *ServiceRegistry) suggestLocked(key string) []string {
	var names []string
	for k := range r.bindings {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		return levenshtein(key, names[i]) < levenshtein(key, names[j])
	})
	if len(names) > 3 {
		names = names[:3]
	}
	return names
}

// Freeze freezes the whole registry (no keys given) or just the listed
// keys: further Register calls on a frozen key require Override.
func (r *ServiceRegistry) Freeze(keys ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(keys) == 0 {
		r.frozen = true
		r.recordAudit("*", "freeze", true, "")
		return
	}
	for _, k := range keys {
		r.frozenKeys[k] = true
		r.recordAudit(k, "freeze", true, "")
	}
}

// TemporaryOverride replaces the named bindings and returns a restore
// function that puts the prior bindings back. Not allowed in production.
func (r *ServiceRegistry) TemporaryOverride(overrides map[string]any) (func(), error) {
	if r.environment == "production" {
		return nil, fmt.Errorf("registry: temporary_override is not allowed in production")
	}

	r.mu.Lock()
	prior := make(map[string]*binding, len(overrides))
	for key, value := range overrides {
		prior[key] = r.bindings[key] // nil if it didn't exist
		r.bindings[key] = &binding{value: value, resolved: true}
		r.recordAudit(key, "override", true, "temporary_override")
	}
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for key, b := range prior {
			if b == nil {
				delete(r.bindings, key)
			} else {
				r.bindings[key] = b
			}
		}
	}, nil
}

// Audit returns the immutable (copied) registration/override/failure log.
func (r *ServiceRegistry) Audit() []AuditEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AuditEntry, len(r.audit))
	copy(out, r.audit)
	return out
}

func levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		cur[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			min := cur[j-1] + 1
			if prev[j]+1 < min {
				min = prev[j] + 1
			}
			if prev[j-1]+cost < min {
				min = prev[j-1] + cost
			}
			cur[j] = min
		}
		prev, cur = cur, prev
	}
	return prev[lb]
}
