// Package coordinator implements the Execution Coordinator (C8): the public
// Execute entrypoint that wires a Diagram to its Execution View, runs the
// Scheduler, and streams lifecycle events back to the caller.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sorryhyun/dipeo-engine/diagram"
	"github.com/sorryhyun/dipeo-engine/emit"
	"github.com/sorryhyun/dipeo-engine/engine"
	"github.com/sorryhyun/dipeo-engine/registry"
	"github.com/sorryhyun/dipeo-engine/store"
	"github.com/sorryhyun/dipeo-engine/view"
)

// NewExecutionID generates a fresh v4 execution id for callers that don't
// track their own (§3's execution_id, otherwise the caller's to supply).
func NewExecutionID() diagram.ExecutionID {
	return diagram.ExecutionID(uuid.NewString())
}

// DiagramLoader resolves a diagram id to its Diagram; storage itself is out
// of scope (§1), so callers supply their own collaborator.
type DiagramLoader interface {
	Load(ctx context.Context, diagramID string) (diagram.Diagram, error)
}

// InteractiveHandler answers a user_response node's prompt.
type InteractiveHandler func(ctx context.Context, prompt string) (string, error)

// Options enumerates the execute() options from §4.8.
type Options struct {
	Variables        map[string]any
	MaxIterations    int
	MaxParallelNodes int
	TimeoutSeconds   int
	DebugMode        bool
}

func (o Options) toEngineOptions() engine.Options {
	return engine.Options{
		MaxGlobalIterations: o.MaxIterations,
		MaxParallel:         o.MaxParallelNodes,
		Timeout:             time.Duration(o.TimeoutSeconds) * time.Second,
	}
}

// Coordinator wires the Handler/Service registries, a diagram loader, and a
// set of event observers into repeated Execute calls.
type Coordinator struct {
	Handlers    *registry.HandlerRegistry
	Services    *registry.ServiceRegistry
	Loader      DiagramLoader
	Observers   []emit.Emitter
	Store       store.Store
	Environment string
}

// New constructs a Coordinator. observers are registered in the given order
// (§4.7: "sequentially in registration order"); if store is non-nil a
// emit.StateObserver wrapping it is appended automatically.
func New(handlers *registry.HandlerRegistry, services *registry.ServiceRegistry, loader DiagramLoader, st store.Store, observers ...emit.Emitter) *Coordinator {
	c := &Coordinator{Handlers: handlers, Services: services, Loader: loader, Store: st, Observers: observers}
	if st != nil {
		c.Observers = append(c.Observers, emit.NewStateObserver(st))
	}
	return c
}

// ExecuteByID loads diagramID via the Coordinator's Loader (§4.8 step 1) and
// runs it.
func (c *Coordinator) ExecuteByID(ctx context.Context, diagramID string, opts Options, executionID diagram.ExecutionID, interactive InteractiveHandler) (<-chan emit.Event, error) {
	d, err := c.Loader.Load(ctx, diagramID)
	if err != nil {
		return nil, fmt.Errorf("coordinator: load diagram %q: %w", diagramID, err)
	}
	return c.Execute(ctx, d, opts, executionID, interactive)
}

// Execute runs d to completion, returning a channel of lifecycle events. The
// channel is closed after the terminal event (execution_complete or
// execution_error) is sent.
func (c *Coordinator) Execute(ctx context.Context, d diagram.Diagram, opts Options, executionID diagram.ExecutionID, interactive InteractiveHandler) (<-chan emit.Event, error) {
	if verr := diagram.Validate(d); verr != nil {
		return nil, verr
	}

	ev, err := view.Build(d, c.Handlers)
	if err != nil {
		return nil, fmt.Errorf("coordinator: build execution view: %w", err)
	}

	if interactive != nil {
		regOpts := registry.RegisterOptions{Override: true, Reason: "per-execution interactive handler"}
		if err := c.Services.Register(registry.InteractiveKey.Name, interactiveAdapter{fn: interactive}, regOpts); err != nil {
			return nil, fmt.Errorf("coordinator: register interactive handler: %w", err)
		}
	}

	if c.Store != nil {
		if err := c.Store.CreateExecution(ctx, executionID, d.ID, opts.Variables); err != nil {
			return nil, fmt.Errorf("coordinator: create execution record: %w", err)
		}
	}

	events := make(chan emit.Event, 64)
	forwarder := &channelEmitter{ch: events}
	emitters := append([]emit.Emitter{forwarder}, c.Observers...)
	bus := emit.NewBus(emitters...)

	ec := engine.NewExecutionContext(executionID, d.ID, opts.Variables, nil, d)
	sched := engine.NewScheduler(ev, ec, c.Services, bus, opts.toEngineOptions())

	go c.run(ctx, sched, bus, events, executionID)
	return events, nil
}

func (c *Coordinator) run(ctx context.Context, sched *engine.Scheduler, bus *emit.Bus, events chan emit.Event, executionID diagram.ExecutionID) {
	defer close(events)

	bus.Emit(emit.Event{Type: emit.ExecutionStart, ExecutionID: executionID, Timestamp: time.Now()})

	status, runErr := sched.Run(ctx)
	if runErr != nil {
		bus.Emit(emit.Event{
			Type: emit.ExecutionError, ExecutionID: executionID, Status: "failed",
			Error: runErr.Message, Kind: string(runErr.Kind), Timestamp: time.Now(),
		})
		return
	}

	tokens := sched.Tokens.Snapshot()
	bus.Emit(emit.Event{
		Type: emit.ExecutionComplete, ExecutionID: executionID, Status: status,
		Metadata: map[string]any{"tokenUsage": tokens}, Timestamp: time.Now(),
	})
}

// channelEmitter forwards every event onto a bounded channel, the "public
// execute returns an iterator over that channel" strategy from §9. A full
// channel drops the event rather than blocking the scheduler, matching the
// streaming observer's own backpressure policy; per the Emitter contract's
// "dropped with error logging" option, a drop is logged rather than
// silently discarded, and counted so a caller can check Dropped().
type channelEmitter struct {
	ch      chan emit.Event
	dropped atomic.Int64
}

func (e *channelEmitter) Emit(event emit.Event) {
	select {
	case e.ch <- event:
	default:
		e.dropped.Add(1)
		log.Printf("coordinator: event channel full, dropping %s event for execution %s", event.Type, event.ExecutionID)
	}
}

// Dropped returns the number of events discarded so far because the
// channel returned by Execute was full.
func (e *channelEmitter) Dropped() int64 {
	return e.dropped.Load()
}

type interactiveAdapter struct {
	fn InteractiveHandler
}

func (a interactiveAdapter) Ask(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		return a.fn(ctx, prompt)
	}
	askCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return a.fn(askCtx, prompt)
}
