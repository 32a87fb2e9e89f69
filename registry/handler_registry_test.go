package registry

import (
	"context"
	"testing"

	"github.com/sorryhyun/dipeo-engine/handler"
)

type fakeHandler struct{ typ string }

func (f fakeHandler) NodeType() string           { return f.typ }
func (f fakeHandler) RequiresServices() []string { return nil }
func (f fakeHandler) ParseProperties(raw map[string]any) (any, error) { return raw, nil }
func (f fakeHandler) Run(context.Context, any, handler.ContextSnapshot, map[string]any, handler.Services) (handler.NodeOutput, error) {
	return handler.NodeOutput{}, nil
}

func TestRegisterAndResolve(t *testing.T) {
	reg := NewHandlerRegistry("development")
	if err := reg.Register(fakeHandler{typ: "start"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h, ok := reg.Resolve("start")
	if !ok {
		t.Fatal("expected start to resolve")
	}
	if h.NodeType() != "start" {
		t.Errorf("got %q, want start", h.NodeType())
	}
	if _, ok := reg.Resolve("missing"); ok {
		t.Error("expected missing to not resolve")
	}
}

func TestRegisterReplacementOutsideProduction(t *testing.T) {
	reg := NewHandlerRegistry("development")
	_ = reg.Register(fakeHandler{typ: "start"})
	if err := reg.Register(fakeHandler{typ: "start"}); err != nil {
		t.Fatalf("expected replacement to be allowed outside production: %v", err)
	}
	records := reg.Records()
	if len(records) != 2 || !records[1].Replaced {
		t.Errorf("expected second record to be marked Replaced, got %+v", records)
	}
}

func TestRegisterReplacementRejectedInProduction(t *testing.T) {
	reg := NewHandlerRegistry("production")
	_ = reg.Register(fakeHandler{typ: "start"})
	if err := reg.Register(fakeHandler{typ: "start"}); err == nil {
		t.Fatal("expected replacement to be rejected in production")
	}
}
