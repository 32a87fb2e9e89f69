package refhandler

import (
	"context"
	"testing"

	"github.com/sorryhyun/dipeo-engine/handler"
	"github.com/sorryhyun/dipeo-engine/registry"
)

type fakeNotionService struct {
	lastOperation  string
	lastResourceID string
	lastConfig     map[string]any
	result         map[string]any
	err            error
}

func (f *fakeNotionService) Execute(_ context.Context, operation, resourceID string, config map[string]any) (map[string]any, error) {
	f.lastOperation = operation
	f.lastResourceID = resourceID
	f.lastConfig = config
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func TestNotionRequiresOperation(t *testing.T) {
	h := NewNotion()
	if _, err := h.ParseProperties(map[string]any{}); err == nil {
		t.Fatal("expected a validation error when operation is missing")
	}
}

func TestNotionDefaultsProviderToNotion(t *testing.T) {
	h := NewNotion()
	props, err := h.ParseProperties(map[string]any{"operation": "read_page"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if props.(handler.IntegratedAPIProps).Provider != "notion" {
		t.Errorf("got provider %q, want notion", props.(handler.IntegratedAPIProps).Provider)
	}
}

func TestNotionMergesResultUnderFallbackDefaultKey(t *testing.T) {
	h := NewNotion()
	props, err := h.ParseProperties(map[string]any{"operation": "read_page", "resource_id": "page-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc := &fakeNotionService{result: map[string]any{"title": "hello"}}
	services := handler.Services{registry.NotionKey.Name: svc}

	out, err := h.Run(context.Background(), props, handler.ContextSnapshot{}, nil, services)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.lastOperation != "read_page" || svc.lastResourceID != "page-1" {
		t.Errorf("got operation=%q resourceID=%q", svc.lastOperation, svc.lastResourceID)
	}
	if out.Value["title"] != "hello" {
		t.Errorf("expected result fields merged into output, got %v", out.Value)
	}
	if _, ok := out.Value["default"]; !ok {
		t.Error("expected a default key falling back to the whole result map")
	}
}

func TestNotionPreservesExplicitDefaultKeyFromResult(t *testing.T) {
	h := NewNotion()
	props, _ := h.ParseProperties(map[string]any{"operation": "read_page"})
	svc := &fakeNotionService{result: map[string]any{"default": "explicit"}}
	services := handler.Services{registry.NotionKey.Name: svc}

	out, err := h.Run(context.Background(), props, handler.ContextSnapshot{}, nil, services)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Value["default"] != "explicit" {
		t.Errorf("got %v, want the result's own default key preserved", out.Value["default"])
	}
}
