package refhandler

import (
	"context"
	"testing"

	"github.com/sorryhyun/dipeo-engine/handler"
)

func TestStartSeedsCustomData(t *testing.T) {
	h := NewStart()
	props, err := h.ParseProperties(map[string]any{"custom_data": map[string]any{"x": 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := h.Run(context.Background(), props, handler.ContextSnapshot{}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, ok := out.Value["default"].(map[string]any)
	if !ok || data["x"] != 1 {
		t.Errorf("got %v, want default={x:1}", out.Value)
	}
}

func TestStartDefaultsToEmptyCustomData(t *testing.T) {
	h := NewStart()
	props, _ := h.ParseProperties(map[string]any{})
	out, err := h.Run(context.Background(), props, handler.ContextSnapshot{}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data, ok := out.Value["default"].(map[string]any); !ok || len(data) != 0 {
		t.Errorf("got %v, want an empty map", out.Value["default"])
	}
}
