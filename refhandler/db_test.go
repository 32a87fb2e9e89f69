package refhandler

import (
	"context"
	"testing"

	"github.com/sorryhyun/dipeo-engine/handler"
	"github.com/sorryhyun/dipeo-engine/registry"
)

func TestDBRejectsUnknownOperation(t *testing.T) {
	h := NewDB()
	if _, err := h.ParseProperties(map[string]any{"operation": "delete", "source_details": "x"}); err == nil {
		t.Fatal("expected a validation error for an unknown operation")
	}
}

func TestDBRequiresSourceDetails(t *testing.T) {
	h := NewDB()
	if _, err := h.ParseProperties(map[string]any{}); err == nil {
		t.Fatal("expected a validation error when source_details is missing")
	}
}

func TestDBReadWholeFileWithNoQuery(t *testing.T) {
	h := NewDB()
	fs := newFakeFileService()
	fs.files["data.json"] = []byte(`{"name":"ana"}`)
	services := handler.Services{registry.FileKey.Name: fs}

	props, err := h.ParseProperties(map[string]any{"operation": "read", "source_details": "data.json"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := h.Run(context.Background(), props, handler.ContextSnapshot{}, nil, services)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Value["default"] != `{"name":"ana"}` {
		t.Errorf("got %v, want the raw file content", out.Value)
	}
}

func TestDBReadAppliesGjsonQuery(t *testing.T) {
	h := NewDB()
	fs := newFakeFileService()
	fs.files["data.json"] = []byte(`{"name":"ana"}`)
	services := handler.Services{registry.FileKey.Name: fs}

	props, err := h.ParseProperties(map[string]any{"operation": "read", "source_details": "data.json#name"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := h.Run(context.Background(), props, handler.ContextSnapshot{}, nil, services)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Value["default"] != "ana" {
		t.Errorf("got %v, want ana", out.Value)
	}
}

func TestDBWriteWritesInputToFile(t *testing.T) {
	h := NewDB()
	fs := newFakeFileService()
	services := handler.Services{registry.FileKey.Name: fs}

	props, err := h.ParseProperties(map[string]any{"operation": "write", "source_details": "out.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := h.Run(context.Background(), props, handler.ContextSnapshot{}, map[string]any{"default": "payload"}, services); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(fs.files["out.txt"]) != "payload" {
		t.Errorf("got %q, want payload", fs.files["out.txt"])
	}
}

func TestDBAppendMergesIntoEntriesArray(t *testing.T) {
	h := NewDB()
	fs := newFakeFileService()
	fs.files["log.json"] = []byte(`{"entries":["first"]}`)
	services := handler.Services{registry.FileKey.Name: fs}

	props, err := h.ParseProperties(map[string]any{"operation": "append", "source_details": "log.json"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := h.Run(context.Background(), props, handler.ContextSnapshot{}, map[string]any{"default": "second"}, services); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(fs.files["log.json"]) == `{"entries":["first"]}` {
		t.Error("expected the append operation to have modified the stored document")
	}
}
