package refhandler

import (
	"context"
	"testing"

	"github.com/sorryhyun/dipeo-engine/handler"
	"github.com/sorryhyun/dipeo-engine/registry"
)

type fakeFileService struct {
	files map[string][]byte
}

func newFakeFileService() *fakeFileService { return &fakeFileService{files: map[string][]byte{}} }

func (f *fakeFileService) ReadFile(path string) ([]byte, error) { return f.files[path], nil }
func (f *fakeFileService) WriteFile(path string, data []byte) error {
	f.files[path] = append([]byte(nil), data...)
	return nil
}
func (f *fakeFileService) AppendFile(path string, data []byte) error {
	f.files[path] = append([]byte(nil), data...)
	return nil
}

func TestEndpointPassesInputThroughUnchanged(t *testing.T) {
	h := NewEndpoint()
	props, err := h.ParseProperties(map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := h.Run(context.Background(), props, handler.ContextSnapshot{}, map[string]any{"default": "hello"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Value["default"] != "hello" {
		t.Errorf("got %v, want default=hello", out.Value)
	}
}

func TestEndpointRequiresFileNameWhenSavingToFile(t *testing.T) {
	h := NewEndpoint()
	if _, err := h.ParseProperties(map[string]any{"save_to_file": true}); err == nil {
		t.Fatal("expected a validation error when file_name is missing")
	}
}

func TestEndpointWritesToFileService(t *testing.T) {
	h := NewEndpoint()
	props, err := h.ParseProperties(map[string]any{"save_to_file": true, "file_name": "out.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fs := newFakeFileService()
	services := handler.Services{registry.FileKey.Name: fs}

	if _, err := h.Run(context.Background(), props, handler.ContextSnapshot{}, map[string]any{"default": "hello"}, services); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(fs.files["out.txt"]) != "hello" {
		t.Errorf("got file content %q, want hello", fs.files["out.txt"])
	}
}
