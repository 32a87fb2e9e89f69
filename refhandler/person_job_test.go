package refhandler

import (
	"context"
	"fmt"
	"testing"

	"github.com/sorryhyun/dipeo-engine/diagram"
	"github.com/sorryhyun/dipeo-engine/handler"
	"github.com/sorryhyun/dipeo-engine/llm"
	"github.com/sorryhyun/dipeo-engine/memory"
	"github.com/sorryhyun/dipeo-engine/registry"
)

func newPersonJobMemoryStore() *memory.Store {
	n := 0
	return memory.New(func() string {
		n++
		return fmt.Sprintf("msg-%d", n)
	})
}

func TestPersonJobRequiresPersonIdentity(t *testing.T) {
	h := NewPersonJob()
	if _, err := h.ParseProperties(map[string]any{"prompt": "hi"}); err == nil {
		t.Fatal("expected a validation error when neither person_id nor an inline person is given")
	}
}

func TestPersonJobRequiresAtLeastOnePromptField(t *testing.T) {
	h := NewPersonJob()
	if _, err := h.ParseProperties(map[string]any{"person_id": "p1"}); err == nil {
		t.Fatal("expected a validation error when no prompt field is given")
	}
}

func TestPersonJobUsesFirstOnlyPromptOnFirstExecution(t *testing.T) {
	h := NewPersonJob()
	props, err := h.ParseProperties(map[string]any{
		"person_id":         "p1",
		"first_only_prompt": "first time, {{name}}",
		"default_prompt":    "later time, {{name}}",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	model := &llm.MockChatModel{Responses: []llm.ChatOut{{Text: "reply"}}}
	store := newPersonJobMemoryStore()
	services := handler.Services{registry.LLMKey.Name: model, registry.MemoryKey.Name: store}
	cctx := handler.ContextSnapshot{
		ExecutionID:   "exec-1",
		CurrentNodeID: "n1",
		Persons:       map[diagram.PersonID]diagram.Person{"p1": {ID: "p1"}},
		ExecCounts:    map[diagram.NodeID]int{"n1": 0},
	}

	if _, err := h.Run(context.Background(), props, cctx, map[string]any{"name": "Ana"}, services); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := model.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	last := calls[0].Messages[len(calls[0].Messages)-1]
	if last.Content != "first time, Ana" {
		t.Errorf("got prompt %q, want the rendered first_only_prompt", last.Content)
	}
}

func TestPersonJobUsesDefaultPromptOnLaterExecution(t *testing.T) {
	h := NewPersonJob()
	props, err := h.ParseProperties(map[string]any{
		"person_id":         "p1",
		"first_only_prompt": "first time, {{name}}",
		"default_prompt":    "later time, {{name}}",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	model := &llm.MockChatModel{Responses: []llm.ChatOut{{Text: "reply"}}}
	store := newPersonJobMemoryStore()
	services := handler.Services{registry.LLMKey.Name: model, registry.MemoryKey.Name: store}
	cctx := handler.ContextSnapshot{
		ExecutionID:   "exec-1",
		CurrentNodeID: "n1",
		Persons:       map[diagram.PersonID]diagram.Person{"p1": {ID: "p1"}},
		ExecCounts:    map[diagram.NodeID]int{"n1": 1},
	}

	if _, err := h.Run(context.Background(), props, cctx, map[string]any{"name": "Ana"}, services); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last := model.Calls()[0].Messages[len(model.Calls()[0].Messages)-1]
	if last.Content != "later time, Ana" {
		t.Errorf("got prompt %q, want the rendered default_prompt", last.Content)
	}
}

func TestPersonJobResolvesInlinePersonWhenPersonIDMissing(t *testing.T) {
	h := NewPersonJob()
	props, err := h.ParseProperties(map[string]any{
		"person":         map[string]any{"model": "gpt-5", "system_prompt": "be terse"},
		"default_prompt": "hi",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	model := &llm.MockChatModel{Responses: []llm.ChatOut{{Text: "ok"}}}
	store := newPersonJobMemoryStore()
	services := handler.Services{registry.LLMKey.Name: model, registry.MemoryKey.Name: store}
	cctx := handler.ContextSnapshot{
		ExecutionID:   "exec-1",
		CurrentNodeID: "n2",
		ExecCounts:    map[diagram.NodeID]int{"n2": 0},
	}

	if _, err := h.Run(context.Background(), props, cctx, nil, services); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := model.Calls()
	if calls[0].Options.Model != "gpt-5" {
		t.Errorf("got model %q, want gpt-5 from the inline person", calls[0].Options.Model)
	}
	if calls[0].Messages[0].Role != llm.RoleSystem || calls[0].Messages[0].Content != "be terse" {
		t.Errorf("expected the inline person's system prompt as the first message, got %+v", calls[0].Messages[0])
	}
}

func TestPersonJobRecordsPromptAndResponseInMemory(t *testing.T) {
	h := NewPersonJob()
	props, err := h.ParseProperties(map[string]any{"person_id": "p1", "default_prompt": "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	model := &llm.MockChatModel{Responses: []llm.ChatOut{{Text: "hello back"}}}
	store := newPersonJobMemoryStore()
	services := handler.Services{registry.LLMKey.Name: model, registry.MemoryKey.Name: store}
	cctx := handler.ContextSnapshot{
		ExecutionID:   "exec-1",
		CurrentNodeID: "n1",
		Persons:       map[diagram.PersonID]diagram.Person{"p1": {ID: "p1"}},
		ExecCounts:    map[diagram.NodeID]int{"n1": 0},
	}

	out, err := h.Run(context.Background(), props, cctx, nil, services)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Value["default"] != "hello back" {
		t.Errorf("got %v, want default=hello back", out.Value)
	}

	visible := store.VisibleMessages("p1")
	if len(visible) != 2 {
		t.Fatalf("got %d visible messages, want 2 (prompt + response)", len(visible))
	}
	if visible[1].Role != "assistant" || visible[1].Content != "hello back" {
		t.Errorf("got %+v, want the response recorded as this person's own assistant turn", visible[1])
	}
}

func TestPersonJobForgetOwnCleaningDropsOnlySenderTurns(t *testing.T) {
	h := NewPersonJob()
	props, err := h.ParseProperties(map[string]any{
		"person_id":             "p1",
		"default_prompt":        "hi",
		"context_cleaning_rule": "forget_own",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	model := &llm.MockChatModel{Responses: []llm.ChatOut{{Text: "reply"}}}
	store := newPersonJobMemoryStore()
	services := handler.Services{registry.LLMKey.Name: model, registry.MemoryKey.Name: store}
	cctx := handler.ContextSnapshot{
		ExecutionID:   "exec-1",
		CurrentNodeID: "n1",
		Persons:       map[diagram.PersonID]diagram.Person{"p1": {ID: "p1"}},
		ExecCounts:    map[diagram.NodeID]int{"n1": 0},
	}

	if _, err := h.Run(context.Background(), props, cctx, nil, services); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	visible := store.VisibleMessages("p1")
	if len(visible) != 1 {
		t.Errorf("got %d visible messages, want 1 (the prompt, which p1 did not send) after forget_own drops p1's own reply", len(visible))
	}
}
