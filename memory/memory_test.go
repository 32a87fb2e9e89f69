package memory

import (
	"fmt"
	"testing"

	"github.com/sorryhyun/dipeo-engine/diagram"
)

func idGen() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("msg-%d", n)
	}
}

func TestAddMessageAndVisibleMessagesRoleRewrite(t *testing.T) {
	s := New(idGen())
	execID := diagram.ExecutionID("exec1")

	s.AddMessage("hello from orchestrator", "", execID, []diagram.PersonID{"alice"}, "user", "n1", "orchestrator", nil)
	s.AddMessage("hi, I'm alice", "alice", execID, []diagram.PersonID{"alice"}, "assistant", "n2", "alice-node", nil)

	visible := s.VisibleMessages("alice")
	if len(visible) != 2 {
		t.Fatalf("expected 2 visible messages, got %d", len(visible))
	}
	if visible[0].Role != "user" || visible[0].Content != "[orchestrator]: hello from orchestrator" {
		t.Errorf("unexpected first message: %+v", visible[0])
	}
	if visible[1].Role != "assistant" || visible[1].Content != "hi, I'm alice" {
		t.Errorf("unexpected second message: %+v", visible[1])
	}
}

func TestForgetForPersonEmptiesVisibleMessages(t *testing.T) {
	s := New(idGen())
	execID := diagram.ExecutionID("exec1")
	s.AddMessage("hi", "bob", execID, []diagram.PersonID{"alice"}, "user", "n1", "bob", nil)

	s.ForgetForPerson("alice", nil)
	if got := s.VisibleMessages("alice"); len(got) != 0 {
		t.Errorf("expected no visible messages after forgetting, got %d", len(got))
	}
}

func TestForgetOwnMessagesOnlyHidesSenderTurns(t *testing.T) {
	s := New(idGen())
	execID := diagram.ExecutionID("exec1")
	s.AddMessage("from bob", "bob", execID, []diagram.PersonID{"alice"}, "user", "n1", "bob", nil)
	s.AddMessage("from alice", "alice", execID, []diagram.PersonID{"alice"}, "assistant", "n2", "alice", nil)

	s.ForgetOwnMessages("alice", nil)
	visible := s.VisibleMessages("alice")
	if len(visible) != 1 {
		t.Fatalf("expected 1 visible message after forgetting own, got %d", len(visible))
	}
	if visible[0].Content != "[bob]: from bob" {
		t.Errorf("unexpected surviving message: %+v", visible[0])
	}
}

func TestForgetScopedToExecution(t *testing.T) {
	s := New(idGen())
	exec1 := diagram.ExecutionID("exec1")
	exec2 := diagram.ExecutionID("exec2")
	s.AddMessage("run1 msg", "bob", exec1, []diagram.PersonID{"alice"}, "user", "n1", "bob", nil)
	s.AddMessage("run2 msg", "bob", exec2, []diagram.PersonID{"alice"}, "user", "n2", "bob", nil)

	s.ForgetForPerson("alice", &exec1)
	visible := s.VisibleMessages("alice")
	if len(visible) != 1 || visible[0].Content != "[bob]: run2 msg" {
		t.Errorf("expected only exec2's message to survive, got %+v", visible)
	}
}

func TestPerPersonEvictionTrimsOldest(t *testing.T) {
	s := New(idGen())
	s.maxPerPerson = 3
	execID := diagram.ExecutionID("exec1")
	for i := 0; i < 5; i++ {
		s.AddMessage(fmt.Sprintf("msg %d", i), "bob", execID, []diagram.PersonID{"alice"}, "user", "n", "bob", nil)
	}
	visible := s.VisibleMessages("alice")
	if len(visible) != 3 {
		t.Fatalf("expected log trimmed to 3, got %d", len(visible))
	}
	if visible[0].Content != "[bob]: msg 2" {
		t.Errorf("expected oldest messages evicted, got first=%+v", visible[0])
	}
}

func TestGlobalEvictionPurgesForgottenIDs(t *testing.T) {
	s := New(idGen())
	s.maxGlobal = 2
	execID := diagram.ExecutionID("exec1")
	s.AddMessage("first", "bob", execID, []diagram.PersonID{"alice"}, "user", "n", "bob", nil)
	s.ForgetForPerson("alice", nil)
	s.AddMessage("second", "bob", execID, []diagram.PersonID{"alice"}, "user", "n", "bob", nil)
	s.AddMessage("third", "bob", execID, []diagram.PersonID{"alice"}, "user", "n", "bob", nil)

	pl := s.logFor("alice")
	pl.mu.Lock()
	forgottenCount := len(pl.forgotten)
	pl.mu.Unlock()
	if forgottenCount != 0 {
		t.Errorf("expected the forgotten id to be purged on global eviction, forgotten set has %d entries", forgottenCount)
	}
}
