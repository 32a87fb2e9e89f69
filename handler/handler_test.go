package handler

import (
	"strings"
	"testing"
)

func TestFailBuildsFailedStatusMetadata(t *testing.T) {
	out := Fail("boom")
	if out.Metadata["status"] != StatusFailed {
		t.Errorf("got status %v, want %v", out.Metadata["status"], StatusFailed)
	}
	if out.Metadata["error"] != "boom" {
		t.Errorf("got error %v, want boom", out.Metadata["error"])
	}
	if out.Value == nil {
		t.Error("expected non-nil Value map")
	}
}

func TestValidationErrorFormatsAllFields(t *testing.T) {
	err := &ValidationError{
		NodeType: "condition",
		Fields: []FieldError{
			{Path: "expression", Msg: "required"},
			{Path: "language", Msg: "must be one of python, javascript, bash"},
		},
	}
	msg := err.Error()
	if msg == "" {
		t.Fatal("expected non-empty error message")
	}
	for _, want := range []string{"condition", "expression: required", "language: must be one of"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected error message %q to contain %q", msg, want)
		}
	}
}
