package refhandler

import (
	"context"
	"fmt"
	"strings"

	"github.com/sorryhyun/dipeo-engine/diagram"
	"github.com/sorryhyun/dipeo-engine/handler"
	"github.com/sorryhyun/dipeo-engine/llm"
	"github.com/sorryhyun/dipeo-engine/memory"
	"github.com/sorryhyun/dipeo-engine/registry"
)

// personJobHandler is the LLM-call-with-memory node: it resolves a Person's
// model config, renders the iteration-appropriate prompt (first_only_prompt
// on exec_count==0, default_prompt/prompt otherwise — §4.6's "first vs.
// default" selection happens in the input collector; this handler makes the
// matching choice on its own prompt text), sends the visible conversation
// plus the new prompt to the LLM, and records both turns in Conversation
// Memory.
type personJobHandler struct{}

// NewPersonJob constructs the "person_job" node handler.
func NewPersonJob() handler.Handler { return personJobHandler{} }

func (personJobHandler) NodeType() string { return "person_job" }

func (personJobHandler) RequiresServices() []string {
	return []string{registry.LLMKey.Name, registry.MemoryKey.Name}
}

func (personJobHandler) ParseProperties(raw map[string]any) (any, error) {
	props := handler.PersonJobProps{MaxIteration: 1, ContextCleaningRule: "none"}
	if v, ok := raw["person_id"].(string); ok {
		props.PersonID = v
	}
	if v, ok := raw["person"].(map[string]any); ok {
		props.InlinePerson = v
	}
	if v, ok := raw["prompt"].(string); ok {
		props.Prompt = v
	}
	if v, ok := raw["default_prompt"].(string); ok {
		props.DefaultPrompt = v
	}
	if v, ok := raw["first_only_prompt"].(string); ok {
		props.FirstOnlyPrompt = v
	}
	if v, ok := raw["max_iteration"].(int); ok && v > 0 {
		props.MaxIteration = v
	}
	if v, ok := raw["context_cleaning_rule"].(string); ok && v != "" {
		props.ContextCleaningRule = v
	}
	if props.PersonID == "" && props.InlinePerson == nil {
		return nil, &handler.ValidationError{NodeType: "person_job", Fields: []handler.FieldError{
			{Path: "person_id", Msg: "either person_id or an inline person object is required"},
		}}
	}
	if props.Prompt == "" && props.DefaultPrompt == "" && props.FirstOnlyPrompt == "" {
		return nil, &handler.ValidationError{NodeType: "person_job", Fields: []handler.FieldError{
			{Path: "prompt", Msg: "one of prompt, default_prompt, or first_only_prompt is required"},
		}}
	}
	return props, nil
}

func (personJobHandler) Run(ctx context.Context, props any, cctx handler.ContextSnapshot, inputs map[string]any, services handler.Services) (handler.NodeOutput, error) {
	p := props.(handler.PersonJobProps)

	model, ok := services[registry.LLMKey.Name].(llm.ChatModel)
	if !ok {
		return handler.NodeOutput{}, fmt.Errorf("person_job: service %q did not resolve to an llm.ChatModel", registry.LLMKey.Name)
	}
	store, ok := services[registry.MemoryKey.Name].(*memory.Store)
	if !ok {
		return handler.NodeOutput{}, fmt.Errorf("person_job: service %q did not resolve to a *memory.Store", registry.MemoryKey.Name)
	}

	person, personID := resolvePerson(p, cctx)
	execCount := cctx.ExecCounts[cctx.CurrentNodeID]

	promptTemplate := p.DefaultPrompt
	if promptTemplate == "" {
		promptTemplate = p.Prompt
	}
	if execCount == 0 && p.FirstOnlyPrompt != "" {
		promptTemplate = p.FirstOnlyPrompt
	}
	promptText := renderTemplate(promptTemplate, inputs)

	visible := store.VisibleMessages(personID)
	messages := make([]llm.Message, 0, len(visible)+1)
	if person.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: person.SystemPrompt})
	}
	for _, m := range visible {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: promptText})

	out, err := model.Chat(ctx, messages, llm.ChatOptions{Model: person.Model})
	if err != nil {
		return handler.NodeOutput{}, fmt.Errorf("person_job: chat: %w", err)
	}

	nodeLabel := string(cctx.CurrentNodeID)
	store.AddMessage(promptText, "", cctx.ExecutionID, []diagram.PersonID{personID}, "user", cctx.CurrentNodeID, nodeLabel, nil)
	tokens := &handler.TokenUsage{Input: out.Usage.InputTokens, Output: out.Usage.OutputTokens, Cached: out.Usage.CachedTokens, Total: out.Usage.InputTokens + out.Usage.OutputTokens}
	store.AddMessage(out.Text, personID, cctx.ExecutionID, []diagram.PersonID{personID}, "assistant", cctx.CurrentNodeID, nodeLabel, tokens)

	applyContextCleaning(store, personID, cctx.ExecutionID, p.ContextCleaningRule)

	return handler.NodeOutput{
		Value:    map[string]any{"default": out.Text},
		Metadata: map[string]any{"status": handler.StatusCompleted, "tokenUsage": tokens},
	}, nil
}

// resolvePerson resolves the node's Person config from the diagram's
// persons table, falling back to an inline person object when person_id
// does not resolve (or is absent).
func resolvePerson(p handler.PersonJobProps, cctx handler.ContextSnapshot) (diagram.Person, diagram.PersonID) {
	if p.PersonID != "" {
		id := diagram.PersonID(p.PersonID)
		if person, ok := cctx.Persons[id]; ok {
			return person, id
		}
	}
	person := diagram.Person{ID: diagram.PersonID(p.PersonID)}
	if inline := p.InlinePerson; inline != nil {
		if v, ok := inline["service"].(string); ok {
			person.Service = v
		}
		if v, ok := inline["model"].(string); ok {
			person.Model = v
		}
		if v, ok := inline["system_prompt"].(string); ok {
			person.SystemPrompt = v
		}
		if v, ok := inline["api_key_id"].(string); ok {
			person.APIKeyID = v
		}
	}
	if person.ID == "" {
		person.ID = diagram.PersonID(fmt.Sprintf("inline:%s", cctx.CurrentNodeID))
	}
	return person, person.ID
}

// renderTemplate substitutes "{{key}}" placeholders in tmpl with inputs[key]
// rendered as a string, leaving unknown placeholders untouched.
func renderTemplate(tmpl string, inputs map[string]any) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	var b strings.Builder
	rest := tmpl
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			b.WriteString(rest)
			break
		}
		end += start
		b.WriteString(rest[:start])
		key := strings.TrimSpace(rest[start+2 : end])
		if v, ok := inputs[key]; ok {
			b.WriteString(fmt.Sprintf("%v", v))
		} else {
			b.WriteString(rest[start : end+2])
		}
		rest = rest[end+2:]
	}
	return b.String()
}

// applyContextCleaning runs the node's configured forgetfulness policy
// after each call: "forget_own" drops only this person's own prior turns,
// "forget_all" drops everything visible to it, "none" (default) keeps the
// conversation intact for the next iteration.
func applyContextCleaning(store *memory.Store, person diagram.PersonID, execID diagram.ExecutionID, rule string) {
	switch rule {
	case "forget_own":
		store.ForgetOwnMessages(person, &execID)
	case "forget_all":
		store.ForgetForPerson(person, &execID)
	}
}
