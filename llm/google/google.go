// Package google adapts github.com/google/generative-ai-go/genai to llm.ChatModel.
package google

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/sorryhyun/dipeo-engine/llm"
)

// ChatModel talks to Gemini models through the official SDK.
type ChatModel struct {
	apiKey    string
	modelName string
}

// NewChatModel builds a ChatModel bound to apiKey, defaulting to
// gemini-1.5-flash when modelName is empty.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &ChatModel{apiKey: apiKey, modelName: modelName}
}

func (m *ChatModel) Name() string { return "google" }

// Chat implements llm.ChatModel. Gemini has no distinct system-message
// turn, so RoleSystem content is hoisted into SystemInstruction.
func (m *ChatModel) Chat(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (llm.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return llm.ChatOut{}, err
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(m.apiKey))
	if err != nil {
		return llm.ChatOut{}, fmt.Errorf("google: create client: %w", err)
	}
	defer client.Close()

	modelName := m.modelName
	if opts.Model != "" {
		modelName = opts.Model
	}
	genModel := client.GenerativeModel(modelName)
	if opts.MaxTokens > 0 {
		genModel.MaxOutputTokens = int32ptr(opts.MaxTokens)
	}

	system, parts := splitSystemPrompt(messages)
	if system != "" {
		genModel.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	resp, err := genModel.GenerateContent(ctx, parts...)
	if err != nil {
		return llm.ChatOut{}, fmt.Errorf("google: %w", err)
	}
	return convertResponse(resp), nil
}

func splitSystemPrompt(messages []llm.Message) (string, []genai.Part) {
	var system string
	var parts []genai.Part
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}
		if msg.Content != "" {
			parts = append(parts, genai.Text(msg.Content))
		}
	}
	return system, parts
}

func convertResponse(resp *genai.GenerateContentResponse) llm.ChatOut {
	var out llm.ChatOut
	if resp.UsageMetadata != nil {
		out.Usage = llm.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			CachedTokens: int(resp.UsageMetadata.CachedContentTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += string(text)
		}
	}
	return out
}

func int32ptr(v int) *int32 {
	x := int32(v)
	return &x
}
