// Package llm narrows the generic provider-agnostic model.Client down to the
// single-turn, text-in/text-out shape the Mode Router's LLM overrides, the
// Request Segmenter, and the Trinity agents actually need: one prompt in,
// one reply out, no tool calls, no streaming. Anything that needs the full
// transcript/tool-call surface should use model.Client directly.
package llm

import (
	"context"
	"errors"
	"strings"

	"trinity.dev/orchestrator/runtime/agent/model"
)

// CompletionRequest is a single prompt exchange against a model.Client.
type CompletionRequest struct {
	// SystemPrompt, when non-empty, is sent as a system message ahead of
	// UserPrompt.
	SystemPrompt string

	// UserPrompt is the sole user turn.
	UserPrompt string

	// ModelClass selects which of the client's configured model tiers
	// handles this request (see model.ModelClass). Empty means the
	// client's default.
	ModelClass model.ModelClass

	// MaxTokens caps the reply length. Zero uses a conservative default
	// sized for classification/planning JSON replies.
	MaxTokens int

	// Temperature controls sampling. Zero lets the client's own default
	// apply (most classification prompts want low temperature).
	Temperature float32
}

const defaultMaxTokens = 2048

// Complete issues a non-streaming turn against client and concatenates the
// text parts of the assistant's reply. Tool calls in the response, if any,
// are ignored: callers that need tool use should talk to model.Client
// directly instead of going through this package.
func Complete(ctx context.Context, client model.Client, req CompletionRequest) (string, error) {
	if client == nil {
		return "", errors.New("llm: client is required")
	}
	if strings.TrimSpace(req.UserPrompt) == "" {
		return "", errors.New("llm: user prompt is required")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	messages := make([]*model.Message, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, &model.Message{
			Role:  model.ConversationRoleSystem,
			Parts: []model.Part{model.TextPart{Text: req.SystemPrompt}},
		})
	}
	messages = append(messages, &model.Message{
		Role:  model.ConversationRoleUser,
		Parts: []model.Part{model.TextPart{Text: req.UserPrompt}},
	})

	resp, err := client.Complete(ctx, &model.Request{
		ModelClass:  req.ModelClass,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", err
	}
	return extractText(resp), nil
}

func extractText(resp *model.Response) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, msg := range resp.Content {
		for _, part := range msg.Parts {
			if t, ok := part.(model.TextPart); ok {
				sb.WriteString(t.Text)
			}
		}
	}
	return sb.String()
}
