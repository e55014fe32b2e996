package llm

import (
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	anthropicadapter "trinity.dev/orchestrator/features/model/anthropic"
	"trinity.dev/orchestrator/runtime/agent/model"
)

// AnthropicConfig names the three Claude model identifiers Trinity's tiers
// map onto (see modeprofile.Tier): Standard requests use Default, and
// deep-tier requests (deep_chat, reflexion-heavy development work) use
// High. Small is reserved for cheap internal classification calls the
// agents issue directly rather than through a segment/mode profile.
type AnthropicConfig struct {
	APIKey  string
	Default string
	High    string
	Small   string
}

// NewAnthropicClient builds a model.Client backed by the Anthropic Messages
// API, with Trinity's three model tiers wired to concrete Claude model
// identifiers (spec §3 ModeProfile.llm_tier: standard|deep).
func NewAnthropicClient(cfg AnthropicConfig) (model.Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: anthropic api key is required")
	}
	if cfg.Default == "" {
		return nil, errors.New("llm: default model identifier is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(cfg.APIKey))
	return anthropicadapter.New(&ac.Messages, anthropicadapter.Options{
		DefaultModel: cfg.Default,
		HighModel:    cfg.High,
		SmallModel:   cfg.Small,
		MaxTokens:    defaultMaxTokens,
		Temperature:  0.1,
	})
}
