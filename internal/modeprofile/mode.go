// Package modeprofile implements the Mode Router: it turns a classification
// blob (from the Strategist's LLM call, or a keyword heuristic when that
// call fails) into a ModeProfile, the declarative execution contract that
// the rest of the orchestrator dispatches on. Profile construction is the
// only way a mode is assigned downstream; nothing else re-classifies by
// keyword.
package modeprofile

import "strings"

// Mode is one of the known execution modes a request segment can carry.
type Mode string

const (
	ModeChat        Mode = "chat"
	ModeDeepChat    Mode = "deep_chat"
	ModeSoloTask    Mode = "solo_task"
	ModeTask        Mode = "task"
	ModeDevelopment Mode = "development"
	ModeRecall      Mode = "recall"
	ModeStatus      Mode = "status"
)

// ParseMode normalizes raw into a known Mode, applying the synonym table
// from spec §4.4 (`dev→development`, `coding→development`,
// `deepchat→deep_chat`, `solo|solotask→solo_task`). Returns "" when raw does
// not match any known mode or synonym.
func ParseMode(raw string) Mode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeChat):
		return ModeChat
	case string(ModeDeepChat), "deepchat":
		return ModeDeepChat
	case string(ModeSoloTask), "solo", "solotask":
		return ModeSoloTask
	case string(ModeTask):
		return ModeTask
	case string(ModeDevelopment), "dev", "coding":
		return ModeDevelopment
	case string(ModeRecall):
		return ModeRecall
	case string(ModeStatus):
		return ModeStatus
	default:
		return ""
	}
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeChat, ModeDeepChat, ModeSoloTask, ModeTask, ModeDevelopment, ModeRecall, ModeStatus:
		return true
	default:
		return false
	}
}

// Tier is the LLM capability tier a mode requires.
type Tier string

const (
	TierStandard Tier = "standard"
	TierDeep     Tier = "deep"
)

// ToolsAccess controls how much of the Dispatcher surface a mode exposes.
type ToolsAccess string

const (
	ToolsNone    ToolsAccess = "none"
	ToolsLimited ToolsAccess = "limited"
	ToolsFull    ToolsAccess = "full"
)

// Profile is the execution contract for one request segment (spec §3
// ModeProfile). It is always built by merging static per-mode defaults with
// LLM overrides via Build; never constructed ad hoc by agents.
type Profile struct {
	Mode           Mode        `json:"mode"`
	Complexity     string      `json:"complexity"`
	LLMTier        Tier        `json:"llm_tier"`
	PromptTemplate string      `json:"prompt_template"`
	ToolsAccess    ToolsAccess `json:"tools_access"`

	// Protocols is the ordered set of protocol names resolved via the
	// static protocol registry into text blocks injected into system
	// prompts.
	Protocols []string `json:"protocols"`

	// Servers is the recommended tool-server allowlist for this mode.
	Servers []string `json:"servers"`

	RequirePlanning       bool `json:"require_planning"`
	RequireTools          bool `json:"require_tools"`
	UseDeepPersona        bool `json:"use_deep_persona"`
	UseSequentialThinking bool `json:"use_sequential_thinking"`
	UseVibe               bool `json:"use_vibe"`
	TrinityRequired       bool `json:"trinity_required"`

	// ExtraServers and ExtraProtocols are LLM-suggested additions merged,
	// de-duplicated, into Servers/Protocols by Build.
	ExtraServers   []string `json:"extra_servers,omitempty"`
	ExtraProtocols []string `json:"extra_protocols,omitempty"`
}

// Defaults is the static per-mode configuration merged with LLM overrides
// during Build. One Defaults exists per known Mode; see DefaultRegistry.
type Defaults struct {
	Complexity            string
	LLMTier               Tier
	PromptTemplate        string
	ToolsAccess           ToolsAccess
	Protocols             []string
	Servers               []string
	RequirePlanning       bool
	RequireTools          bool
	UseDeepPersona        bool
	UseSequentialThinking bool
	UseVibe               bool
	TrinityRequired       bool
}

// DefaultRegistry holds the static per-mode defaults. Populated by
// StandardRegistry or internal/config's LoadModeProfiles from the mode profiles file (spec
// §6 "Mode profiles file").
type DefaultRegistry map[Mode]Defaults

// StandardRegistry returns a conservative built-in default registry, used
// when no external mode profiles file is configured (tests, examples).
func StandardRegistry() DefaultRegistry {
	return DefaultRegistry{
		ModeChat: {
			Complexity: "low", LLMTier: TierStandard, PromptTemplate: "chat",
			ToolsAccess: ToolsNone,
		},
		ModeDeepChat: {
			Complexity: "medium", LLMTier: TierDeep, PromptTemplate: "deep_chat",
			ToolsAccess: ToolsNone, UseDeepPersona: true, UseSequentialThinking: true,
		},
		ModeSoloTask: {
			Complexity: "medium", LLMTier: TierStandard, PromptTemplate: "solo_task",
			ToolsAccess: ToolsLimited, RequireTools: true,
			Servers: []string{"terminal", "filesystem"},
		},
		ModeTask: {
			Complexity: "medium", LLMTier: TierStandard, PromptTemplate: "task",
			ToolsAccess: ToolsFull, RequirePlanning: true, RequireTools: true,
			TrinityRequired: true,
			Servers:         []string{"terminal", "filesystem", "browser"},
			Protocols:       []string{"task"},
		},
		ModeDevelopment: {
			Complexity: "high", LLMTier: TierDeep, PromptTemplate: "development",
			ToolsAccess: ToolsFull, RequirePlanning: true, RequireTools: true,
			TrinityRequired: true, UseVibe: true, UseSequentialThinking: true,
			Servers:   []string{"terminal", "filesystem", "vibe", "devtools"},
			Protocols: []string{"sdlc", "task"},
		},
		ModeRecall: {
			Complexity: "low", LLMTier: TierStandard, PromptTemplate: "recall",
			ToolsAccess: ToolsLimited, RequireTools: true,
			Servers:   []string{"memory", "graph"},
			Protocols: []string{"storage"},
		},
		ModeStatus: {
			Complexity: "low", LLMTier: TierStandard, PromptTemplate: "status",
			ToolsAccess: ToolsLimited,
			Servers:     []string{"redis"},
		},
	}
}

// Analysis is the classification blob the Strategist's analyze_request
// returns (or the fallback heuristic synthesizes), the input to Build.
type Analysis struct {
	Mode           string
	ExtraServers   []string
	ExtraProtocols []string
	UseDeepPersona bool
}

// Build constructs a Profile by merging the static defaults for the parsed
// mode with the LLM's proposed overrides, then applying auto-upgrades (spec
// §3: `mode==chat && use_deep_persona==true ⇒ mode:=deep_chat`). Unknown
// modes fall back to ModeChat so downstream dispatch always has a valid
// profile to act on.
func (r DefaultRegistry) Build(a Analysis) Profile {
	mode := ParseMode(a.Mode)
	if mode == "" {
		mode = ModeChat
	}

	d, ok := r[mode]
	if !ok {
		d = r[ModeChat]
	}

	p := Profile{
		Mode:                  mode,
		Complexity:            d.Complexity,
		LLMTier:               d.LLMTier,
		PromptTemplate:        d.PromptTemplate,
		ToolsAccess:           d.ToolsAccess,
		Protocols:             append([]string(nil), d.Protocols...),
		Servers:               append([]string(nil), d.Servers...),
		RequirePlanning:       d.RequirePlanning,
		RequireTools:          d.RequireTools,
		UseDeepPersona:        d.UseDeepPersona || a.UseDeepPersona,
		UseSequentialThinking: d.UseSequentialThinking,
		UseVibe:               d.UseVibe,
		TrinityRequired:       d.TrinityRequired,
		ExtraServers:          a.ExtraServers,
		ExtraProtocols:        a.ExtraProtocols,
	}

	p.Servers = mergeUnique(p.Servers, a.ExtraServers)
	p.Protocols = mergeUnique(p.Protocols, a.ExtraProtocols)

	if p.Mode == ModeChat && p.UseDeepPersona {
		p.Mode = ModeDeepChat
		if dd, ok := r[ModeDeepChat]; ok {
			p.LLMTier = dd.LLMTier
			p.PromptTemplate = dd.PromptTemplate
			p.UseSequentialThinking = p.UseSequentialThinking || dd.UseSequentialThinking
		}
	}

	return p
}

// mergeUnique appends extras to base, skipping anything already present.
func mergeUnique(base, extras []string) []string {
	seen := make(map[string]struct{}, len(base))
	out := append([]string(nil), base...)
	for _, b := range base {
		seen[b] = struct{}{}
	}
	for _, e := range extras {
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
