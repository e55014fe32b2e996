// Package config loads Trinity's declarative configuration — the MCP
// server catalog, mode profiles, and tool schema files named in spec §6 —
// and its environment-derived runtime settings, grounded on
// registry/cmd/registry/main.go's envOr/envDurationOr/envIntOr idiom.
package config

import (
	"os"
	"strconv"
	"time"
)

// Settings bundles every environment-derived knob cmd/trinity needs to
// construct an Orchestrator: provider credentials, Redis connection info,
// and the bounded-retry defaults exposed as Orchestrator options.
type Settings struct {
	AnthropicAPIKey      string
	AnthropicDefaultTier string
	AnthropicHighTier    string
	AnthropicSmallTier   string

	RedisURL      string
	RedisPassword string
	CheckpointTTL time.Duration

	ProjectRoot string

	ReplanLimit     int
	MaxStepAttempts int
	SoloTaskTurns   int
	InputTimeout    time.Duration

	ModeProfilesPath string
	ToolServersPath  string
	ToolSchemasPath  string
	RejectionDir     string
}

// LoadSettings reads Settings from the environment, falling back to the
// same conservative defaults StandardRegistry and the Orchestrator's own
// WithLimits defaults already assume.
func LoadSettings() Settings {
	return Settings{
		AnthropicAPIKey:      os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicDefaultTier: envOr("ANTHROPIC_MODEL_DEFAULT", "claude-3-5-sonnet-latest"),
		AnthropicHighTier:    envOr("ANTHROPIC_MODEL_HIGH", "claude-3-5-opus-latest"),
		AnthropicSmallTier:   envOr("ANTHROPIC_MODEL_SMALL", "claude-3-5-haiku-latest"),

		RedisURL:      envOr("REDIS_URL", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		CheckpointTTL: envDurationOr("CHECKPOINT_TTL", 24*time.Hour),

		ProjectRoot: envOr("PROJECT_ROOT", mustGetwd()),

		ReplanLimit:     envIntOr("REPLAN_LIMIT", 2),
		MaxStepAttempts: envIntOr("MAX_STEP_ATTEMPTS", 3),
		SoloTaskTurns:   envIntOr("SOLO_TASK_TURNS", 5),
		InputTimeout:    envDurationOr("INPUT_TIMEOUT", 20*time.Second),

		ModeProfilesPath: os.Getenv("MODE_PROFILES_FILE"),
		ToolServersPath:  os.Getenv("MCP_SERVERS_FILE"),
		ToolSchemasPath:  os.Getenv("TOOL_SCHEMAS_FILE"),
		RejectionDir:     envOr("REJECTION_REPORTS_DIR", "./rejections"),
	}
}

func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOr(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envDurationOr(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
