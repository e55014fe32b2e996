package modeprofile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseModeSynonyms(t *testing.T) {
	cases := map[string]Mode{
		"dev":       ModeDevelopment,
		"coding":    ModeDevelopment,
		"deepchat":  ModeDeepChat,
		"solo":      ModeSoloTask,
		"solotask":  ModeSoloTask,
		"TASK":      ModeTask,
		"unknown_x": "",
	}
	for raw, want := range cases {
		assert.Equal(t, want, ParseMode(raw), "raw=%q", raw)
	}
}

func TestBuildAutoUpgradesChatToDeepChat(t *testing.T) {
	reg := StandardRegistry()
	p := reg.Build(Analysis{Mode: "chat", UseDeepPersona: true})
	assert.Equal(t, ModeDeepChat, p.Mode)
}

func TestBuildMergesExtraServersDeduplicated(t *testing.T) {
	reg := StandardRegistry()
	p := reg.Build(Analysis{
		Mode:         "task",
		ExtraServers: []string{"terminal", "github"},
	})
	assert.Equal(t, []string{"terminal", "filesystem", "browser", "github"}, p.Servers)
}

func TestBuildUnknownModeFallsBackToChat(t *testing.T) {
	reg := StandardRegistry()
	p := reg.Build(Analysis{Mode: "not-a-real-mode"})
	assert.Equal(t, ModeChat, p.Mode)
}

func TestFallbackClassifyRules(t *testing.T) {
	cases := []struct {
		request string
		want    Mode
	}{
		{"fix this bug in the repo", ModeDevelopment},
		{"open TextEdit", ModeTask},
		{"hi there", ModeChat},
		{"please carefully go through every single file inside the project directory and check it for any issues today", ModeTask},
		{"which coffee shop is closest?", ModeSoloTask},
	}
	for _, c := range cases {
		got := FallbackClassify(c.request)
		assert.Equal(t, string(c.want), got.Mode, "request=%q", c.request)
	}
}
