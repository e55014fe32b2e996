package modeprofile

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestBuildProfileIdempotentProperty verifies the round-trip law from spec
// §8: build_profile(build_profile(x).to_dict()) ≡ build_profile(x). Since a
// Profile's mode and deep-persona flag fully determine a re-Build, feeding a
// Profile's own fields back through Analysis must reproduce it.
func TestBuildProfileIdempotentProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	modes := []string{"chat", "deep_chat", "solo_task", "task", "development", "recall", "status"}

	properties.Property("build is idempotent under its own serialization", prop.ForAll(
		func(modeIdx int, extra []string) bool {
			reg := StandardRegistry()
			mode := modes[modeIdx%len(modes)]

			first := reg.Build(Analysis{Mode: mode, ExtraServers: extra})
			second := reg.Build(Analysis{
				Mode:           string(first.Mode),
				ExtraServers:   first.Servers,
				ExtraProtocols: first.Protocols,
				UseDeepPersona: first.UseDeepPersona,
			})

			return profilesEqual(first, second)
		},
		gen.IntRange(0, len(modes)-1),
		gen.SliceOfN(2, gen.OneConstOf("github", "terminal", "filesystem")),
	))

	properties.TestingRun(t)
}

func profilesEqual(a, b Profile) bool {
	if a.Mode != b.Mode || a.LLMTier != b.LLMTier || a.ToolsAccess != b.ToolsAccess {
		return false
	}
	if len(a.Servers) != len(b.Servers) || len(a.Protocols) != len(b.Protocols) {
		return false
	}
	for i := range a.Servers {
		if a.Servers[i] != b.Servers[i] {
			return false
		}
	}
	for i := range a.Protocols {
		if a.Protocols[i] != b.Protocols[i] {
			return false
		}
	}
	return true
}
