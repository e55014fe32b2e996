package config

import (
	"encoding/json"
	"fmt"
	"os"

	"trinity.dev/orchestrator/internal/modeprofile"
)

// LoadModeProfiles reads the mode profiles file (spec §6) into a
// modeprofile.DefaultRegistry. The file is a JSON object keyed by mode name
// (e.g. "task", "deep_chat") whose values mirror modeprofile.Defaults'
// fields; any mode absent from the file keeps StandardRegistry's built-in
// default rather than being left zero-valued, so an operator's file only
// needs to override what it actually changes.
func LoadModeProfiles(path string) (modeprofile.DefaultRegistry, error) {
	registry := modeprofile.StandardRegistry()
	if path == "" {
		return registry, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read mode profiles file: %w", err)
	}

	var overrides map[modeprofile.Mode]modeprofile.Defaults
	if err := json.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("config: parse mode profiles file: %w", err)
	}
	for mode, defaults := range overrides {
		registry[mode] = defaults
	}
	return registry, nil
}
