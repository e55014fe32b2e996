package config

import (
	"encoding/json"
	"fmt"
	"os"

	"trinity.dev/orchestrator/internal/toolschema"
)

// toolSchemaDoc is the on-disk shape of the tool schema file (spec §6): a
// "tools" map of tool name to ToolSchema and a "catalog" map of server name
// to ServerCatalogEntry, loaded once into an immutable toolschema.Registry.
type toolSchemaDoc struct {
	Tools   map[string]toolschema.ToolSchema        `json:"tools"`
	Catalog map[string]toolschema.ServerCatalogEntry `json:"catalog"`
}

// LoadToolSchemas reads the tool schema file into a *toolschema.Registry.
func LoadToolSchemas(path string) (*toolschema.Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read tool schemas file: %w", err)
	}

	var doc toolSchemaDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parse tool schemas file: %w", err)
	}
	return toolschema.New(doc.Tools, doc.Catalog), nil
}
