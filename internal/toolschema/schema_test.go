package toolschema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *Registry {
	schemas := map[string]ToolSchema{
		"execute_command": {
			Server:   "terminal",
			Required: []string{"command"},
			Optional: []string{"cwd", "timeout"},
			Types:    map[string]string{"command": "string", "cwd": "string", "timeout": "number"},
		},
		"bash": {AliasFor: "execute_command"},
		"read_file": {
			Server:   "filesystem",
			Required: []string{"path"},
		},
	}
	catalog := map[string]ServerCatalogEntry{
		"terminal":   {Name: "terminal", Tier: 1, Description: "run shell commands", KeyTools: []string{"execute_command"}},
		"filesystem": {Name: "filesystem", Tier: 1, Description: "read and write files", KeyTools: []string{"read_file"}},
	}
	return New(schemas, catalog)
}

func TestGetToolSchemaResolvesOneHopAlias(t *testing.T) {
	r := testRegistry()
	s, ok := r.GetToolSchema("bash")
	require.True(t, ok)
	assert.Equal(t, "terminal", s.Server)
	assert.Equal(t, []string{"command"}, s.Required)
}

func TestGetServerForToolUnknown(t *testing.T) {
	r := testRegistry()
	_, ok := r.GetServerForTool("does_not_exist")
	assert.False(t, ok)
}

func TestGetServerForToolConsistentWithSchema(t *testing.T) {
	// spec §8 property 5: get_server_for_tool is referentially consistent
	// with TOOL_SCHEMAS[t].server after alias resolution.
	r := testRegistry()
	server, ok := r.GetServerForTool("bash")
	require.True(t, ok)
	schema, ok := r.GetToolSchema("bash")
	require.True(t, ok)
	assert.Equal(t, schema.Server, server)
}

func TestValidateToolCallUnknownToolNeverRejected(t *testing.T) {
	r := testRegistry()
	res := r.ValidateToolCall("nonexistent", map[string]any{})
	assert.True(t, res.OK)
	assert.True(t, res.Unknown)
}

func TestValidateToolCallMissingRequired(t *testing.T) {
	r := testRegistry()
	res := r.ValidateToolCall("execute_command", map[string]any{"cwd": "/tmp"})
	assert.False(t, res.OK)
	assert.Equal(t, []string{"command"}, res.Missing)
}

func TestValidateToolCallUnchangedUnderKeyPermutation(t *testing.T) {
	r := testRegistry()
	a := map[string]any{"command": "ls", "cwd": "/tmp", "timeout": 5}
	b := map[string]any{"timeout": 5, "command": "ls", "cwd": "/tmp"}
	assert.Equal(t, r.ValidateToolCall("execute_command", a), r.ValidateToolCall("execute_command", b))
}

func TestGetToolNamesForServerSorted(t *testing.T) {
	r := testRegistry()
	names := r.GetToolNamesForServer("terminal")
	assert.Equal(t, []string{"bash", "execute_command"}, names)
}

func TestGetServerCatalogForPromptGroupsByTier(t *testing.T) {
	r := testRegistry()
	out := r.GetServerCatalogForPrompt(true)
	assert.Contains(t, out, "Tier 1:")
	assert.Contains(t, out, "execute_command")
}

func TestHitMissCounters(t *testing.T) {
	r := testRegistry()
	r.GetToolSchema("execute_command")
	r.GetToolSchema("execute_command")
	r.GetToolSchema("nonexistent")
	hits, misses := r.HitMiss()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCompilePayloadSchemasValidatesPayload(t *testing.T) {
	raw := map[string]json.RawMessage{
		"execute_command": json.RawMessage(`{
			"type": "object",
			"properties": {"command": {"type": "string"}},
			"required": ["command"]
		}`),
	}
	schemas, err := CompilePayloadSchemas(raw)
	require.NoError(t, err)

	err = schemas.Validate("execute_command", map[string]any{"command": "ls"})
	assert.NoError(t, err)

	err = schemas.Validate("execute_command", map[string]any{})
	assert.Error(t, err)

	// No schema registered for this tool: advisory check is a no-op.
	assert.NoError(t, schemas.Validate("read_file", map[string]any{}))
}
