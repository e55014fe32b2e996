package dispatch

import (
	"os"
	"path/filepath"
	"strconv"

	"trinity.dev/orchestrator/internal/toolschema"
)

// repairArgNames rewrites commonly misnamed argument keys to the names the
// backing tool schema actually expects (spec §4.3 step 5).
func repairArgNames(args map[string]any) map[string]any {
	if len(args) == 0 {
		return args
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if repaired, ok := argNameRepairs[k]; ok {
			out[repaired] = v
			continue
		}
		out[k] = v
	}
	return out
}

// autoFillSynonyms fills a still-missing required argument from a synonym
// key present in args (spec §4.3 step 8).
func autoFillSynonyms(args map[string]any, registry *toolschema.Registry, tool string) map[string]any {
	schema, ok := registry.GetToolSchema(tool)
	if !ok {
		return args
	}
	out := cloneArgs(args)
	for _, req := range schema.Required {
		if _, present := out[req]; present {
			continue
		}
		if synonym, ok := argAutoFillSynonyms[req]; ok {
			if v, present := out[synonym]; present {
				out[req] = v
			}
		}
	}
	return out
}

func cloneArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args)+1)
	for k, v := range args {
		out[k] = v
	}
	return out
}

// normalizeForServer applies the per-server argument normalization rules
// from spec §4.3 step 5: merging cwd into a command string, coercing known
// numeric/boolean-looking values, and injecting context the backing tool
// needs but the caller did not supply.
func normalizeForServer(server, tool string, args map[string]any) map[string]any {
	switch server {
	case serverForKind[KindTerminal]:
		return mergeCwdIntoCommand(args)
	case serverForKind[KindVibe]:
		return applyVibeDefaults(args)
	default:
		return coerceTypes(args)
	}
}

// mergeCwdIntoCommand chains `cd {path} && {cmd}` when the terminal tool
// lacks a native working-directory parameter (spec §4.3 step 5).
func mergeCwdIntoCommand(args map[string]any) map[string]any {
	cwd, hasCwd := args["cwd"].(string)
	cmd, hasCmd := args["command"].(string)
	if !hasCwd || !hasCmd || cwd == "" {
		return coerceTypes(args)
	}
	out := cloneArgs(args)
	delete(out, "cwd")
	out["command"] = "cd " + cwd + " && " + cmd
	return coerceTypes(out)
}

// applyVibeDefaults always sets cwd absolute, ensures the directory exists,
// and applies the long Vibe timeout default (spec §4.3 "Vibe tool" policy).
func applyVibeDefaults(args map[string]any) map[string]any {
	out := cloneArgs(args)
	cwd, _ := out["cwd"].(string)
	if cwd == "" {
		cwd, _ = os.Getwd()
	}
	if abs, err := filepath.Abs(cwd); err == nil {
		cwd = abs
	}
	_ = os.MkdirAll(cwd, 0o755)
	out["cwd"] = cwd
	if _, ok := out["timeout"]; !ok {
		out["timeout"] = int64(60 * 60) // seconds; VibeTimeout mirrored here as plain data
	}
	return out
}

// coerceTypes converts numeric- and boolean-looking strings to their
// natural Go types, mirroring the query-parameter coercion the teacher
// applies at its HTTP boundary, adapted here to tool-call arguments (spec
// §4.3 step 8: "type-coerce according to the schema").
func coerceTypes(args map[string]any) map[string]any {
	if len(args) == 0 {
		return args
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		s, ok := v.(string)
		if !ok {
			out[k] = v
			continue
		}
		out[k] = coerceString(s)
	}
	return out
}

func coerceString(s string) any {
	if s == "" {
		return s
	}
	if s == "true" {
		return true
	}
	if s == "false" {
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
