// Package strategist implements the Strategist (Agent A): the Trinity
// member responsible for classifying requests, building plans, assessing
// Auditor critique, helping a stuck Executor, deciding on the user's behalf
// after a silent-answer timeout, and issuing the authoritative final
// verdict on a completed task (spec §4.6).
package strategist

import (
	"context"

	"trinity.dev/orchestrator/internal/llm"
	"trinity.dev/orchestrator/internal/memory"
	"trinity.dev/orchestrator/internal/modeprofile"
	"trinity.dev/orchestrator/internal/plan"
	"trinity.dev/orchestrator/internal/telemetry"
	"trinity.dev/orchestrator/internal/toolschema"
	"trinity.dev/orchestrator/runtime/agent/model"
)

// ClassificationBlob is analyze_request's output (spec §4.6): the minimum
// fields the Mode Router needs to build a Profile, plus the Strategist's own
// enrichment of the raw request text.
type ClassificationBlob struct {
	Mode            string
	Reason          string
	EnrichedRequest string
	Complexity      string
	UseDeepPersona  bool
	VoiceResponse   string
	Profile         modeprofile.Profile
}

// CritiqueAction is assess_plan_critique's verdict.
type CritiqueAction string

const (
	ActionAccept  CritiqueAction = "ACCEPT"
	ActionDispute CritiqueAction = "DISPUTE"
)

// CritiqueDecision is the Strategist's response to an Auditor plan
// rejection (spec §4.6 assess_plan_critique).
type CritiqueDecision struct {
	Action     CritiqueAction
	Argument   string
	Confidence float64
}

// RecoverySuggestion is help_tetyana's output: either a direct fix to try
// or a description of an alternative approach for the Executor to take.
type RecoverySuggestion struct {
	FixToolCall  *plan.ToolCall
	Alternative  string
	RejectionRef string
}

// ExecutionEvaluation is evaluate_execution's verdict, the authoritative
// close-out of a Trinity run (spec §4.6, §4.9 step d).
type ExecutionEvaluation struct {
	Achieved      bool
	QualityScore  float64
	ShouldRemember bool
	FinalReport   string
}

// Strategist implements the six externally callable operations of spec
// §4.6. Every LLM call goes through the narrow llm.Complete helper over a
// model.Client, never a concrete provider SDK.
type Strategist struct {
	client   model.Client
	registry modeprofile.DefaultRegistry
	mem      memory.Store
	catalog  *toolschema.Registry
	tel      telemetry.Set

	// artifacts checks whether a claimed file path exists on disk, used by
	// evaluate_execution's artifact-verification override. Swappable in
	// tests; defaults to osArtifactChecker.
	artifacts ArtifactChecker
}

// Option configures a Strategist at construction time.
type Option func(*Strategist)

// WithArtifactChecker overrides the default filesystem-backed
// ArtifactChecker, primarily for tests.
func WithArtifactChecker(c ArtifactChecker) Option {
	return func(s *Strategist) { s.artifacts = c }
}

// New constructs a Strategist. client drives every LLM call; registry
// supplies the Mode Router's static defaults; mem is the long-term
// memory/knowledge-graph collaborator; catalog renders the server catalog
// injected into plan-synthesis prompts.
func New(client model.Client, registry modeprofile.DefaultRegistry, mem memory.Store, catalog *toolschema.Registry, tel telemetry.Set, opts ...Option) *Strategist {
	s := &Strategist{
		client: client, registry: registry, mem: mem, catalog: catalog, tel: tel,
		artifacts: osArtifactChecker{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// complete is a small convenience wrapper around llm.Complete that tags
// errors with the calling operation for logging.
func (s *Strategist) complete(ctx context.Context, op string, req llm.CompletionRequest) (string, error) {
	out, err := llm.Complete(ctx, s.client, req)
	if err != nil {
		s.tel.Log.Warn(ctx, "strategist llm call failed", "op", op, "error", err.Error())
		return "", err
	}
	return out, nil
}

// buildProfile is the one path through which a ClassificationBlob's mode
// becomes a full Profile — it always goes through the Mode Router's Build,
// never constructs a Profile ad hoc.
func (s *Strategist) buildProfile(blob ClassificationBlob) modeprofile.Profile {
	return s.registry.Build(modeprofile.Analysis{
		Mode:           blob.Mode,
		UseDeepPersona: blob.UseDeepPersona,
	})
}
