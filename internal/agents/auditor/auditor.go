// Package auditor implements the Auditor (Agent G): the Trinity's
// verification role. It never acts on the world itself — every judgment it
// reaches is formed by prompting a "sequential-thinking" reasoning pass over
// the LLM client and, for verify_step, by issuing its own evidence-gathering
// tool calls through the Dispatcher. Its two externally-callable operations,
// verify_plan and verify_step, are implemented in plan.go and step.go
// respectively (spec §4.8); this file holds the shared struct, constructor,
// and the destructive-command blocklist both operations defer to.
package auditor

import (
	"context"
	"strings"

	"trinity.dev/orchestrator/internal/bus"
	"trinity.dev/orchestrator/internal/dispatch"
	"trinity.dev/orchestrator/internal/llm"
	"trinity.dev/orchestrator/internal/memory"
	"trinity.dev/orchestrator/internal/telemetry"
	"trinity.dev/orchestrator/runtime/agent/model"
)

// Dispatcher abstracts the subset of internal/dispatch.Dispatcher the
// Auditor needs for verify_step's evidence-collection phase.
type Dispatcher interface {
	ResolveAndDispatch(ctx context.Context, tool string, args map[string]any, explicitServer string) dispatch.Result
}

// RejectionWriter abstracts the filesystem side of "write a structured
// rejection report... to the filesystem as markdown" (spec §4.8 step 5).
// Out of scope beyond the interface: no concrete backend ships here, tests
// substitute an in-memory fake.
type RejectionWriter interface {
	WriteRejectionReport(taskID, stepID, markdown string) error
}

// Auditor is the verification role of the Trinity.
type Auditor struct {
	client     model.Client
	dispatcher Dispatcher
	mem        memory.Store
	messageBus bus.Bus
	reports    RejectionWriter
	tel        telemetry.Set
}

// Option configures optional Auditor collaborators.
type Option func(*Auditor)

// WithRejectionReports wires a filesystem-backed rejection report writer.
// Without this option, rejection reports are only written to memory and the
// bus, never to disk.
func WithRejectionReports(w RejectionWriter) Option {
	return func(a *Auditor) { a.reports = w }
}

// New constructs an Auditor over client (for sequential-thinking prompts),
// dispatcher (for verify_step's evidence collection), mem (for rejection
// history and recall), and messageBus (for publishing rejections to the
// Executor).
func New(client model.Client, dispatcher Dispatcher, mem memory.Store, messageBus bus.Bus, tel telemetry.Set, opts ...Option) *Auditor {
	a := &Auditor{client: client, dispatcher: dispatcher, mem: mem, messageBus: messageBus, tel: tel}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// complete is the shared sequential-thinking LLM call every Auditor phase
// routes through, so call sites only name the operation label for logging.
func (a *Auditor) complete(ctx context.Context, op string, req llm.CompletionRequest) (string, error) {
	text, err := llm.Complete(ctx, a.client, req)
	if err != nil {
		a.tel.Log.Error(ctx, "auditor completion failed", "op", op, "err", err)
		return "", err
	}
	return text, nil
}

// destructivePatterns is the static blocklist of destructive shell command
// substrings that short-circuits any safety check to {safe:false,
// risk_level:critical} regardless of what a reasoning pass would otherwise
// conclude (spec §4.8 "Blocklist").
var destructivePatterns = []string{
	"rm -rf /",
	"rm -rf ~",
	"rm -rf *",
	"mkfs",
	":(){:|:&};:",
	"dd if=/dev/zero",
	"dd if=/dev/random of=/dev/sda",
	"> /dev/sda",
	"chmod -r 777 /",
	"chown -r",
}

// isBlocklisted reports whether command contains a statically known
// destructive pattern.
func isBlocklisted(command string) (string, bool) {
	lower := strings.ToLower(command)
	for _, pattern := range destructivePatterns {
		if strings.Contains(lower, pattern) {
			return pattern, true
		}
	}
	return "", false
}
