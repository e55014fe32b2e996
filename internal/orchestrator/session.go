package orchestrator

import "trinity.dev/orchestrator/internal/sharedctx"

// Session holds the mutable state one Orchestrator.Run call threads through
// every segment it dispatches: the shared map/variable context (spec §4.4)
// and a handle back to its own id for checkpointing and bus scoping.
type Session struct {
	id  string
	ctx *sharedctx.SharedContext
}

// newSession constructs a Session with a fresh SharedContext.
func newSession(id string) *Session {
	return &Session{id: id, ctx: sharedctx.New()}
}
