// Package sharedctx provides SharedContext and MapState: the orchestrator's
// explicitly injected, session-scoped mutable collaborators. Neither is a
// process-wide singleton — each orchestrator session constructs its own and
// passes it to the agents and dispatcher post-processing hooks that need it,
// per the design note that global mutable state must be explicit and
// session-scoped rather than ambient.
package sharedctx

import "sync"

// SharedContext holds state that accumulates across a session: recently
// touched filesystem paths, free-form variables the agents have decided to
// remember, and the active goal. It is initialized once per session,
// mutated by agents, and read on every prompt assembly; it is never
// persisted across sessions.
//
// Mutations are guarded by a short-lived lock; Snapshot returns a defensive
// copy so readers never observe a write in progress and never alias the
// live map.
type SharedContext struct {
	mu          sync.Mutex
	goal        string
	recentPaths []string
	variables   map[string]any
}

// New constructs an empty SharedContext for one orchestrator session.
func New() *SharedContext {
	return &SharedContext{variables: make(map[string]any)}
}

// SetGoal records the session's active goal.
func (c *SharedContext) SetGoal(goal string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.goal = goal
}

// Goal returns the session's active goal.
func (c *SharedContext) Goal() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.goal
}

// RememberPath appends path to the recently touched path list, keeping at
// most the last limit entries.
func (c *SharedContext) RememberPath(path string, limit int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recentPaths = append(c.recentPaths, path)
	if limit > 0 && len(c.recentPaths) > limit {
		c.recentPaths = c.recentPaths[len(c.recentPaths)-limit:]
	}
}

// RecentPaths returns a copy of the recently touched path list.
func (c *SharedContext) RecentPaths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.recentPaths...)
}

// SetVariable stores a free-form variable under key.
func (c *SharedContext) SetVariable(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.variables[key] = value
}

// Variable retrieves the variable stored under key.
func (c *SharedContext) Variable(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.variables[key]
	return v, ok
}

// Snapshot is a read-only, defensively copied view of a SharedContext handed
// to agents assembling a prompt; it never aliases the live context so
// agents cannot mutate session state by holding onto a snapshot.
type Snapshot struct {
	Goal        string
	RecentPaths []string
	Variables   map[string]any
}

// Snapshot returns a defensive copy of the current context state.
func (c *SharedContext) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	vars := make(map[string]any, len(c.variables))
	for k, v := range c.variables {
		vars[k] = v
	}
	return Snapshot{
		Goal:        c.goal,
		RecentPaths: append([]string(nil), c.recentPaths...),
		Variables:   vars,
	}
}
