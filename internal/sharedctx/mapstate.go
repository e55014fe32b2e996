package sharedctx

import "sync"

// Route is the last-known directions/distance result recorded by a maps
// tool call, kept for any UI or voice channel that wants to reference "the
// last route" without re-issuing the tool call.
type Route struct {
	Origin      string
	Destination string
	DistanceKm  float64
	DurationMin float64
}

// MapState is the collaborator state updated as a side effect of maps-tool
// responses (spec §4.3 post-processing hook, §5 "readers are frontend UIs,
// out of core"). It is session-scoped and injected like SharedContext, never
// a process-wide singleton.
type MapState struct {
	mu         sync.Mutex
	lastRoute  *Route
	lastCenter string
}

// NewMapState constructs an empty MapState for one orchestrator session.
func NewMapState() *MapState { return &MapState{} }

// RecordRoute stores the most recent directions/distance result. Called by
// the Dispatcher's post-processing hook after a maps tool call returns
// successfully.
func (m *MapState) RecordRoute(r Route) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRoute = &r
}

// LastRoute returns the most recently recorded route, if any.
func (m *MapState) LastRoute() (Route, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastRoute == nil {
		return Route{}, false
	}
	return *m.lastRoute, true
}

// RecordCenter stores the most recently geocoded or focused location name.
func (m *MapState) RecordCenter(location string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCenter = location
}

// LastCenter returns the most recently recorded location name.
func (m *MapState) LastCenter() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCenter
}
