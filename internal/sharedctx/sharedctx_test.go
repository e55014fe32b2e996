package sharedctx

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSharedContextSnapshotIsDefensiveCopy(t *testing.T) {
	c := New()
	c.SetGoal("deploy the service")
	c.RememberPath("/tmp/a", 10)
	c.SetVariable("target_host", "prod-1")

	snap := c.Snapshot()
	snap.RecentPaths[0] = "mutated"
	snap.Variables["target_host"] = "mutated"

	assert.Equal(t, []string{"/tmp/a"}, c.RecentPaths())
	v, _ := c.Variable("target_host")
	assert.Equal(t, "prod-1", v)
}

func TestSharedContextRememberPathRespectsLimit(t *testing.T) {
	c := New()
	for i := 0; i < 5; i++ {
		c.RememberPath("p", 3)
	}
	assert.Len(t, c.RecentPaths(), 3)
}

func TestSharedContextConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.SetVariable("k", n)
			_ = c.Snapshot()
		}(i)
	}
	wg.Wait()
}

func TestMapStateRecordsLatestRoute(t *testing.T) {
	m := NewMapState()
	_, ok := m.LastRoute()
	assert.False(t, ok)

	m.RecordRoute(Route{Origin: "A", Destination: "B", DistanceKm: 5})
	r, ok := m.LastRoute()
	assert.True(t, ok)
	assert.Equal(t, "B", r.Destination)
}
