package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trinity.dev/orchestrator/internal/plan"
)

// Checkpoint is the durable record the Orchestrator persists after every
// step, enough to resume a session from its last completed step on
// restart (spec §4.9 "Checkpoint after every step... if a restart_pending
// flag is set, resume from last checkpoint").
type Checkpoint struct {
	SessionID      string            `json:"session_id"`
	TaskID         string            `json:"task_id"`
	State          State             `json:"state"`
	Plan           plan.TaskPlan     `json:"plan"`
	Results        []plan.StepResult `json:"results"`
	NextStepIndex  int               `json:"next_step_index"`
	RestartPending bool              `json:"restart_pending"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// CheckpointStore persists and retrieves Checkpoints keyed by session id.
type CheckpointStore interface {
	Save(ctx context.Context, cp Checkpoint) error
	Load(ctx context.Context, sessionID string) (Checkpoint, bool, error)
}

// RedisCheckpointStore is grounded on the teacher registry's pattern of
// storing JSON-marshaled values under a single rdb.Set/Get call with a TTL,
// rather than the hash-map health-tracker variant (a checkpoint has no
// per-field access pattern worth a hash).
type RedisCheckpointStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCheckpointStore constructs a store over rdb. ttl of zero disables
// expiry (checkpoints live until overwritten or explicitly cleared).
func NewRedisCheckpointStore(rdb *redis.Client, ttl time.Duration) *RedisCheckpointStore {
	return &RedisCheckpointStore{rdb: rdb, ttl: ttl, prefix: "trinity:checkpoint:"}
}

func (s *RedisCheckpointStore) key(sessionID string) string { return s.prefix + sessionID }

// Save marshals cp and writes it under the session's key.
func (s *RedisCheckpointStore) Save(ctx context.Context, cp Checkpoint) error {
	cp.UpdatedAt = time.Now()
	payload, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(cp.SessionID), payload, s.ttl).Err()
}

// Load reads and unmarshals the checkpoint for sessionID. Returns
// found=false, no error, when no checkpoint exists (redis.Nil).
func (s *RedisCheckpointStore) Load(ctx context.Context, sessionID string) (Checkpoint, bool, error) {
	raw, err := s.rdb.Get(ctx, s.key(sessionID)).Result()
	if err == redis.Nil {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, err
	}
	var cp Checkpoint
	if err := json.Unmarshal([]byte(raw), &cp); err != nil {
		return Checkpoint{}, false, err
	}
	return cp, true, nil
}

// InMemoryCheckpointStore is the no-backend fallback, grounded on the same
// map-plus-mutex pattern as internal/memory.InMemory: used when no Redis
// connection is configured (tests, single-process runs without durability).
type InMemoryCheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]Checkpoint
}

// NewInMemoryCheckpointStore constructs an empty in-process store.
func NewInMemoryCheckpointStore() *InMemoryCheckpointStore {
	return &InMemoryCheckpointStore{checkpoints: make(map[string]Checkpoint)}
}

// Save stores a defensive copy of cp keyed by its SessionID.
func (s *InMemoryCheckpointStore) Save(_ context.Context, cp Checkpoint) error {
	cp.UpdatedAt = time.Now()
	cp.Results = append([]plan.StepResult(nil), cp.Results...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[cp.SessionID] = cp
	return nil
}

// Load returns the stored checkpoint for sessionID, if any.
func (s *InMemoryCheckpointStore) Load(_ context.Context, sessionID string) (Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[sessionID]
	return cp, ok, nil
}
