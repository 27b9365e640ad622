package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tripwise/server/internal/agent/model"
	errx "github.com/tripwise/server/internal/core/error"
	logx "github.com/tripwise/server/pkg/logger"
)

// StateRepository persists one ConversationState document per thread.
type StateRepository interface {
	Load(ctx context.Context, threadID string) (*model.ConversationState, error)
	Save(ctx context.Context, state *model.ConversationState) error
	Delete(ctx context.Context, threadID string) error
}

// ErrStateNotFound reports a thread with no persisted state. Callers treat
// it as "start fresh", not as a failure.
var ErrStateNotFound = errx.New(fmt.Errorf("state not found"), 404, errx.RedisNotFoundMessage)

type RedisStateRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisStateRepository(rdb redis.Cmdable, ttl time.Duration) *RedisStateRepository {
	return &RedisStateRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisStateRepository) stateKey(threadID string) string {
	return fmt.Sprintf("thread:%s:state", threadID)
}

func (r *RedisStateRepository) Load(ctx context.Context, threadID string) (*model.ConversationState, error) {
	key := r.stateKey(threadID)
	raw, err := r.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrStateNotFound
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load thread state from redis")
		return nil, errx.WrapRedis(err)
	}
	var state model.ConversationState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		logx.Error().Err(err).Str("threadID", threadID).Msg("failed to unmarshal thread state")
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &state, nil
}

func (r *RedisStateRepository) Save(ctx context.Context, state *model.ConversationState) error {
	if state == nil || state.ThreadID == "" {
		return fmt.Errorf("save state: missing thread id")
	}
	b, err := json.Marshal(state)
	if err != nil {
		logx.Error().Err(err).Str("threadID", state.ThreadID).Msg("failed to marshal thread state")
		return fmt.Errorf("marshal state: %w", err)
	}
	key := r.stateKey(state.ThreadID)
	if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save thread state to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisStateRepository) Delete(ctx context.Context, threadID string) error {
	key := r.stateKey(threadID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete thread state from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ StateRepository = (*RedisStateRepository)(nil)

// MemoryStateRepository keeps states in-process. Used when no Redis URL is
// configured and in tests.
type MemoryStateRepository struct {
	mu     sync.Mutex
	states map[string][]byte
}

func NewMemoryStateRepository() *MemoryStateRepository {
	return &MemoryStateRepository{states: make(map[string][]byte)}
}

func (r *MemoryStateRepository) Load(ctx context.Context, threadID string) (*model.ConversationState, error) {
	r.mu.Lock()
	raw, ok := r.states[threadID]
	r.mu.Unlock()
	if !ok {
		return nil, ErrStateNotFound
	}
	var state model.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &state, nil
}

func (r *MemoryStateRepository) Save(ctx context.Context, state *model.ConversationState) error {
	if state == nil || state.ThreadID == "" {
		return fmt.Errorf("save state: missing thread id")
	}
	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	r.mu.Lock()
	r.states[state.ThreadID] = b
	r.mu.Unlock()
	return nil
}

func (r *MemoryStateRepository) Delete(ctx context.Context, threadID string) error {
	r.mu.Lock()
	delete(r.states, threadID)
	r.mu.Unlock()
	return nil
}

var _ StateRepository = (*MemoryStateRepository)(nil)
