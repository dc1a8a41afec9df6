package dedup

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/ppiankov/prospector/internal/model"
	"github.com/ppiankov/prospector/internal/normalize"
)

// RedisClient is the subset of go-redis used by RedisStore
type RedisClient interface {
	SAdd(ctx context.Context, key string, members ...interface{}) (int64, error)
	Close() error
}

type redisClient struct {
	client *redis.Client
}

// NewRedisClient connects to a Redis server at addr ("host:port")
func NewRedisClient(addr string) RedisClient {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &redisClient{client: rdb}
}

func (r *redisClient) SAdd(ctx context.Context, key string, members ...interface{}) (int64, error) {
	return r.client.SAdd(ctx, key, members...).Result()
}

func (r *redisClient) Close() error {
	return r.client.Close()
}

// RedisStore keeps identities in a Redis set so they survive across runs.
// SADD is the atomic compare-and-insert; records admitted by this process are
// kept locally for persistence.
type RedisStore struct {
	client RedisClient
	setKey string

	mu      sync.Mutex
	records []model.ContactRecord
}

// NewRedisStore creates a store backed by the set at setKey
func NewRedisStore(client RedisClient, setKey string) *RedisStore {
	if setKey == "" {
		setKey = "prospector:contacts"
	}
	return &RedisStore{
		client: client,
		setKey: setKey,
	}
}

// Admit adds the record's identity to the Redis set; 1 new member means accepted
func (s *RedisStore) Admit(ctx context.Context, rec model.ContactRecord) (Outcome, error) {
	key, ok := normalize.DedupKey(rec)
	if !ok {
		return Duplicate, ErrNoIdentity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	added, err := s.client.SAdd(ctx, s.setKey, key)
	if err != nil {
		return Duplicate, fmt.Errorf("redis sadd: %w", err)
	}
	if added == 0 {
		return Duplicate, nil
	}
	s.records = append(s.records, rec)
	return Accepted, nil
}

// Snapshot returns a copy of the records accepted by this process
func (s *RedisStore) Snapshot() []model.ContactRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ContactRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of records accepted by this process
func (s *RedisStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Close releases the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
