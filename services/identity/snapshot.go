package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Snapshot is the raw auth payload stored for a subject at a version
type Snapshot struct {
	Subject  string          `json:"subject"`
	Version  string          `json:"version"`
	Payload  json.RawMessage `json:"payload"`
	StoredAt time.Time       `json:"stored_at"`
}

// SnapshotStore shares identity snapshots between gateway instances
type SnapshotStore interface {
	// Get returns nil and no error when the subject has no snapshot
	Get(ctx context.Context, subject string) (*Snapshot, error)
	Put(ctx context.Context, snapshot *Snapshot) error
	Delete(ctx context.Context, subject string) error
}

// RedisSnapshotStore keeps snapshots under <prefix>:identity:<subject>
type RedisSnapshotStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisSnapshotStore creates a store. A zero ttl keeps snapshots until
// they are deleted.
func NewRedisSnapshotStore(client redis.Cmdable, prefix string, ttl time.Duration) *RedisSnapshotStore {
	return &RedisSnapshotStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisSnapshotStore) key(subject string) string {
	if s.prefix == "" {
		return "identity:" + subject
	}
	return s.prefix + ":identity:" + subject
}

// Get loads the snapshot for subject
func (s *RedisSnapshotStore) Get(ctx context.Context, subject string) (*Snapshot, error) {
	data, err := s.client.Get(ctx, s.key(subject)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snapshot, nil
}

// Put stores the snapshot, replacing any previous version
func (s *RedisSnapshotStore) Put(ctx context.Context, snapshot *Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key(snapshot.Subject), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Delete removes the snapshot for subject
func (s *RedisSnapshotStore) Delete(ctx context.Context, subject string) error {
	if err := s.client.Del(ctx, s.key(subject)).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// HealthCheck pings the backing server
func (s *RedisSnapshotStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
