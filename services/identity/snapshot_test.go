package identity

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisSnapshotStore_PutGet(t *testing.T) {
	mr, client := newRedis(t)
	store := NewRedisSnapshotStore(client, "risk", 10*time.Minute)
	ctx := context.Background()

	snapshot := &Snapshot{
		Subject:  "sub-1",
		Version:  "1700000000.0",
		Payload:  json.RawMessage(`{"roles":[{"slug":"users","permissions":[{"slug":"view-dashboard"}]}]}`),
		StoredAt: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Put(ctx, snapshot))

	assert.True(t, mr.Exists("risk:identity:sub-1"))
	assert.Equal(t, 10*time.Minute, mr.TTL("risk:identity:sub-1"))

	got, err := store.Get(ctx, "sub-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snapshot.Version, got.Version)
	assert.JSONEq(t, string(snapshot.Payload), string(got.Payload))
	assert.True(t, snapshot.StoredAt.Equal(got.StoredAt))
}

func TestRedisSnapshotStore_Missing(t *testing.T) {
	_, client := newRedis(t)
	store := NewRedisSnapshotStore(client, "", time.Minute)

	got, err := store.Get(context.Background(), "nobody")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisSnapshotStore_Expiry(t *testing.T) {
	mr, client := newRedis(t)
	store := NewRedisSnapshotStore(client, "risk", time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Snapshot{Subject: "sub-1", Version: "1.0", Payload: json.RawMessage(`{}`)}))
	mr.FastForward(2 * time.Minute)

	got, err := store.Get(ctx, "sub-1")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisSnapshotStore_Delete(t *testing.T) {
	mr, client := newRedis(t)
	store := NewRedisSnapshotStore(client, "", 0)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Snapshot{Subject: "sub-1", Version: "1.0", Payload: json.RawMessage(`{}`)}))
	assert.True(t, mr.Exists("identity:sub-1"))

	require.NoError(t, store.Delete(ctx, "sub-1"))
	assert.False(t, mr.Exists("identity:sub-1"))

	// deleting a missing key is not an error
	assert.NoError(t, store.Delete(ctx, "sub-1"))
}

func TestRedisSnapshotStore_CorruptValue(t *testing.T) {
	mr, client := newRedis(t)
	store := NewRedisSnapshotStore(client, "risk", time.Minute)
	require.NoError(t, mr.Set("risk:identity:sub-1", "not json"))

	_, err := store.Get(context.Background(), "sub-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode snapshot")
}

func TestRedisSnapshotStore_ServerDown(t *testing.T) {
	mr, client := newRedis(t)
	store := NewRedisSnapshotStore(client, "risk", time.Minute)
	ctx := context.Background()

	require.NoError(t, store.HealthCheck(ctx))
	mr.Close()

	assert.Error(t, store.HealthCheck(ctx))
	_, err := store.Get(ctx, "sub-1")
	assert.Error(t, err)
}
