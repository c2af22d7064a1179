package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestNewClient_InvalidURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"Invalid scheme", "invalid://url"},
		{"Empty URL", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.url, "test", zap.NewNop())
			assert.Error(t, err)
			assert.Nil(t, client)
		})
	}
}

func TestClient_SetAndGet(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	key := client.KeyBuilder.KeyVoterVoted(101, "jane@example.com")
	require.NoError(t, client.Set(ctx, key, "nomination-1", TTLVoterVoted))

	val, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "nomination-1", val)
}

func TestClient_Exists(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	key := client.KeyBuilder.KeyVoterVoted(101, "jane@example.com")

	n, err := client.Exists(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	require.NoError(t, client.Set(ctx, key, "1", time.Minute))

	n, err = client.Exists(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestClient_SetNX(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	key := client.KeyBuilder.KeyDispatchLock()

	acquired, err := client.SetNX(ctx, key, "1", TTLDispatchLock)
	require.NoError(t, err)
	assert.True(t, acquired)

	// Second acquisition fails while the lock is held
	acquired, err = client.SetNX(ctx, key, "1", TTLDispatchLock)
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestClient_SetNX_ExpiresLock(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	key := client.KeyBuilder.KeyDispatchLock()

	acquired, err := client.SetNX(ctx, key, "1", TTLDispatchLock)
	require.NoError(t, err)
	require.True(t, acquired)

	mr.FastForward(TTLDispatchLock + time.Second)

	acquired, err = client.SetNX(ctx, key, "1", TTLDispatchLock)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestClient_Delete(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	key := client.KeyBuilder.KeyCustom("nomination:%s", "abc")
	require.NoError(t, client.Set(ctx, key, "1", time.Minute))
	require.NoError(t, client.Delete(ctx, key))

	n, err := client.Exists(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestClient_Health(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Health(ctx))

	mr.Close()
	assert.Error(t, client.Health(ctx))
}

func TestPrefixForLog(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"prod:vote:subcategory:101:voter:jane@example.com", "prod:vote"},
		{"prod:outbox:dispatch:lock", "prod:outbox"},
		{"short:key", "short:key"},
		{"plain", "plain"},
	}

	for _, tt := range tests {
		if got := prefixForLog(tt.key); got != tt.want {
			t.Errorf("prefixForLog(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
