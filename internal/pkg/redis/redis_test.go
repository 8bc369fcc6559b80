package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()
	client, err := New(cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Addr = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.DB = -1
	assert.Error(t, cfg.Validate())
}

func TestGetSet(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	_, err := client.Get(ctx, "missing")
	assert.True(t, IsNil(err))

	require.NoError(t, client.Set(ctx, "emb:1", "[0.1,0.2]", time.Minute))
	val, err := client.Get(ctx, "emb:1")
	require.NoError(t, err)
	assert.Equal(t, "[0.1,0.2]", val)

	// 键带前缀
	assert.True(t, mr.Exists("chatbot:emb:1"))

	mr.FastForward(2 * time.Minute)
	_, err = client.Get(ctx, "emb:1")
	assert.True(t, IsNil(err))
}

func TestDel(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "a", "1", 0))
	n, err := client.Del(ctx, "a", "b")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestIncrWithExpire(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		n, err := client.IncrWithExpire(ctx, "rl:user:1", time.Minute)
		require.NoError(t, err)
		assert.EqualValues(t, i, n)
	}
	assert.Greater(t, mr.TTL("chatbot:rl:user:1"), time.Duration(0))

	mr.FastForward(time.Minute + time.Second)
	n, err := client.IncrWithExpire(ctx, "rl:user:1", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestNew_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.DialTimeout = 100 * time.Millisecond
	_, err := New(cfg, logger.NewNop())
	assert.Error(t, err)
}
