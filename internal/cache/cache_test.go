package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelstream/internal/core"
)

func chatRequest(model, content string) *core.ChatRequest {
	return &core.ChatRequest{
		Model: model,
		Messages: []core.Message{
			{Role: "user", Content: content},
		},
	}
}

func TestKey_Deterministic(t *testing.T) {
	req := chatRequest("gpt-4o-mini", "hello")

	k1, err := Key(req)
	require.NoError(t, err)
	k2, err := Key(req)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.True(t, strings.HasPrefix(k1, "modelstream:chat:"))
}

func TestKey_DiffersByRequest(t *testing.T) {
	k1, err := Key(chatRequest("gpt-4o-mini", "hello"))
	require.NoError(t, err)
	k2, err := Key(chatRequest("gpt-4o-mini", "goodbye"))
	require.NoError(t, err)
	k3, err := Key(chatRequest("gpt-4o", "hello"))
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestKey_IgnoresStreamFlag(t *testing.T) {
	plain := chatRequest("gpt-4o-mini", "hello")
	streamed := chatRequest("gpt-4o-mini", "hello")
	streamed.Stream = true

	k1, err := Key(plain)
	require.NoError(t, err)
	k2, err := Key(streamed)
	require.NoError(t, err)

	assert.Equal(t, k1, k2, "stream flag must not change the cache key")
}

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(0)
	defer func() { _ = c.Close() }()

	ctx := context.Background()
	resp := &core.ChatResponse{
		ID:    "resp-1",
		Model: "gpt-4o-mini",
		Choices: []core.Choice{
			{Message: core.Message{Role: "assistant", Content: "hi"}},
		},
	}

	require.NoError(t, c.Set(ctx, "k", resp))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "resp-1", got.ID)
	assert.Equal(t, "hi", got.Choices[0].Message.Content)
}

func TestMemoryCache_MissReturnsNilNil(t *testing.T) {
	c := NewMemoryCache(0)

	got, err := c.Get(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(time.Millisecond)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", &core.ChatResponse{ID: "resp-1"}))
	time.Sleep(5 * time.Millisecond)

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got, "expired entry must read as a miss")
}

func TestMemoryCache_GetReturnsCopy(t *testing.T) {
	c := NewMemoryCache(0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", &core.ChatResponse{ID: "resp-1"}))

	first, err := c.Get(ctx, "k")
	require.NoError(t, err)
	first.ID = "mutated"

	second, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "resp-1", second.ID)
}
