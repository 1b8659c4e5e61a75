package streaming

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
)

func TestCacheKeyStable(t *testing.T) {
	messages := []ports.Message{{Role: ports.RoleUser, Content: "hello"}}
	params := map[string]any{"temperature": 0.7, "max_tokens": 512}

	a := CacheKey("chat", "openai", "gpt-4.1", "be brief", messages, params, nil, nil)
	b := CacheKey("chat", "openai", "gpt-4.1", "be brief", messages, map[string]any{"max_tokens": 512, "temperature": 0.7}, nil, nil)
	require.Equal(t, a, b, "param order must not change the key")

	assert.NotEqual(t, a, CacheKey("summarize", "openai", "gpt-4.1", "be brief", messages, params, nil, nil))
	assert.NotEqual(t, a, CacheKey("chat", "openai", "gpt-4.1", "be brief",
		[]ports.Message{{Role: ports.RoleUser, Content: "goodbye"}}, params, nil, nil))
	assert.NotEqual(t, a, CacheKey("chat", "openai", "gpt-4.1", "be verbose", messages, params, nil, nil))
	assert.NotEqual(t, a, CacheKey("chat", "ollama", "gpt-4.1", "be brief", messages, params, nil, nil))
}

func TestCacheKeyNormalizesWhitespace(t *testing.T) {
	a := CacheKey("chat", "p", "m", "sys", []ports.Message{{Role: "user", Content: "  hello  "}}, nil, nil, nil)
	b := CacheKey("chat", "p", "m", " sys ", []ports.Message{{Role: "user", Content: "hello"}}, nil, nil, nil)
	require.Equal(t, a, b)
}

func TestCacheTTLExpiry(t *testing.T) {
	cache, err := NewCache(8, time.Minute)
	require.NoError(t, err)

	base := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	current := base
	cache.now = func() time.Time { return current }

	cache.Put("k", "cached content")
	got, ok := cache.Get("k")
	require.True(t, ok)
	require.Equal(t, "cached content", got)

	current = base.Add(2 * time.Minute)
	_, ok = cache.Get("k")
	require.False(t, ok, "expired entries must miss")
	require.Equal(t, 0, cache.Len(), "expired entries are dropped on read")
}

func TestCacheEvictsByCapacity(t *testing.T) {
	cache, err := NewCache(2, time.Hour)
	require.NoError(t, err)

	cache.Put("a", "1")
	cache.Put("b", "2")
	cache.Put("c", "3")
	require.Equal(t, 2, cache.Len())
	_, ok := cache.Get("a")
	require.False(t, ok, "oldest entry evicted")
}

func TestChunkedSplitsRunes(t *testing.T) {
	require.Equal(t, []string{"abcd", "efgh", "ij"}, chunked("abcdefghij", 4))
	require.Equal(t, []string{"héllo", " wörl", "d"}, chunked("héllo wörld", 5))
	require.Empty(t, chunked("", 4))
}
