package streaming

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
)

// Cache defaults.
const (
	DefaultCacheSize = 256
	DefaultCacheTTL  = 10 * time.Minute
	DefaultChunkSize = 80
)

// Cache stores completed stream content keyed by a stable request hash.
// Entries expire by TTL on read; capacity is bounded by LRU eviction.
type Cache struct {
	entries *lru.Cache[string, cacheEntry]
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	content  string
	storedAt time.Time
}

// NewCache builds a cache; size and ttl fall back to defaults when zero.
func NewCache(size int, ttl time.Duration) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	entries, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("build response cache: %w", err)
	}
	return &Cache{entries: entries, ttl: ttl, now: time.Now}, nil
}

// Get returns unexpired content for the key. Expired entries are dropped.
func (c *Cache) Get(key string) (string, bool) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return "", false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		c.entries.Remove(key)
		return "", false
	}
	return entry.content, true
}

// Put stores content under the key.
func (c *Cache) Put(key, content string) {
	c.entries.Add(key, cacheEntry{content: content, storedAt: c.now()})
}

// Len reports how many entries are cached.
func (c *Cache) Len() int { return c.entries.Len() }

// CacheKey computes the stable hash identifying a stream request. Two
// requests that would produce the same provider call share a key.
func CacheKey(route, provider, model, system string, messages []ports.Message, params map[string]any, tools []string, extras map[string]string) string {
	h := sha256.New()
	write := func(part string) {
		h.Write([]byte(part))
		h.Write([]byte{0x1e})
	}

	write(route)
	write(provider)
	write(model)
	write(strings.TrimSpace(system))

	for _, msg := range messages {
		write(msg.Role + "\x1f" + strings.TrimSpace(msg.Content))
	}

	if len(params) > 0 {
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			encoded, err := json.Marshal(params[k])
			if err != nil {
				encoded = []byte(fmt.Sprintf("%v", params[k]))
			}
			write(k + "\x1f" + string(encoded))
		}
	}

	if len(tools) > 0 {
		sorted := make([]string, len(tools))
		copy(sorted, tools)
		sort.Strings(sorted)
		write(strings.Join(sorted, "\x1f"))
	}

	if len(extras) > 0 {
		keys := make([]string, 0, len(extras))
		for k := range extras {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			write(k + "\x1f" + extras[k])
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}

// chunked splits content into fixed-size rune chunks for cache replay.
func chunked(content string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	runes := []rune(content)
	chunks := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
