package subtitles

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"vidbridge/internal/metrics"
)

// blobCache holds processed subtitle bytes keyed by content hash. Entries
// expire after sitting idle and the cache evicts oldest-first once total
// bytes pass the budget.
type blobCache struct {
	mu       sync.Mutex
	lru      *expirable.LRU[string, []byte]
	bytes    atomic.Int64 // evictions also fire from the idle reaper
	maxBytes int64
}

// lruSlots caps entry count; the byte budget is the real limit, this just
// bounds the underlying structure.
const lruSlots = 4096

func newBlobCache(maxBytes int64, idle time.Duration) *blobCache {
	c := &blobCache{maxBytes: maxBytes}
	c.lru = expirable.NewLRU[string, []byte](lruSlots, func(key string, value []byte) {
		c.bytes.Add(-int64(len(value)))
	}, idle)
	return c
}

// BlobHandle derives the cache key for a payload.
func BlobHandle(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

// Put stores a blob and returns its handle.
func (c *blobCache) Put(data []byte) string {
	handle := BlobHandle(data)
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lru.Peek(handle); ok {
		return handle
	}
	c.lru.Add(handle, data)
	c.bytes.Add(int64(len(data)))
	for c.bytes.Load() > c.maxBytes && c.lru.Len() > 0 {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
	return handle
}

// Get returns a cached blob by handle.
func (c *blobCache) Get(handle string) ([]byte, bool) {
	c.mu.Lock()
	data, ok := c.lru.Get(handle)
	c.mu.Unlock()

	if ok {
		metrics.SubtitleCacheHits.Inc()
	} else {
		metrics.SubtitleCacheMisses.Inc()
	}
	return data, ok
}

// Stats reports entry count and resident bytes.
func (c *blobCache) Stats() (entries int, bytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len(), c.bytes.Load()
}
