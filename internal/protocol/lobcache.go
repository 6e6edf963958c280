package protocol

import (
	"fmt"
	"io"
	"sync"
)

// CachedInputStream tracks one LOB read stream's current byte
// position. The invariant is that Position equals the total bytes
// returned from Stream so far; a request at a different offset tears
// the stream down and reopens it.
type CachedInputStream struct {
	LobID    int64
	Stream   io.ReadSeeker
	Position int64
}

// LobCache is the per-connection LOB Read Cache: position-tracking streams keyed by LOB id, retained across
// packets for sequential continuation. It is sized to at least
// max(SERVER_CACHED_OBJECTS, 5*SERVER_RESULT_SET_FETCH_SIZE) and evicts
// oldest-first beyond that, always closing the evicted stream.
type LobCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[int64]*CachedInputStream
	order    []int64
}

// MinLobCacheSize computes the cache's minimum capacity:
// max(SERVER_CACHED_OBJECTS, 5 * SERVER_RESULT_SET_FETCH_SIZE).
func MinLobCacheSize(serverCachedObjects, serverResultSetFetchSize int) int {
	min := serverCachedObjects
	if alt := 5 * serverResultSetFetchSize; alt > min {
		min = alt
	}
	return min
}

// NewLobCache creates a LobCache with the given capacity (see
// MinLobCacheSize).
func NewLobCache(capacity int) *LobCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &LobCache{capacity: capacity, entries: make(map[int64]*CachedInputStream)}
}

func (c *LobCache) evictLocked() {
	for len(c.entries) > c.capacity && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if e, ok := c.entries[oldest]; ok {
			if closer, ok := e.Stream.(io.Closer); ok {
				closer.Close()
			}
			delete(c.entries, oldest)
		}
	}
}

// Open returns the stream for lobID positioned at offset, opening or
// reopening from storage as needed per the CachedInputStream invariant
//: a cache hit whose Position already
// equals offset is reused without a new storage open; any other case
// opens a fresh stream and seeks to offset.
func (c *LobCache) Open(storage LobStorage, lobID int64, mac [LobMACSize]byte, offset int64) (*CachedInputStream, bool, error) {
	c.mu.Lock()
	entry, hit := c.entries[lobID]
	c.mu.Unlock()

	if hit && entry.Position == offset {
		return entry, true, nil
	}

	if hit {
		if closer, ok := entry.Stream.(io.Closer); ok {
			closer.Close()
		}
	}

	stream, err := storage.GetInputStream(lobID, mac)
	if err != nil {
		return nil, false, fmt.Errorf("lobcache: open lob %d: %w", lobID, err)
	}
	if offset > 0 {
		if _, err := stream.Seek(offset, io.SeekStart); err != nil {
			return nil, false, fmt.Errorf("lobcache: seek lob %d to %d: %w", lobID, offset, err)
		}
	}
	fresh := &CachedInputStream{LobID: lobID, Stream: stream, Position: offset}

	c.mu.Lock()
	if _, existed := c.entries[lobID]; !existed {
		c.order = append(c.order, lobID)
	}
	c.entries[lobID] = fresh
	c.evictLocked()
	c.mu.Unlock()

	return fresh, false, nil
}

// Advance records that n more bytes were returned from entry's stream.
func (c *LobCache) Advance(entry *CachedInputStream, n int64) {
	c.mu.Lock()
	entry.Position += n
	c.mu.Unlock()
}

// Close closes and evicts every cached stream (connection teardown).
func (c *LobCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if closer, ok := e.Stream.(io.Closer); ok {
			closer.Close()
		}
	}
	c.entries = make(map[int64]*CachedInputStream)
	c.order = nil
}
