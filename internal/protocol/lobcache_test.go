package protocol

import (
	"bytes"
	"io"
	"testing"
)

type fakeLobStorage struct {
	content map[int64][]byte
	opens   int
}

func (f *fakeLobStorage) GetInputStream(lobID int64, hmac [LobMACSize]byte) (io.ReadSeeker, error) {
	f.opens++
	return bytes.NewReader(f.content[lobID]), nil
}

// TestLobCacheContinuation checks that a read continuing at
// the stream's current position reuses the cached stream, while a read
// at any other offset reopens it.
func TestLobCacheContinuation(t *testing.T) {
	storage := &fakeLobStorage{content: map[int64][]byte{7: []byte("0123456789")}}
	cache := NewLobCache(4)

	entry, hit, err := cache.Open(storage, 7, [LobMACSize]byte{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if hit {
		t.Fatal("first open should not be a cache hit")
	}
	buf := make([]byte, 5)
	n, _ := entry.Stream.Read(buf)
	cache.Advance(entry, int64(n))
	if storage.opens != 1 {
		t.Fatalf("opens = %d, want 1", storage.opens)
	}

	// Continuing at position 5 reuses the same stream.
	entry2, hit2, err := cache.Open(storage, 7, [LobMACSize]byte{}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !hit2 {
		t.Fatal("continuation at the tracked position should hit the cache")
	}
	if entry2 != entry {
		t.Fatal("continuation should return the same cached entry")
	}
	if storage.opens != 1 {
		t.Fatalf("opens = %d, want 1 (no reopen on continuation)", storage.opens)
	}

	// Seeking elsewhere forces a reopen.
	_, hit3, err := cache.Open(storage, 7, [LobMACSize]byte{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if hit3 {
		t.Fatal("a read at a different offset must not be treated as a cache hit")
	}
	if storage.opens != 2 {
		t.Fatalf("opens = %d, want 2 (reopened on offset mismatch)", storage.opens)
	}
}

func TestLobCacheEvictsOldest(t *testing.T) {
	storage := &fakeLobStorage{content: map[int64][]byte{1: {1}, 2: {2}, 3: {3}}}
	cache := NewLobCache(2)
	for _, id := range []int64{1, 2, 3} {
		if _, _, err := cache.Open(storage, id, [LobMACSize]byte{}, 0); err != nil {
			t.Fatal(err)
		}
	}
	if _, hit, _ := cache.Open(storage, 1, [LobMACSize]byte{}, 0); hit {
		t.Fatal("lob 1 should have been evicted")
	}
}
