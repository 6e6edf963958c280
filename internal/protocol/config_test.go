package protocol

import "testing"

func TestParseSize(t *testing.T) {
	n, err := ParseSize("16MiB")
	if err != nil {
		t.Fatal(err)
	}
	if n != 16*1024*1024 {
		t.Fatalf("ParseSize(16MiB) = %d", n)
	}
	if _, err := ParseSize("not-a-size"); err == nil {
		t.Fatal("expected an error for garbage input")
	}
	if _, err := ParseSize("8GiB"); err == nil {
		t.Fatal("expected an error beyond the packet ceiling")
	}
}

func TestLobCacheCapacityFloor(t *testing.T) {
	cfg := Config{ServerCachedObjects: 64, ServerResultSetFetchSize: 100}
	if got := cfg.LobCacheCapacity(); got != 500 {
		t.Fatalf("LobCacheCapacity() = %d, want 500 (5 * fetch size)", got)
	}
	cfg = Config{ServerCachedObjects: 1024, ServerResultSetFetchSize: 10}
	if got := cfg.LobCacheCapacity(); got != 1024 {
		t.Fatalf("LobCacheCapacity() = %d, want 1024 (cached objects dominates)", got)
	}
}

func TestMaxLobReadLength(t *testing.T) {
	cfg := Config{IOBufferSize: 4096}
	if got := cfg.MaxLobReadLength(); got != 16*4096 {
		t.Fatalf("MaxLobReadLength() = %d, want %d", got, 16*4096)
	}
}
