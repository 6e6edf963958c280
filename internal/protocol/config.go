package protocol

import (
	"fmt"

	units "github.com/docker/go-units"
)

// Protocol version bounds. Numeric values are part of the wire ABI.
const (
	TCPProtocolVersionMin     int32 = 1
	TCPProtocolVersionMax     int32 = 4
	TCPProtocolVersionCurrent int32 = 4
	TCPProtocolVersion1       int32 = 1
)

// Config collects the server tunables. Sizes expressed as human
// strings (e.g. "16MiB") are parsed with github.com/docker/go-units.
type Config struct {
	// ServerCachedObjects is the per-connection object cache capacity.
	ServerCachedObjects int
	// ServerResultSetFetchSize is the LOB cache sizing floor, the fetch
	// size passed to Session.PrepareStatement, and the batch size used
	// when a query or fetch request carries a non-positive fetch size.
	ServerResultSetFetchSize int
	// IOBufferSize is the unit multiplied by 16 to cap COMMAND_READ_LOB
	// requests.
	IOBufferSize int
	// MaxFrameSize bounds the Buffer Reassembler's declared packet
	// length. 0 means the reassembler's
	// internal hard ceiling only.
	MaxFrameSize int
	BaseDir      string
	IfExists     bool
	IsLocal      bool
}

// DefaultConfig returns the baseline tunables.
func DefaultConfig() Config {
	return Config{
		ServerCachedObjects:      64,
		ServerResultSetFetchSize: 100,
		IOBufferSize:             4096,
		MaxFrameSize:             16 * 1024 * 1024,
	}
}

// MaxLobReadLength returns the per-request read cap,
// 16 * IO_BUFFER_SIZE.
func (c Config) MaxLobReadLength() int64 {
	return int64(c.IOBufferSize) * 16
}

// LobCacheCapacity returns MinLobCacheSize for this config.
func (c Config) LobCacheCapacity() int {
	return MinLobCacheSize(c.ServerCachedObjects, c.ServerResultSetFetchSize)
}

// ParseSize parses a human-readable size string ("16MiB", "4k", ...)
// into bytes via docker/go-units, for flags and config files that
// express buffer sizes the way an operator would type them.
func ParseSize(s string) (int, error) {
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("protocol: invalid size %q: %w", s, err)
	}
	if n < 0 || n > maxReasonablePacket {
		return 0, fmt.Errorf("protocol: size %q out of range", s)
	}
	return int(n), nil
}
