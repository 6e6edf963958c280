package engine

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/lealone-go/tcpserver/internal/protocol"
)

// memLobStorage is a process-wide in-memory LobStorage.
// Real deployments keep LOBs in a storage engine the connection handler
// never touches directly; here a map stands in for it.
type memLobStorage struct {
	mu      sync.RWMutex
	nextID  atomic.Int64
	content map[int64][]byte
	mac     map[int64][protocol.LobMACSize]byte
}

var globalLobStorage = &memLobStorage{
	content: make(map[int64][]byte),
	mac:     make(map[int64][protocol.LobMACSize]byte),
}

// PutLob stores data in the process-wide LOB storage under a freshly
// minted id, returning the locator a query result would carry for it.
// The MAC is minted under macKey, the per-connection key of whichever
// connection the locator will be handed to.
func PutLob(macKey, data []byte) protocol.LobValue {
	return globalLobStorage.Put(macKey, data)
}

// Put stores data under a freshly minted LOB id and returns its id,
// length and HMAC, the locator a client echoes in COMMAND_READ_LOB.
func (s *memLobStorage) Put(macKey, data []byte) protocol.LobValue {
	id := s.nextID.Add(1)
	mac := protocol.LobMAC(macKey, id)
	s.mu.Lock()
	s.content[id] = append([]byte(nil), data...)
	s.mac[id] = mac
	s.mu.Unlock()
	return protocol.LobValue{LobID: id, Length: int64(len(data)), MAC: mac}
}

func (s *memLobStorage) GetInputStream(lobID int64, hmac [protocol.LobMACSize]byte) (io.ReadSeeker, error) {
	s.mu.RLock()
	data, ok := s.content[lobID]
	want, hasMAC := s.mac[lobID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("engine: no such lob %d", lobID)
	}
	if hasMAC && want != hmac {
		return nil, fmt.Errorf("engine: lob %d HMAC verification failed", lobID)
	}
	return &closingReader{Reader: bytes.NewReader(data)}, nil
}

// closingReader adapts a *bytes.Reader (ReadSeeker but not Closer) to
// also satisfy io.Closer; LobCache closes evicted or replaced streams
// that implement io.Closer.
type closingReader struct {
	*bytes.Reader
}

func (c *closingReader) Close() error { return nil }
