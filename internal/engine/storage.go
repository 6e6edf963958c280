package engine

import (
	"bytes"
	"sync"

	"github.com/lealone-go/tcpserver/internal/protocol"
)

// storageMap is a mutex-guarded named byte-keyed/byte-valued map that
// also implements the optional Replication capability so
// COMMAND_STORAGE_MOVE_LEAF_PAGE / REMOVE_LEAF_PAGE have something
// real to call. Keys and values pass through as raw bytes; the fake
// engine has no typed key/value codecs to apply.
type storageMap struct {
	name  string
	mu    sync.RWMutex
	data  map[string][]byte
	pages [][]byte
}

func (m *storageMap) Name() string { return m.name }

func (m *storageMap) Get(key []byte) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	return v, ok, nil
}

func (m *storageMap) Put(key, value []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.data[string(key)]
	m.data[string(key)] = value
	return prev, nil
}

func (m *storageMap) Replication() (protocol.Replication, bool) {
	return m, true
}

func (m *storageMap) AddLeafPage(page []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages = append(m.pages, append([]byte(nil), page...))
	return nil
}

func (m *storageMap) RemoveLeafPage(pageKey []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.pages {
		if bytes.Equal(p, pageKey) {
			m.pages = append(m.pages[:i], m.pages[i+1:]...)
			return nil
		}
	}
	return nil
}
