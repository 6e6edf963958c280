package server

import (
	"sync"
	"testing"

	"github.com/lealone-go/tcpserver/internal/protocol"
)

type fakeSession struct {
	mu     sync.Mutex
	closed bool
	txn    *fakeTxn
}

func (s *fakeSession) PrepareStatement(string, int) (protocol.PreparedStatement, error) { return nil, nil }
func (s *fakeSession) GetStorageMap(string) (protocol.StorageMap, error)                { return nil, nil }
func (s *fakeSession) GetLobStorage() protocol.LobStorage                               { return nil }
func (s *fakeSession) GetTransaction() protocol.Transaction {
	if s.txn != nil {
		return s.txn
	}
	return &fakeTxn{}
}
func (s *fakeSession) SetAutoCommit(bool)                                               {}
func (s *fakeSession) IsAutoCommit() bool                                               { return true }
func (s *fakeSession) SetRoot(bool)                                                     {}
func (s *fakeSession) SetReplicationName(string)                                        {}
func (s *fakeSession) SetLocal(bool)                                                    {}
func (s *fakeSession) ModificationID() uint64                                           { return 0 }
func (s *fakeSession) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeTxn struct{ rolledBack bool }

func (t *fakeTxn) Commit(bool, string) error        { return nil }
func (t *fakeTxn) Rollback() error                  { t.rolledBack = true; return nil }
func (t *fakeTxn) AddSavepoint(string) error        { return nil }
func (t *fakeTxn) RollbackToSavepoint(string) error { return nil }
func (t *fakeTxn) Validate() (bool, error)          { return true, nil }
func (t *fakeTxn) LocalTransactionNames() string    { return "" }

func TestSessionRegistryRaceLoserCloses(t *testing.T) {
	var created []*fakeSession
	var mu sync.Mutex
	factory := func(protocol.ConnectionInfo) (protocol.Session, error) {
		s := &fakeSession{}
		mu.Lock()
		created = append(created, s)
		mu.Unlock()
		return s, nil
	}
	reg := NewSessionRegistry(factory, protocol.ConnectionInfo{Database: "d"})

	const n = 8
	var wg sync.WaitGroup
	results := make([]protocol.Session, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := reg.GetOrCreate(42)
			if err != nil {
				t.Error(err)
			}
			results[i] = s
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatal("all callers should observe the same winning session")
		}
	}

	closedCount := 0
	for _, s := range created {
		if s.IsClosed() {
			closedCount++
		}
	}
	if closedCount != len(created)-1 {
		t.Fatalf("expected exactly one surviving (unclosed) session, got %d closed of %d created", closedCount, len(created))
	}
}

func TestSessionRegistryCloseRollsBackFirst(t *testing.T) {
	s := &fakeSession{txn: &fakeTxn{}}
	reg := NewSessionRegistry(func(protocol.ConnectionInfo) (protocol.Session, error) { return s, nil }, protocol.ConnectionInfo{})
	if _, err := reg.GetOrCreate(1); err != nil {
		t.Fatal(err)
	}
	if err := reg.Close(1); err != nil {
		t.Fatal(err)
	}
	if !s.txn.rolledBack {
		t.Fatal("session's transaction should be rolled back on close")
	}
	if !s.IsClosed() {
		t.Fatal("session should be closed")
	}
	if _, ok := reg.Get(1); ok {
		t.Fatal("closed session should be removed from the registry")
	}
}
