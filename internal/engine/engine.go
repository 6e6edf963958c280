// Package engine is a minimal in-memory stand-in for the SQL
// parser/planner/executor and the storage engine, accessed by the
// connection handler only via the interfaces in
// internal/protocol (Session, PreparedStatement, StorageMap,
// LobStorage, Transaction). It exists so the connection handler in
// package server can be built and exercised end to end; it is not a
// database.
//
// Statement classification is a crude keyword sniff, not a parser:
// SELECT/VALUES/SHOW/CALL (a table function) are queries, everything
// else is an update. That is exactly as much "SQL understanding" as the
// dispatcher needs and no more.
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/lealone-go/tcpserver/internal/protocol"
)

var queryKeyword = regexp.MustCompile(`(?i)^\s*(SELECT|VALUES|SHOW|CALL)\b`)

// database is the shared backing state for every Session opened against
// the same database name, mirroring a single-node engine where distinct
// logical sessions observe the same data.
type database struct {
	mu      sync.Mutex
	tables  map[string]map[string]string // table name -> row id -> rendered row, driven by INSERT/SET statements
	maps    map[string]*storageMap
	nextRow int64
}

var (
	dbRegistryMu sync.Mutex
	dbRegistry   = map[string]*database{}
)

// insertRow appends a rendered row to table under a fresh row id.
func (db *database) insertRow(table, rendered string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	rows, ok := db.tables[table]
	if !ok {
		rows = make(map[string]string)
		db.tables[table] = rows
	}
	db.nextRow++
	rows[strconv.FormatInt(db.nextRow, 10)] = rendered
}

func getOrCreateDatabase(name string) *database {
	dbRegistryMu.Lock()
	defer dbRegistryMu.Unlock()
	db, ok := dbRegistry[name]
	if !ok {
		db = &database{tables: make(map[string]map[string]string), maps: make(map[string]*storageMap)}
		dbRegistry[name] = db
	}
	return db
}

// Factory is a protocol.SessionFactory backed by the in-memory engine.
func Factory(info protocol.ConnectionInfo) (protocol.Session, error) {
	if info.Database == "" {
		return nil, fmt.Errorf("engine: connection info missing database name")
	}
	db := getOrCreateDatabase(info.Database)
	return &session{db: db, autoCommit: true}, nil
}

type session struct {
	db             *database
	mu             sync.Mutex
	autoCommit     bool
	root           bool
	local          bool
	replicationNm  string
	modificationID atomic.Uint64
	closed         atomic.Bool
	txn            *transaction
}

func (s *session) PrepareStatement(sql string, fetchSize int) (protocol.PreparedStatement, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("engine: session is closed")
	}
	isQuery := queryKeyword.MatchString(sql)
	return &statement{session: s, sql: sql, isQuery: isQuery, fetchSize: fetchSize}, nil
}

func (s *session) GetStorageMap(name string) (protocol.StorageMap, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	m, ok := s.db.maps[name]
	if !ok {
		m = &storageMap{name: name, data: make(map[string][]byte)}
		s.db.maps[name] = m
	}
	return m, nil
}

func (s *session) GetLobStorage() protocol.LobStorage { return globalLobStorage }

func (s *session) GetTransaction() protocol.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txn == nil {
		s.txn = &transaction{}
	}
	return s.txn
}

func (s *session) SetAutoCommit(v bool) { s.mu.Lock(); s.autoCommit = v; s.mu.Unlock() }
func (s *session) IsAutoCommit() bool   { s.mu.Lock(); defer s.mu.Unlock(); return s.autoCommit }
func (s *session) SetRoot(v bool)       { s.mu.Lock(); s.root = v; s.mu.Unlock() }
func (s *session) SetReplicationName(n string) {
	s.mu.Lock()
	s.replicationNm = n
	s.mu.Unlock()
}
func (s *session) SetLocal(v bool) { s.mu.Lock(); s.local = v; s.mu.Unlock() }

func (s *session) ModificationID() uint64 { return s.modificationID.Load() }
func (s *session) bumpModification()      { s.modificationID.Add(1) }

func (s *session) IsClosed() bool { return s.closed.Load() }

func (s *session) Close() error {
	s.closed.Store(true)
	return nil
}

// transaction is a minimal protocol.Transaction: it tracks savepoints
// by name and the last non-empty local-transaction-names string passed
// to Commit, enough for the distributed opcodes to round-trip through it.
type transaction struct {
	mu         sync.Mutex
	savepoints []string
	txNames    string
}

func (t *transaction) Commit(local bool, txNames string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if txNames != "" {
		t.txNames = txNames
	}
	return nil
}

func (t *transaction) Rollback() error { return nil }

func (t *transaction) AddSavepoint(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.savepoints = append(t.savepoints, name)
	return nil
}

func (t *transaction) RollbackToSavepoint(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.savepoints {
		if s == name {
			t.savepoints = t.savepoints[:i]
			return nil
		}
	}
	return fmt.Errorf("engine: no such savepoint %q", name)
}

func (t *transaction) Validate() (bool, error) { return true, nil }

func (t *transaction) LocalTransactionNames() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.txNames
}
