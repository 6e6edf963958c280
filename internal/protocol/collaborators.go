package protocol

import (
	"context"
	"io"
)

// The collaborator interfaces below are the well-defined synchronous
// operations this connection handler consumes but does not implement
//: the SQL parser/planner/executor, the storage
// engine, and the distributed transaction manager. internal/engine
// provides a minimal concrete implementation sufficient to exercise
// every opcode end to end; a real deployment would swap that package
// for one backed by an actual query engine.

// ConnectionInfo is the bag of parameters used to construct a Session.
type ConnectionInfo struct {
	Database        string
	URL             string
	User            string
	PasswordHashes  [][]byte
	FileEncryptKey  []byte
	Properties      map[string]string
	BaseDir         string
	IfExists        bool
	IsLocal         bool
}

// SessionFactory constructs a logical Session from connection
// parameters.
type SessionFactory func(ConnectionInfo) (Session, error)

// ParameterInfo describes one bind parameter of a prepared statement.
type ParameterInfo struct {
	Type      string
	Precision int32
	Scale     int32
	Nullable  bool
}

// ColumnInfo describes one result column.
type ColumnInfo struct {
	Name string
	Type string
}

// Rows is a positioned result cursor as returned by
// PreparedStatement.Query or COMMAND_GET_META_DATA's attached result.
type Rows interface {
	Columns() []ColumnInfo
	// RowCount reports the total number of rows this result will
	// produce; query replies carry it ahead of the first row batch.
	RowCount() int
	// Next advances to the next row, returning ok=false at exhaustion.
	Next() (ok bool, err error)
	// Values returns the current row's column values; valid only after
	// a Next call that returned ok=true.
	Values() []Value
	Reset() error
	Close() error
}

// PreparedStatement is the facade onto the out-of-scope SQL
// parser/planner/executor.
type PreparedStatement interface {
	IsQuery() bool
	Query(ctx context.Context, maxRows int) (Rows, error)
	Update(ctx context.Context) (updateCount int64, err error)
	Parameters() []ParameterInfo
	Columns() []ColumnInfo
	SetFetchSize(n int)
	SetConnectionID(id int32)
	Cancel()
	Close() error
}

// Transaction is the facade onto the out-of-scope distributed
// transaction manager.
type Transaction interface {
	Commit(local bool, txNames string) error
	Rollback() error
	AddSavepoint(name string) error
	RollbackToSavepoint(name string) error
	Validate() (bool, error)
	LocalTransactionNames() string
}

// Session is the per-connectionId logical database session.
type Session interface {
	PrepareStatement(sql string, fetchSize int) (PreparedStatement, error)
	GetStorageMap(name string) (StorageMap, error)
	GetLobStorage() LobStorage
	GetTransaction() Transaction
	SetAutoCommit(bool)
	IsAutoCommit() bool
	SetRoot(bool)
	SetReplicationName(string)
	SetLocal(bool)
	// ModificationID is read before a session-mutating operation; a
	// change between snapshot and reply write triggers
	// StatusOKStateChanged.
	ModificationID() uint64
	IsClosed() bool
	Close() error
}

// Replication is the optional capability a StorageMap may implement to
// participate in leaf-page replication.
type Replication interface {
	AddLeafPage(page []byte) error
	RemoveLeafPage(pageKey []byte) error
}

// StorageMap is the facade onto one named KV map of the out-of-scope
// storage engine.
type StorageMap interface {
	Name() string
	Get(key []byte) (value []byte, found bool, err error)
	Put(key, value []byte) (previous []byte, err error)
	// Replication returns the map's Replication capability, or
	// (nil, false) if the map does not implement it.
	Replication() (Replication, bool)
}

// LobStorage is the facade onto the out-of-scope LOB storage backing
// store.
type LobStorage interface {
	// GetInputStream opens a fresh stream for lobID, verifying hmac
	// against the store's own record of the LOB. The stream starts at
	// offset 0; callers seek afterward.
	GetInputStream(lobID int64, hmac [LobMACSize]byte) (io.ReadSeeker, error)
}
