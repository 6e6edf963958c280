package protocol

import "fmt"

// OpCode identifies a protocol operation. The direction bit (request=0,
// response=1) is carried separately in the frame header (see Header in
// frame.go); OpCode values here are the opcode itself, already shifted
// out of bit 0.
type OpCode int32

// Opcode numeric values are part of the wire ABI and must match the
// peer; do not renumber.
const (
	OpSessionInit OpCode = iota + 1
	OpSessionSetID
	OpSessionSetAutoCommit
	OpSessionClose
	OpSessionCancelStatement

	OpCommandPrepare
	OpCommandPrepareReadParams
	OpCommandQuery
	OpCommandPreparedQuery
	OpCommandUpdate
	OpCommandPreparedUpdate

	OpDistributedTransactionQuery
	OpDistributedTransactionPreparedQuery
	OpDistributedTransactionUpdate
	OpDistributedTransactionPreparedUpdate
	OpDistributedTransactionCommit
	OpDistributedTransactionRollback
	OpDistributedTransactionAddSavepoint
	OpDistributedTransactionRollbackSavepoint
	OpDistributedTransactionValidate

	OpReplicationUpdate
	OpReplicationPreparedUpdate

	OpCommandStoragePut
	OpCommandStorageGet
	OpStorageReplicationPut
	OpStorageDistributedPut
	OpStorageDistributedGet
	OpCommandStorageMoveLeafPage
	OpCommandStorageRemoveLeafPage

	OpCommandGetMetaData

	OpBatchStatementUpdate
	OpBatchStatementPreparedUpdate

	OpCommandClose
	OpResultClose
	OpResultFetchRows
	OpResultReset
	OpResultChangeID

	OpCommandReadLob
)

var opcodeNames = map[OpCode]string{
	OpSessionInit:                             "SESSION_INIT",
	OpSessionSetID:                            "SESSION_SET_ID",
	OpSessionSetAutoCommit:                    "SESSION_SET_AUTO_COMMIT",
	OpSessionClose:                            "SESSION_CLOSE",
	OpSessionCancelStatement:                  "SESSION_CANCEL_STATEMENT",
	OpCommandPrepare:                          "COMMAND_PREPARE",
	OpCommandPrepareReadParams:                "COMMAND_PREPARE_READ_PARAMS",
	OpCommandQuery:                            "COMMAND_QUERY",
	OpCommandPreparedQuery:                    "COMMAND_PREPARED_QUERY",
	OpCommandUpdate:                           "COMMAND_UPDATE",
	OpCommandPreparedUpdate:                   "COMMAND_PREPARED_UPDATE",
	OpDistributedTransactionQuery:             "DISTRIBUTED_TRANSACTION_QUERY",
	OpDistributedTransactionPreparedQuery:     "DISTRIBUTED_TRANSACTION_PREPARED_QUERY",
	OpDistributedTransactionUpdate:            "DISTRIBUTED_TRANSACTION_UPDATE",
	OpDistributedTransactionPreparedUpdate:    "DISTRIBUTED_TRANSACTION_PREPARED_UPDATE",
	OpDistributedTransactionCommit:            "DISTRIBUTED_TRANSACTION_COMMIT",
	OpDistributedTransactionRollback:          "DISTRIBUTED_TRANSACTION_ROLLBACK",
	OpDistributedTransactionAddSavepoint:      "DISTRIBUTED_TRANSACTION_ADD_SAVEPOINT",
	OpDistributedTransactionRollbackSavepoint: "DISTRIBUTED_TRANSACTION_ROLLBACK_SAVEPOINT",
	OpDistributedTransactionValidate:          "DISTRIBUTED_TRANSACTION_VALIDATE",
	OpReplicationUpdate:                       "REPLICATION_UPDATE",
	OpReplicationPreparedUpdate:               "REPLICATION_PREPARED_UPDATE",
	OpCommandStoragePut:                       "COMMAND_STORAGE_PUT",
	OpCommandStorageGet:                       "COMMAND_STORAGE_GET",
	OpStorageReplicationPut:                   "STORAGE_REPLICATION_PUT",
	OpStorageDistributedPut:                   "STORAGE_DISTRIBUTED_PUT",
	OpStorageDistributedGet:                   "STORAGE_DISTRIBUTED_GET",
	OpCommandStorageMoveLeafPage:              "COMMAND_STORAGE_MOVE_LEAF_PAGE",
	OpCommandStorageRemoveLeafPage:            "COMMAND_STORAGE_REMOVE_LEAF_PAGE",
	OpCommandGetMetaData:                      "COMMAND_GET_META_DATA",
	OpBatchStatementUpdate:                    "BATCH_STATEMENT_UPDATE",
	OpBatchStatementPreparedUpdate:            "BATCH_STATEMENT_PREPARED_UPDATE",
	OpCommandClose:                            "COMMAND_CLOSE",
	OpResultClose:                             "RESULT_CLOSE",
	OpResultFetchRows:                         "RESULT_FETCH_ROWS",
	OpResultReset:                             "RESULT_RESET",
	OpResultChangeID:                          "RESULT_CHANGE_ID",
	OpCommandReadLob:                          "COMMAND_READ_LOB",
}

// String implements fmt.Stringer.
func (op OpCode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("OP(%d)", int32(op))
}

// Status is the first i32 field of most response payloads.
type Status int32

// Status numeric values are part of the wire ABI.
const (
	StatusOK             Status = 1
	StatusError          Status = 2
	StatusClosed         Status = 3
	StatusOKStateChanged Status = 4
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	case StatusClosed:
		return "CLOSED"
	case StatusOKStateChanged:
		return "OK_STATE_CHANGED"
	default:
		return fmt.Sprintf("STATUS(%d)", int32(s))
	}
}

// ExecuteFailed is the batch-item sentinel update count.
const ExecuteFailed int32 = -3
