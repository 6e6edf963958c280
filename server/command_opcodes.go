package server

import (
	"context"
	"fmt"

	"github.com/lealone-go/tcpserver/internal/protocol"
	"github.com/lealone-go/tcpserver/internal/protocol/encoding"
)

type queryMode int

const (
	queryModePlain queryMode = 1 << iota
	queryModePrepared
	queryModeDistributed
)

type updateMode int

const (
	updateModePlain updateMode = 1 << iota
	updateModePrepared
	updateModeReplication
	updateModeDistributed
)

// handleCommandPrepare parses sql into a PreparedStatement and
// installs it in the object cache under a client-assigned id. The
// readParams variant additionally replies with the statement's bind
// parameter metadata.
func (c *Connection) handleCommandPrepare(dec *encoding.Decoder, readParams bool) error {
	op := protocol.OpCommandPrepare
	if readParams {
		op = protocol.OpCommandPrepareReadParams
	}
	statementID := dec.Int32()
	connID := dec.Int32()
	sql, _ := dec.String()
	if err := decodeErr(dec); err != nil {
		return err
	}
	s, err := c.session(connID)
	if err != nil {
		return c.replyError(op, err, protocol.KindExecution)
	}
	st, err := s.PrepareStatement(sql, c.cfg.ServerResultSetFetchSize)
	if err != nil {
		return c.replyError(op, err, protocol.KindExecution)
	}
	st.SetConnectionID(connID)
	c.objects.AddObject(statementID, protocol.CachedObject{Kind: protocol.CachedStatement, Statement: st})
	return c.withWrite(func(t *protocol.Transfer) {
		t.BeginResponse(op)
		t.Status(protocol.StatusOK)
		t.Bool(st.IsQuery())
		if readParams {
			params := st.Parameters()
			t.Int32(int32(len(params)))
			for _, p := range params {
				t.String(p.Type, true)
				t.Int32(p.Precision)
				t.Int32(p.Scale)
				t.Bool(p.Nullable)
			}
		}
	})
}

func (c *Connection) cachedStatement(id int32) (protocol.PreparedStatement, error) {
	obj, ok := c.objects.GetObject(id, false)
	if !ok || obj.Kind != protocol.CachedStatement {
		return nil, unknownObjectError{kind: "statement", id: id}
	}
	return obj.Statement.(protocol.PreparedStatement), nil
}

type unknownObjectError struct {
	kind string
	id   int32
}

func (e unknownObjectError) Error() string {
	return "server: no cached " + e.kind + " for id"
}

// submitQuery decodes a query request (the plain, prepared, and
// distributed-transaction variants share this shape) and hands
// execution to the shared worker pool so the reactor goroutine is never
// blocked on SQL execution. The distributed variants run a prelude
// forcing autoCommit=false and root=false, then fall
// through to the shared body, and their replies carry the transaction's
// local-transaction-names string.
func (c *Connection) submitQuery(op protocol.OpCode, dec *encoding.Decoder, mode queryMode) error {
	id := dec.Int32()
	connID := dec.Int32()

	var st protocol.PreparedStatement
	var err error
	if mode&queryModePrepared != 0 {
		paramCount := int(dec.Int32())
		if paramCount < 0 || paramCount > maxBindParams {
			dec.SetError(fmt.Errorf("bind parameter count %d out of range", paramCount))
		}
		for i := 0; i < paramCount && dec.Error() == nil; i++ {
			protocol.ReadValue(dec) // the fake engine never binds parameters (see internal/engine)
		}
		st, err = c.cachedStatement(id)
	} else {
		sql, _ := dec.String()
		var s protocol.Session
		s, err = c.session(connID)
		if err == nil {
			st, err = s.PrepareStatement(sql, c.cfg.ServerResultSetFetchSize)
		}
	}
	objectID := dec.Int32()
	maxRows := dec.Int32()
	fetchSize := dec.Int32()
	if derr := decodeErr(dec); derr != nil {
		return derr
	}
	if err != nil {
		return c.replyError(op, err, protocol.KindExecution)
	}

	s, err := c.session(connID)
	if err != nil {
		return c.replyError(op, err, protocol.KindExecution)
	}
	before := s.ModificationID()
	if fetchSize <= 0 {
		fetchSize = int32(c.cfg.ServerResultSetFetchSize)
	}

	c.submitCommand(&PreparedCommand{ConnID: connID, Session: s, Statement: st, Run: func() {
		if mode&queryModeDistributed != 0 {
			s.SetAutoCommit(false)
			s.SetRoot(false)
		}
		rows, err := st.Query(context.Background(), int(maxRows))
		if err != nil {
			c.replyError(op, err, protocol.KindExecution)
			return
		}
		c.objects.AddObject(objectID, protocol.CachedObject{Kind: protocol.CachedResult, Result: rows})
		status := statusFor(s, before)
		rowCount := rows.RowCount()
		batch := rowCount
		if int(fetchSize) < batch {
			batch = int(fetchSize)
		}
		var rowErr error
		werr := c.withWrite(func(t *protocol.Transfer) {
			t.BeginResponse(op)
			t.Status(status)
			t.Int32(id)
			if mode&queryModeDistributed != 0 {
				t.String(s.GetTransaction().LocalTransactionNames(), true)
			}
			cols := rows.Columns()
			t.Int32(int32(len(cols)))
			t.Int32(int32(rowCount))
			for _, col := range cols {
				t.String(col.Name, true)
				t.String(col.Type, true)
			}
			rowErr = writeRowBatch(t, rows, batch)
		})
		if werr != nil {
			c.logger.Error("failed writing query response", "err", werr)
			return
		}
		if rowErr != nil {
			// The result frame above is already self-terminated; the
			// failure travels as its own error frame.
			c.replyError(op, rowErr, protocol.KindExecution)
		}
	}})
	return nil
}

// writeRowBatch streams up to count rows, each preceded by a presence
// bool; a false presence bool means the result is exhausted and no
// further RESULT_FETCH_ROWS call is needed. A row fetch failure also
// terminates the frame with false, and is returned so the caller can
// follow up with an error frame.
func writeRowBatch(t *protocol.Transfer, rows protocol.Rows, count int) error {
	for i := 0; i < count; i++ {
		ok, err := rows.Next()
		if err != nil {
			t.Bool(false)
			return err
		}
		if !ok {
			t.Bool(false)
			return nil
		}
		t.Bool(true)
		for _, v := range rows.Values() {
			t.Value(v)
		}
	}
	return nil
}

// submitUpdate decodes an update request (the plain, prepared,
// replication, and distributed-transaction variants share this shape)
// and runs it on the worker pool. Replication variants carry a
// replication-name prelude field; distributed variants run the
// autoCommit/root prelude and echo the local-transaction-names string.
func (c *Connection) submitUpdate(op protocol.OpCode, dec *encoding.Decoder, mode updateMode) error {
	id := dec.Int32()
	connID := dec.Int32()
	var replicationName string
	if mode&updateModeReplication != 0 {
		replicationName, _ = dec.String()
	}

	var st protocol.PreparedStatement
	var err error
	if mode&updateModePrepared != 0 {
		paramCount := int(dec.Int32())
		if paramCount < 0 || paramCount > maxBindParams {
			dec.SetError(fmt.Errorf("bind parameter count %d out of range", paramCount))
		}
		for i := 0; i < paramCount && dec.Error() == nil; i++ {
			protocol.ReadValue(dec) // the fake engine never binds parameters
		}
		st, err = c.cachedStatement(id)
	} else {
		sql, _ := dec.String()
		var s protocol.Session
		s, err = c.session(connID)
		if err == nil {
			st, err = s.PrepareStatement(sql, 0)
		}
	}
	if derr := decodeErr(dec); derr != nil {
		return derr
	}
	if err != nil {
		return c.replyError(op, err, protocol.KindExecution)
	}

	s, err := c.session(connID)
	if err != nil {
		return c.replyError(op, err, protocol.KindExecution)
	}
	before := s.ModificationID()

	c.submitCommand(&PreparedCommand{ConnID: connID, Session: s, Statement: st, Run: func() {
		if mode&updateModeDistributed != 0 {
			s.SetAutoCommit(false)
			s.SetRoot(false)
		}
		if mode&updateModeReplication != 0 {
			s.SetReplicationName(replicationName)
		}
		count, err := st.Update(context.Background())
		if err != nil {
			c.replyError(op, err, protocol.KindExecution)
			return
		}
		status := statusFor(s, before)
		werr := c.withWrite(func(t *protocol.Transfer) {
			t.BeginResponse(op)
			t.Status(status)
			t.Int32(id)
			if mode&updateModeDistributed != 0 {
				t.String(s.GetTransaction().LocalTransactionNames(), true)
			}
			t.Int64(count)
		})
		if werr != nil {
			c.logger.Error("failed writing update response", "err", werr)
		}
	}})
	return nil
}

// handleGetMetaData attaches the statement's result metadata as a
// result handle under objectId and replies with the column metadata.
func (c *Connection) handleGetMetaData(dec *encoding.Decoder) error {
	statementID := dec.Int32()
	connID := dec.Int32()
	objectID := dec.Int32()
	if err := decodeErr(dec); err != nil {
		return err
	}
	if _, err := c.session(connID); err != nil {
		return c.replyError(protocol.OpCommandGetMetaData, err, protocol.KindExecution)
	}
	st, err := c.cachedStatement(statementID)
	if err != nil {
		return c.replyError(protocol.OpCommandGetMetaData, err, protocol.KindExecution)
	}
	cols := st.Columns()
	c.objects.AddObject(objectID, protocol.CachedObject{Kind: protocol.CachedResult, Result: newMetaRows(cols)})
	return c.withWrite(func(t *protocol.Transfer) {
		t.BeginResponse(protocol.OpCommandGetMetaData)
		t.Status(protocol.StatusOK)
		t.Int32(int32(len(cols)))
		for _, col := range cols {
			t.String(col.Name, true)
			t.String(col.Type, true)
		}
	})
}

// metaRows exposes a statement's column metadata as an ordinary result
// handle, so RESULT_FETCH_ROWS / RESULT_RESET / RESULT_CLOSE work on an
// attached metadata object the same way they do on a query result.
type metaRows struct {
	cols []protocol.ColumnInfo
	idx  int
}

func newMetaRows(cols []protocol.ColumnInfo) *metaRows { return &metaRows{cols: cols} }

func (m *metaRows) Columns() []protocol.ColumnInfo {
	return []protocol.ColumnInfo{{Name: "COLUMN_NAME", Type: "STRING"}, {Name: "COLUMN_TYPE", Type: "STRING"}}
}

func (m *metaRows) RowCount() int { return len(m.cols) }

func (m *metaRows) Next() (bool, error) {
	if m.idx >= len(m.cols) {
		return false, nil
	}
	m.idx++
	return true, nil
}

func (m *metaRows) Values() []protocol.Value {
	col := m.cols[m.idx-1]
	return []protocol.Value{protocol.StringValue(col.Name), protocol.StringValue(col.Type)}
}

func (m *metaRows) Reset() error { m.idx = 0; return nil }
func (m *metaRows) Close() error { return nil }
