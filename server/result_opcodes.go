package server

import (
	"github.com/lealone-go/tcpserver/internal/protocol"
	"github.com/lealone-go/tcpserver/internal/protocol/encoding"
)

func (c *Connection) cachedResult(id int32) (protocol.Rows, error) {
	obj, ok := c.objects.GetObject(id, false)
	if !ok || obj.Kind != protocol.CachedResult {
		return nil, unknownObjectError{kind: "result", id: id}
	}
	return obj.Result.(protocol.Rows), nil
}

// handleCommandClose evicts and closes a cached prepared statement.
func (c *Connection) handleCommandClose(dec *encoding.Decoder) error {
	connID := dec.Int32()
	statementID := dec.Int32()
	if err := decodeErr(dec); err != nil {
		return err
	}
	if _, err := c.session(connID); err != nil {
		return c.replyError(protocol.OpCommandClose, err, protocol.KindExecution)
	}
	if obj, ok := c.objects.FreeObject(statementID); ok && obj.Kind == protocol.CachedStatement {
		if st, ok := obj.Statement.(protocol.PreparedStatement); ok {
			st.Close()
		}
	}
	return c.replyStatusOnly(protocol.OpCommandClose, protocol.StatusOK)
}

// handleResultClose evicts and closes a cached result set.
func (c *Connection) handleResultClose(dec *encoding.Decoder) error {
	connID := dec.Int32()
	resultID := dec.Int32()
	if err := decodeErr(dec); err != nil {
		return err
	}
	if _, err := c.session(connID); err != nil {
		return c.replyError(protocol.OpResultClose, err, protocol.KindExecution)
	}
	if obj, ok := c.objects.FreeObject(resultID); ok && obj.Kind == protocol.CachedResult {
		if rows, ok := obj.Result.(protocol.Rows); ok {
			rows.Close()
		}
	}
	return c.replyStatusOnly(protocol.OpResultClose, protocol.StatusOK)
}

// handleResultFetchRows continues streaming from a cached result.
// Running a fetch on the worker pool keeps it off the reactor
// goroutine just like the initial query, since Rows.Next may block on
// the storage engine.
func (c *Connection) handleResultFetchRows(dec *encoding.Decoder) error {
	connID := dec.Int32()
	resultID := dec.Int32()
	fetchSize := dec.Int32()
	if err := decodeErr(dec); err != nil {
		return err
	}
	rows, err := c.cachedResult(resultID)
	if err != nil {
		return c.replyError(protocol.OpResultFetchRows, err, protocol.KindExecution)
	}

	if fetchSize <= 0 {
		fetchSize = int32(c.cfg.ServerResultSetFetchSize)
	}
	c.submitCommand(&PreparedCommand{ConnID: connID, Run: func() {
		var rowErr error
		werr := c.withWrite(func(t *protocol.Transfer) {
			t.BeginResponse(protocol.OpResultFetchRows)
			t.Status(protocol.StatusOK)
			rowErr = writeRowBatch(t, rows, int(fetchSize))
		})
		if werr != nil {
			c.logger.Error("failed writing fetch-rows response", "err", werr)
			return
		}
		if rowErr != nil {
			c.replyError(protocol.OpResultFetchRows, rowErr, protocol.KindExecution)
		}
	}})
	return nil
}

func (c *Connection) handleResultReset(dec *encoding.Decoder) error {
	connID := dec.Int32()
	resultID := dec.Int32()
	if err := decodeErr(dec); err != nil {
		return err
	}
	if _, err := c.session(connID); err != nil {
		return c.replyError(protocol.OpResultReset, err, protocol.KindExecution)
	}
	rows, err := c.cachedResult(resultID)
	if err != nil {
		return c.replyError(protocol.OpResultReset, err, protocol.KindExecution)
	}
	if err := rows.Reset(); err != nil {
		return c.replyError(protocol.OpResultReset, err, protocol.KindExecution)
	}
	return c.replyStatusOnly(protocol.OpResultReset, protocol.StatusOK)
}

// handleResultChangeID renames a cached result's id, letting a client
// hand off a still-open result set to a new id without a round trip
// through close+refetch.
func (c *Connection) handleResultChangeID(dec *encoding.Decoder) error {
	connID := dec.Int32()
	oldID := dec.Int32()
	newID := dec.Int32()
	if err := decodeErr(dec); err != nil {
		return err
	}
	if _, err := c.session(connID); err != nil {
		return c.replyError(protocol.OpResultChangeID, err, protocol.KindExecution)
	}
	if !c.objects.ChangeID(oldID, newID) {
		return c.replyError(protocol.OpResultChangeID, unknownObjectError{kind: "result", id: oldID}, protocol.KindExecution)
	}
	return c.replyStatusOnly(protocol.OpResultChangeID, protocol.StatusOK)
}
