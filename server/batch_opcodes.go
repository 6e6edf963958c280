package server

import (
	"context"
	"fmt"

	"github.com/lealone-go/tcpserver/internal/protocol"
	"github.com/lealone-go/tcpserver/internal/protocol/encoding"
)

// submitBatch decodes a batch of update statements (either raw SQL or
// bound parameter sets against one prepared statement) and runs the
// whole batch on the worker pool. One item failing does not abort the
// rest: it is reported as ExecuteFailed and the batch continues, so a
// client can tell which of N statements succeeded.
func (c *Connection) submitBatch(dec *encoding.Decoder, prepared bool) error {
	op := protocol.OpBatchStatementUpdate
	if prepared {
		op = protocol.OpBatchStatementPreparedUpdate
	}

	connID := dec.Int32()
	var statementID int32
	if prepared {
		statementID = dec.Int32()
	}
	count := int(dec.Int32())
	if count < 0 || count > maxBatchItems {
		dec.SetError(fmt.Errorf("batch item count %d out of range", count))
	}
	if err := decodeErr(dec); err != nil {
		return err
	}

	type item struct {
		sql    string
		params []protocol.Value
	}
	items := make([]item, count)
	for i := range items {
		if dec.Error() != nil {
			break
		}
		if prepared {
			paramCount := int(dec.Int32())
			if paramCount < 0 || paramCount > maxBindParams {
				dec.SetError(fmt.Errorf("bind parameter count %d out of range", paramCount))
				break
			}
			params := make([]protocol.Value, 0, paramCount)
			for j := 0; j < paramCount; j++ {
				params = append(params, protocol.ReadValue(dec))
			}
			items[i].params = params
		} else {
			items[i].sql, _ = dec.String()
		}
	}
	if err := decodeErr(dec); err != nil {
		return err
	}

	s, err := c.session(connID)
	if err != nil {
		return c.replyError(op, err, protocol.KindExecution)
	}

	var st protocol.PreparedStatement
	if prepared {
		st, err = c.cachedStatement(statementID)
		if err != nil {
			return c.replyError(op, err, protocol.KindExecution)
		}
	}

	before := s.ModificationID()
	c.submitCommand(&PreparedCommand{ConnID: connID, Session: s, Statement: st, Run: func() {
		counts := make([]int32, len(items))
		for i, it := range items {
			stmt := st
			var perr error
			if !prepared {
				stmt, perr = s.PrepareStatement(it.sql, 0)
			}
			if perr != nil {
				counts[i] = protocol.ExecuteFailed
				continue
			}
			n, uerr := stmt.Update(context.Background())
			if uerr != nil {
				counts[i] = protocol.ExecuteFailed
				continue
			}
			counts[i] = int32(n)
		}
		status := statusFor(s, before)
		werr := c.withWrite(func(t *protocol.Transfer) {
			t.BeginResponse(op)
			t.Status(status)
			t.Int32(int32(len(counts)))
			for _, n := range counts {
				t.Int32(n)
			}
		})
		if werr != nil {
			c.logger.Error("failed writing batch response", "err", werr)
		}
	}})
	return nil
}
