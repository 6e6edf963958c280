package server

import (
	"github.com/lealone-go/tcpserver/internal/protocol"
	"github.com/lealone-go/tcpserver/internal/protocol/encoding"
)

// Distributed transaction control opcodes are direct-reply: they are
// cheap bookkeeping calls into the Transaction collaborator, not SQL
// execution, so they run synchronously on the reactor goroutine and
// ordering is preserved for free.

func (c *Connection) handleDistributedCommit(dec *encoding.Decoder) error {
	connID := dec.Int32()
	local := dec.Bool()
	txNames, _ := dec.String()
	if err := decodeErr(dec); err != nil {
		return err
	}
	s, err := c.session(connID)
	if err != nil {
		return c.replyError(protocol.OpDistributedTransactionCommit, err, protocol.KindExecution)
	}
	if err := s.GetTransaction().Commit(local, txNames); err != nil {
		return c.replyError(protocol.OpDistributedTransactionCommit, err, protocol.KindExecution)
	}
	return c.replyStatusOnly(protocol.OpDistributedTransactionCommit, protocol.StatusOK)
}

func (c *Connection) handleDistributedRollback(dec *encoding.Decoder) error {
	connID := dec.Int32()
	if err := decodeErr(dec); err != nil {
		return err
	}
	s, err := c.session(connID)
	if err != nil {
		return c.replyError(protocol.OpDistributedTransactionRollback, err, protocol.KindExecution)
	}
	if err := s.GetTransaction().Rollback(); err != nil {
		return c.replyError(protocol.OpDistributedTransactionRollback, err, protocol.KindExecution)
	}
	return c.replyStatusOnly(protocol.OpDistributedTransactionRollback, protocol.StatusOK)
}

func (c *Connection) handleDistributedAddSavepoint(dec *encoding.Decoder) error {
	connID := dec.Int32()
	name, _ := dec.String()
	if err := decodeErr(dec); err != nil {
		return err
	}
	s, err := c.session(connID)
	if err != nil {
		return c.replyError(protocol.OpDistributedTransactionAddSavepoint, err, protocol.KindExecution)
	}
	if err := s.GetTransaction().AddSavepoint(name); err != nil {
		return c.replyError(protocol.OpDistributedTransactionAddSavepoint, err, protocol.KindExecution)
	}
	return c.replyStatusOnly(protocol.OpDistributedTransactionAddSavepoint, protocol.StatusOK)
}

func (c *Connection) handleDistributedRollbackSavepoint(dec *encoding.Decoder) error {
	connID := dec.Int32()
	name, _ := dec.String()
	if err := decodeErr(dec); err != nil {
		return err
	}
	s, err := c.session(connID)
	if err != nil {
		return c.replyError(protocol.OpDistributedTransactionRollbackSavepoint, err, protocol.KindExecution)
	}
	if err := s.GetTransaction().RollbackToSavepoint(name); err != nil {
		return c.replyError(protocol.OpDistributedTransactionRollbackSavepoint, err, protocol.KindExecution)
	}
	return c.replyStatusOnly(protocol.OpDistributedTransactionRollbackSavepoint, protocol.StatusOK)
}

func (c *Connection) handleDistributedValidate(dec *encoding.Decoder) error {
	connID := dec.Int32()
	if err := decodeErr(dec); err != nil {
		return err
	}
	s, err := c.session(connID)
	if err != nil {
		return c.replyError(protocol.OpDistributedTransactionValidate, err, protocol.KindExecution)
	}
	valid, err := s.GetTransaction().Validate()
	if err != nil {
		return c.replyError(protocol.OpDistributedTransactionValidate, err, protocol.KindExecution)
	}
	return c.withWrite(func(t *protocol.Transfer) {
		t.BeginResponse(protocol.OpDistributedTransactionValidate)
		t.Status(protocol.StatusOK)
		t.Bool(valid)
	})
}
