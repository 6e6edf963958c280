package server

import (
	"github.com/lealone-go/tcpserver/internal/protocol"
	"github.com/lealone-go/tcpserver/internal/protocol/encoding"
)

// Storage opcodes are direct-reply: a single Get/Put against the
// out-of-scope StorageMap collaborator is cheap enough to run inline on
// the reactor goroutine.

func (c *Connection) storageMap(connID int32, name string) (protocol.StorageMap, protocol.Session, error) {
	s, err := c.session(connID)
	if err != nil {
		return nil, nil, err
	}
	m, err := s.GetStorageMap(name)
	return m, s, err
}

func (c *Connection) handleStoragePut(dec *encoding.Decoder) error {
	connID := dec.Int32()
	mapName, _ := dec.String()
	key := dec.ByteArray()
	value := dec.ByteArray()
	if err := decodeErr(dec); err != nil {
		return err
	}
	m, s, err := c.storageMap(connID, mapName)
	if err != nil {
		return c.replyError(protocol.OpCommandStoragePut, err, protocol.KindExecution)
	}
	before := s.ModificationID()
	prev, err := m.Put(key, value)
	if err != nil {
		return c.replyError(protocol.OpCommandStoragePut, err, protocol.KindExecution)
	}
	status := statusFor(s, before)
	return c.withWrite(func(t *protocol.Transfer) {
		t.BeginResponse(protocol.OpCommandStoragePut)
		t.Status(status)
		t.ByteArray(prev)
	})
}

func (c *Connection) handleStorageGet(dec *encoding.Decoder) error {
	connID := dec.Int32()
	mapName, _ := dec.String()
	key := dec.ByteArray()
	if err := decodeErr(dec); err != nil {
		return err
	}
	m, _, err := c.storageMap(connID, mapName)
	if err != nil {
		return c.replyError(protocol.OpCommandStorageGet, err, protocol.KindExecution)
	}
	value, found, err := m.Get(key)
	if err != nil {
		return c.replyError(protocol.OpCommandStorageGet, err, protocol.KindExecution)
	}
	return c.withWrite(func(t *protocol.Transfer) {
		t.BeginResponse(protocol.OpCommandStorageGet)
		t.Status(protocol.StatusOK)
		t.Bool(found)
		t.ByteArray(value)
	})
}

// handleStorageReplicationPut carries an extra replicationName prelude
// field ahead of the common put shape, then sets it on the session
// before writing.
func (c *Connection) handleStorageReplicationPut(dec *encoding.Decoder) error {
	connID := dec.Int32()
	replicationName, _ := dec.String()
	mapName, _ := dec.String()
	key := dec.ByteArray()
	value := dec.ByteArray()
	if err := decodeErr(dec); err != nil {
		return err
	}
	m, s, err := c.storageMap(connID, mapName)
	if err != nil {
		return c.replyError(protocol.OpStorageReplicationPut, err, protocol.KindExecution)
	}
	s.SetReplicationName(replicationName)
	before := s.ModificationID()
	prev, err := m.Put(key, value)
	if err != nil {
		return c.replyError(protocol.OpStorageReplicationPut, err, protocol.KindExecution)
	}
	status := statusFor(s, before)
	return c.withWrite(func(t *protocol.Transfer) {
		t.BeginResponse(protocol.OpStorageReplicationPut)
		t.Status(status)
		t.ByteArray(prev)
	})
}

// The distributed storage variants run the same autoCommit/root prelude
// as distributed SQL commands and echo the transaction's
// local-transaction-names string in the reply.
func (c *Connection) handleStorageDistributedPut(dec *encoding.Decoder) error {
	connID := dec.Int32()
	mapName, _ := dec.String()
	key := dec.ByteArray()
	value := dec.ByteArray()
	if err := decodeErr(dec); err != nil {
		return err
	}
	m, s, err := c.storageMap(connID, mapName)
	if err != nil {
		return c.replyError(protocol.OpStorageDistributedPut, err, protocol.KindExecution)
	}
	s.SetAutoCommit(false)
	s.SetRoot(false)
	before := s.ModificationID()
	prev, err := m.Put(key, value)
	if err != nil {
		return c.replyError(protocol.OpStorageDistributedPut, err, protocol.KindExecution)
	}
	status := statusFor(s, before)
	return c.withWrite(func(t *protocol.Transfer) {
		t.BeginResponse(protocol.OpStorageDistributedPut)
		t.Status(status)
		t.String(s.GetTransaction().LocalTransactionNames(), true)
		t.ByteArray(prev)
	})
}

func (c *Connection) handleStorageDistributedGet(dec *encoding.Decoder) error {
	connID := dec.Int32()
	mapName, _ := dec.String()
	key := dec.ByteArray()
	if err := decodeErr(dec); err != nil {
		return err
	}
	m, s, err := c.storageMap(connID, mapName)
	if err != nil {
		return c.replyError(protocol.OpStorageDistributedGet, err, protocol.KindExecution)
	}
	s.SetAutoCommit(false)
	s.SetRoot(false)
	value, found, err := m.Get(key)
	if err != nil {
		return c.replyError(protocol.OpStorageDistributedGet, err, protocol.KindExecution)
	}
	return c.withWrite(func(t *protocol.Transfer) {
		t.BeginResponse(protocol.OpStorageDistributedGet)
		t.Status(protocol.StatusOK)
		t.String(s.GetTransaction().LocalTransactionNames(), true)
		t.Bool(found)
		t.ByteArray(value)
	})
}

func (c *Connection) handleStorageMoveLeafPage(dec *encoding.Decoder) error {
	connID := dec.Int32()
	mapName, _ := dec.String()
	page := dec.ByteArray()
	if err := decodeErr(dec); err != nil {
		return err
	}
	m, _, err := c.storageMap(connID, mapName)
	if err != nil {
		return c.replyError(protocol.OpCommandStorageMoveLeafPage, err, protocol.KindExecution)
	}
	// A map without the replication capability accepts the mutation
	// silently.
	if repl, ok := m.Replication(); ok {
		if err := repl.AddLeafPage(page); err != nil {
			return c.replyError(protocol.OpCommandStorageMoveLeafPage, err, protocol.KindExecution)
		}
	}
	return c.replyStatusOnly(protocol.OpCommandStorageMoveLeafPage, protocol.StatusOK)
}

func (c *Connection) handleStorageRemoveLeafPage(dec *encoding.Decoder) error {
	connID := dec.Int32()
	mapName, _ := dec.String()
	pageKey := dec.ByteArray()
	if err := decodeErr(dec); err != nil {
		return err
	}
	m, _, err := c.storageMap(connID, mapName)
	if err != nil {
		return c.replyError(protocol.OpCommandStorageRemoveLeafPage, err, protocol.KindExecution)
	}
	if repl, ok := m.Replication(); ok {
		if err := repl.RemoveLeafPage(pageKey); err != nil {
			return c.replyError(protocol.OpCommandStorageRemoveLeafPage, err, protocol.KindExecution)
		}
	}
	return c.replyStatusOnly(protocol.OpCommandStorageRemoveLeafPage, protocol.StatusOK)
}
