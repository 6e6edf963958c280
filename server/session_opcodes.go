package server

import (
	"fmt"
	"strings"

	"github.com/lealone-go/tcpserver/internal/protocol"
	"github.com/lealone-go/tcpserver/internal/protocol/encoding"
)

// handleSessionInit negotiates the protocol version and opens the
// control session for this connection. The client sends
// the version range it supports; the server picks the current version
// when the range covers it and the client's minimum otherwise, and
// rejects a minimum outside its own supported range. Any failure on
// this path sends an error frame and stops the connection.
func (c *Connection) handleSessionInit(dec *encoding.Decoder) error {
	minVersion := dec.Int32()
	maxVersion := dec.Int32()
	db, _ := dec.String()
	url, _ := dec.String()
	user, _ := dec.String()
	userPasswordHash := dec.ByteArray()
	filePasswordHash := dec.ByteArray()
	fileEncryptKey := dec.ByteArray()
	propCount := int(dec.Int32())
	if propCount < 0 || propCount > maxSessionProps {
		dec.SetError(fmt.Errorf("connection property count %d out of range", propCount))
	}
	if err := decodeErr(dec); err != nil {
		return err
	}
	props := make(map[string]string, propCount)
	for i := 0; i < propCount; i++ {
		k, _ := dec.String()
		v, _ := dec.String()
		props[k] = v
	}
	if err := decodeErr(dec); err != nil {
		return err
	}

	fail := func(err error, kind protocol.ErrorKind) error {
		werr := c.replyError(protocol.OpSessionInit, err, kind)
		c.stop.Store(true)
		return werr
	}

	if minVersion < protocol.TCPProtocolVersionMin || minVersion > protocol.TCPProtocolVersionMax {
		return fail(unsupportedVersionError{min: minVersion, max: maxVersion}, protocol.KindProtocol)
	}
	version := minVersion
	if minVersion <= protocol.TCPProtocolVersionCurrent && protocol.TCPProtocolVersionCurrent <= maxVersion {
		version = protocol.TCPProtocolVersionCurrent
	}
	c.clientVersion = version

	for _, s := range []string{db, url, user} {
		if !encoding.ValidateUTF8(s) {
			return fail(fmt.Errorf("server: malformed text in connection parameters"), protocol.KindProtocol)
		}
	}
	user = strings.ToUpper(user)

	if c.authValidator != nil {
		if err := c.authValidator(user, userPasswordHash); err != nil {
			return fail(err, protocol.KindAuthSetup)
		}
	}

	info := protocol.ConnectionInfo{
		Database:       db,
		URL:            url,
		User:           user,
		PasswordHashes: [][]byte{userPasswordHash, filePasswordHash},
		FileEncryptKey: fileEncryptKey,
		Properties:     props,
		BaseDir:        c.cfg.BaseDir,
		IfExists:       c.cfg.IfExists,
		IsLocal:        c.cfg.IsLocal,
	}
	c.sessions.info = info

	s, err := c.sessions.factory(info)
	if err != nil {
		return fail(err, protocol.KindAuthSetup)
	}
	if props["IS_LOCAL"] == "true" {
		s.SetLocal(true)
	}
	c.primary = s

	return c.withWrite(func(t *protocol.Transfer) {
		t.BeginResponse(protocol.OpSessionInit)
		t.Status(protocol.StatusOK)
		t.Int32(version)
	})
}

type unsupportedVersionError struct{ min, max int32 }

func (e unsupportedVersionError) Error() string {
	return fmt.Sprintf("server: unsupported client protocol version range [%d, %d]", e.min, e.max)
}

// handleSessionSetID records the peer-assigned session id and replies
// with the control session's auto-commit flag.
func (c *Connection) handleSessionSetID(dec *encoding.Decoder) error {
	sessionID, _ := dec.String()
	if err := decodeErr(dec); err != nil {
		return err
	}
	if c.primary == nil {
		return c.replyError(protocol.OpSessionSetID, fmt.Errorf("server: no session established"), protocol.KindProtocol)
	}
	c.sessionID = sessionID
	return c.withWrite(func(t *protocol.Transfer) {
		t.BeginResponse(protocol.OpSessionSetID)
		t.Status(protocol.StatusOK)
		t.Bool(c.primary.IsAutoCommit())
	})
}

func (c *Connection) handleSessionSetAutoCommit(dec *encoding.Decoder) error {
	connID := dec.Int32()
	autoCommit := dec.Bool()
	if err := decodeErr(dec); err != nil {
		return err
	}
	s, err := c.session(connID)
	if err != nil {
		return c.replyError(protocol.OpSessionSetAutoCommit, err, protocol.KindExecution)
	}
	s.SetAutoCommit(autoCommit)
	return c.replyStatusOnly(protocol.OpSessionSetAutoCommit, protocol.StatusOK)
}

func (c *Connection) handleSessionClose(dec *encoding.Decoder) error {
	connID := dec.Int32()
	if err := decodeErr(dec); err != nil {
		return err
	}
	if err := c.sessions.Close(connID); err != nil {
		return c.replyError(protocol.OpSessionClose, err, protocol.KindExecution)
	}
	return c.replyStatusOnly(protocol.OpSessionClose, protocol.StatusClosed)
}

// handleSessionCancelStatement evicts the addressed statement and calls
// cancel then close on it; the worker currently executing it is
// expected to observe cancellation cooperatively.
func (c *Connection) handleSessionCancelStatement(dec *encoding.Decoder) error {
	connID := dec.Int32()
	statementID := dec.Int32()
	if err := decodeErr(dec); err != nil {
		return err
	}
	if _, err := c.session(connID); err != nil {
		return c.replyError(protocol.OpSessionCancelStatement, err, protocol.KindExecution)
	}
	if obj, ok := c.objects.FreeObject(statementID); ok && obj.Kind == protocol.CachedStatement {
		if st, ok := obj.Statement.(protocol.PreparedStatement); ok {
			st.Cancel()
			st.Close()
		}
	}
	return c.replyStatusOnly(protocol.OpSessionCancelStatement, protocol.StatusOK)
}
