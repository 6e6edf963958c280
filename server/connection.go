package server

import (
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/lealone-go/tcpserver/internal/auth"
	"github.com/lealone-go/tcpserver/internal/protocol"
	"github.com/lealone-go/tcpserver/internal/protocol/encoding"
)

// connCounter numbers accepted connections for log correlation.
var connCounter atomic.Uint64

// Wire-sanity bounds on client-supplied count fields, checked before
// any allocation sized by them: the reactor goroutine has no panic
// recovery, so a negative or absurd count must become a decode error,
// never a make() argument.
const (
	maxSessionProps = 1 << 10
	maxBatchItems   = 1 << 16
	maxBindParams   = 1 << 16
)

// Connection is one accepted TCP connection: the reactor goroutine that
// reads and reassembles packets, the shared codec used (under writeMu)
// by both the reactor and worker-pool goroutines to write replies, and
// the per-connection state that belongs to a socket: the session
// registry, the object cache, and the LOB read cache.
type Connection struct {
	cfg    protocol.Config
	conn   net.Conn
	logger *slog.Logger

	transfer *protocol.Transfer
	reasm    *protocol.Reassembler
	writeMu  sync.Mutex

	objects *protocol.ObjectCache

	lobsOnce sync.Once
	lobs     *protocol.LobCache

	sessions *SessionRegistry
	pool     *WorkerPool
	commands CommandQueue

	macKey        []byte
	authValidator auth.Validator

	// primary is the control session opened by SESSION_INIT, distinct
	// from the per-connectionId logical sessions in the registry.
	primary       protocol.Session
	sessionID     string
	clientVersion int32
	stop          atomic.Bool
}

// NewConnection wraps an accepted net.Conn. factory is used lazily by
// the SessionRegistry, with the ConnectionInfo that SESSION_INIT
// records once it names a database.
func NewConnection(conn net.Conn, cfg protocol.Config, factory protocol.SessionFactory, pool *WorkerPool, validator auth.Validator, logger *slog.Logger) *Connection {
	no := connCounter.Add(1)
	macKey := make([]byte, 32)
	_, _ = rand.Read(macKey)

	c := &Connection{
		cfg:           cfg,
		conn:          conn,
		logger:        logger.With(slog.Uint64("conn", no)),
		reasm:         protocol.NewReassembler(cfg.MaxFrameSize),
		objects:       protocol.NewObjectCache(cfg.ServerCachedObjects),
		pool:          pool,
		macKey:        macKey,
		authValidator: validator,
	}
	c.transfer = protocol.NewTransfer(conn, macKey)
	c.sessions = NewSessionRegistry(factory, protocol.ConnectionInfo{BaseDir: cfg.BaseDir, IfExists: cfg.IfExists, IsLocal: cfg.IsLocal})
	return c
}

func (c *Connection) lobCache() *protocol.LobCache {
	c.lobsOnce.Do(func() {
		c.lobs = protocol.NewLobCache(c.cfg.LobCacheCapacity())
	})
	return c.lobs
}

// Serve runs the reactor loop: read bytes, reassemble whole packets, and
// dispatch them in wire order. It returns once the connection is closed
// by either peer or torn down due to a protocol violation.
func (c *Connection) Serve() {
	defer c.teardown()
	buf := make([]byte, 64*1024)
	for !c.stop.Load() {
		n, err := c.conn.Read(buf)
		if n > 0 {
			packets, ferr := c.reasm.Feed(buf[:n])
			for _, pkt := range packets {
				if c.stop.Load() {
					return
				}
				if dispatchErr := c.dispatchPacket(pkt); dispatchErr != nil {
					c.logger.Error("protocol violation, closing connection", "err", dispatchErr)
					return
				}
			}
			if ferr != nil {
				c.logger.Error("frame too large, closing connection", "err", ferr)
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				c.logger.Debug("connection read ended", "err", err)
			}
			return
		}
	}
}

// Stop requests the reactor loop to exit after its current read and
// closes the socket, unblocking that read.
func (c *Connection) Stop() {
	c.stop.Store(true)
	c.conn.Close()
}

func (c *Connection) teardown() {
	for _, err := range c.sessions.CloseAll() {
		c.logger.Warn("error tearing down session", "err", err)
	}
	if c.primary != nil && !c.primary.IsClosed() {
		if err := closeSession(c.primary); err != nil {
			c.logger.Warn("error tearing down control session", "err", err)
		}
	}
	if c.lobs != nil {
		c.lobs.Close()
	}
	c.conn.Close()
}

// dispatchPacket decodes the header and routes to the opcode handler. A
// returned error is a protocol-level failure (malformed frame, unknown
// opcode) that closes the connection; command-level failures are caught
// by the handler and written back as wire error packets instead of
// propagating here.
func (c *Connection) dispatchPacket(payload []byte) error {
	hdr, rest, err := protocol.ReadPacketHeader(payload)
	if err != nil {
		return err
	}
	if hdr.IsResponse {
		return fmt.Errorf("server: received a response-directed packet from client, opcode %s", hdr.OpCode)
	}
	dec := protocol.NewDecoder(rest)

	switch hdr.OpCode {
	case protocol.OpSessionInit:
		return c.handleSessionInit(dec)
	case protocol.OpSessionSetID:
		return c.handleSessionSetID(dec)
	case protocol.OpSessionSetAutoCommit:
		return c.handleSessionSetAutoCommit(dec)
	case protocol.OpSessionClose:
		return c.handleSessionClose(dec)
	case protocol.OpSessionCancelStatement:
		return c.handleSessionCancelStatement(dec)

	case protocol.OpCommandPrepare:
		return c.handleCommandPrepare(dec, false)
	case protocol.OpCommandPrepareReadParams:
		return c.handleCommandPrepare(dec, true)

	case protocol.OpCommandQuery:
		return c.submitQuery(hdr.OpCode, dec, queryModePlain)
	case protocol.OpCommandPreparedQuery:
		return c.submitQuery(hdr.OpCode, dec, queryModePrepared)
	case protocol.OpDistributedTransactionQuery:
		return c.submitQuery(hdr.OpCode, dec, queryModePlain|queryModeDistributed)
	case protocol.OpDistributedTransactionPreparedQuery:
		return c.submitQuery(hdr.OpCode, dec, queryModePrepared|queryModeDistributed)

	case protocol.OpCommandUpdate:
		return c.submitUpdate(hdr.OpCode, dec, updateModePlain)
	case protocol.OpCommandPreparedUpdate:
		return c.submitUpdate(hdr.OpCode, dec, updateModePrepared)
	case protocol.OpReplicationUpdate:
		return c.submitUpdate(hdr.OpCode, dec, updateModePlain|updateModeReplication)
	case protocol.OpReplicationPreparedUpdate:
		return c.submitUpdate(hdr.OpCode, dec, updateModePrepared|updateModeReplication)
	case protocol.OpDistributedTransactionUpdate:
		return c.submitUpdate(hdr.OpCode, dec, updateModePlain|updateModeDistributed)
	case protocol.OpDistributedTransactionPreparedUpdate:
		return c.submitUpdate(hdr.OpCode, dec, updateModePrepared|updateModeDistributed)

	case protocol.OpDistributedTransactionCommit:
		return c.handleDistributedCommit(dec)
	case protocol.OpDistributedTransactionRollback:
		return c.handleDistributedRollback(dec)
	case protocol.OpDistributedTransactionAddSavepoint:
		return c.handleDistributedAddSavepoint(dec)
	case protocol.OpDistributedTransactionRollbackSavepoint:
		return c.handleDistributedRollbackSavepoint(dec)
	case protocol.OpDistributedTransactionValidate:
		return c.handleDistributedValidate(dec)

	case protocol.OpCommandStoragePut:
		return c.handleStoragePut(dec)
	case protocol.OpCommandStorageGet:
		return c.handleStorageGet(dec)
	case protocol.OpStorageReplicationPut:
		return c.handleStorageReplicationPut(dec)
	case protocol.OpStorageDistributedPut:
		return c.handleStorageDistributedPut(dec)
	case protocol.OpStorageDistributedGet:
		return c.handleStorageDistributedGet(dec)
	case protocol.OpCommandStorageMoveLeafPage:
		return c.handleStorageMoveLeafPage(dec)
	case protocol.OpCommandStorageRemoveLeafPage:
		return c.handleStorageRemoveLeafPage(dec)

	case protocol.OpCommandGetMetaData:
		return c.handleGetMetaData(dec)

	case protocol.OpBatchStatementUpdate:
		return c.submitBatch(dec, false)
	case protocol.OpBatchStatementPreparedUpdate:
		return c.submitBatch(dec, true)

	case protocol.OpCommandClose:
		return c.handleCommandClose(dec)
	case protocol.OpResultClose:
		return c.handleResultClose(dec)
	case protocol.OpResultFetchRows:
		return c.handleResultFetchRows(dec)
	case protocol.OpResultReset:
		return c.handleResultReset(dec)
	case protocol.OpResultChangeID:
		return c.handleResultChangeID(dec)

	case protocol.OpCommandReadLob:
		return c.handleCommandReadLob(dec)

	default:
		return fmt.Errorf("server: unknown opcode %d", int32(hdr.OpCode))
	}
}

// withWrite serializes one reply-building sequence (BeginResponse ...
// Flush) against both the reactor goroutine and any worker-pool
// goroutine replying on this same Connection.
func (c *Connection) withWrite(fn func(t *protocol.Transfer)) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	fn(c.transfer)
	return c.transfer.Flush()
}

// replyStatusOnly writes a bare (status) response, the shape most
// session and transaction control opcodes use.
func (c *Connection) replyStatusOnly(op protocol.OpCode, status protocol.Status) error {
	return c.withWrite(func(t *protocol.Transfer) {
		t.BeginResponse(op)
		t.Status(status)
	})
}

// statusFor compares s's modificationId against the snapshot taken at
// request entry, reporting STATUS_OK_STATE_CHANGED instead of STATUS_OK
// when the command mutated session state, and STATUS_CLOSED if the
// session closed while the command ran.
func statusFor(s protocol.Session, before uint64) protocol.Status {
	if s.IsClosed() {
		return protocol.StatusClosed
	}
	if s.ModificationID() != before {
		return protocol.StatusOKStateChanged
	}
	return protocol.StatusOK
}

// replyError converts err into a WireError and writes it as the
// response for op, resetting any partially staged payload first.
// A protocol-kind error additionally
// requests connection stop after the error frame is flushed; a failed
// flush means the transport is gone, which also stops the connection.
func (c *Connection) replyError(op protocol.OpCode, err error, kind protocol.ErrorKind) error {
	we := protocol.ToWireError(err, kind)
	c.writeMu.Lock()
	werr := protocol.WriteError(c.transfer, op, we)
	c.writeMu.Unlock()
	if we.Kind == protocol.KindProtocol || werr != nil {
		c.stop.Store(true)
	}
	return werr
}

// decodeErr is a convenience check used after a batch of dec.* field
// reads: a malformed request packet is a protocol violation, not a
// command failure, and closes the connection.
func decodeErr(dec *encoding.Decoder) error {
	if err := dec.Error(); err != nil {
		return fmt.Errorf("server: malformed request: %w", err)
	}
	return nil
}

// session resolves connID to its logical Session, lazily creating one
// via the registry's factory.
func (c *Connection) session(connID int32) (protocol.Session, error) {
	return c.sessions.GetOrCreate(connID)
}

// submitCommand enqueues cmd on the per-connection queue and posts a
// drain token to the shared worker pool.
func (c *Connection) submitCommand(cmd *PreparedCommand) {
	c.commands.Push(cmd)
	c.pool.Submit(&PreparedCommand{ConnID: cmd.ConnID, Run: c.executeOneCommand})
}

// executeOneCommand drains and runs the head of the per-connection
// command queue.
func (c *Connection) executeOneCommand() {
	if cmd, ok := c.commands.Pop(); ok {
		cmd.Run()
	}
}
