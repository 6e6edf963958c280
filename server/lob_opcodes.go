package server

import (
	"io"

	"github.com/lealone-go/tcpserver/internal/protocol"
	"github.com/lealone-go/tcpserver/internal/protocol/encoding"
)

// handleCommandReadLob streams a chunk of a LOB from the per-connection
// LOB Read Cache, verifying the HMAC the client echoes back from the
// locator it was originally handed. A request whose offset matches
// the cached stream's tracked position
// reuses it without reopening; otherwise the cache reopens and seeks.
// The requested length is capped at 16 * IO_BUFFER_SIZE; short reads
// are permitted.
func (c *Connection) handleCommandReadLob(dec *encoding.Decoder) error {
	connID := dec.Int32()
	lobID := dec.Int64()
	var mac [protocol.LobMACSize]byte
	dec.Bytes(mac[:])
	offset := dec.Int64()
	want := dec.Int64()
	if err := decodeErr(dec); err != nil {
		return err
	}

	s, err := c.session(connID)
	if err != nil {
		return c.replyError(protocol.OpCommandReadLob, err, protocol.KindExecution)
	}
	if !protocol.VerifyLobMAC(c.macKey, lobID, mac) {
		return c.replyError(protocol.OpCommandReadLob, lobIntegrityError{lobID: lobID}, protocol.KindProtocol)
	}

	if max := c.cfg.MaxLobReadLength(); want > max {
		want = max
	}
	if want < 0 {
		want = 0
	}

	entry, _, err := c.lobCache().Open(s.GetLobStorage(), lobID, mac, offset)
	if err != nil {
		return c.replyError(protocol.OpCommandReadLob, err, protocol.KindExecution)
	}

	buf := make([]byte, want)
	n, rerr := io.ReadFull(entry.Stream, buf)
	if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
		rerr = nil
	}
	if rerr != nil {
		return c.replyError(protocol.OpCommandReadLob, rerr, protocol.KindExecution)
	}
	c.lobCache().Advance(entry, int64(n))

	return c.withWrite(func(t *protocol.Transfer) {
		t.BeginResponse(protocol.OpCommandReadLob)
		t.Status(protocol.StatusOK)
		t.Int32(int32(n))
		t.ByteArray(buf[:n])
	})
}

type lobIntegrityError struct{ lobID int64 }

func (e lobIntegrityError) Error() string {
	return "server: lob HMAC verification failed"
}
