package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/lealone-go/tcpserver/internal/protocol/encoding"
)

// LengthPrefixSize is the size of the u32 packet length field that
// precedes every wire packet.
const LengthPrefixSize = 4

// Header is the first field of every packet payload: an i32 where bit 0
// is the direction (0 request, 1 response) and the remaining bits are
// the opcode.
type Header struct {
	OpCode     OpCode
	IsResponse bool
}

func (h Header) encode() int32 {
	dir := int32(0)
	if h.IsResponse {
		dir = 1
	}
	return int32(h.OpCode)<<1 | dir
}

func decodeHeader(raw int32) Header {
	return Header{
		OpCode:     OpCode(raw >> 1),
		IsResponse: raw&1 == 1,
	}
}

// ReadPacketHeader splits a whole packet payload (as produced by the
// Buffer Reassembler) into its Header and the remaining bytes.
func ReadPacketHeader(payload []byte) (Header, []byte, error) {
	if len(payload) < 4 {
		return Header{}, nil, fmt.Errorf("protocol: packet shorter than header (%d bytes)", len(payload))
	}
	raw := int32(binary.BigEndian.Uint32(payload[:4]))
	return decodeHeader(raw), payload[4:], nil
}

// Transfer is the frame codec. One Transfer
// is owned by one Connection. The read side decodes whole packets
// handed to it by the Buffer Reassembler; the write side stages an
// outbound response in memory so that a mid-response failure can Reset
// and replace it with an error packet instead of appending to it.
type Transfer struct {
	w      io.Writer
	macKey []byte

	out    bytes.Buffer
	enc    *encoding.Encoder
	header Header
	began  bool
}

// NewTransfer creates a Transfer writing finished packets to w. macKey is
// the per-connection key used to verify LOB HMACs on read.
func NewTransfer(w io.Writer, macKey []byte) *Transfer {
	t := &Transfer{w: w, macKey: macKey}
	t.enc = encoding.NewEncoder(&t.out)
	return t
}

// NewDecoder returns a fresh Decoder over a single packet's payload
// (header already stripped by ReadPacketHeader).
func NewDecoder(payload []byte) *encoding.Decoder {
	return encoding.NewDecoder(bytes.NewReader(payload))
}

// VerifyLobMAC checks a LOB value's HMAC against this connection's key.
func (t *Transfer) VerifyLobMAC(v LobValue) bool {
	return VerifyLobMAC(t.macKey, v.LobID, v.MAC)
}

// MintLobMAC computes a LOB HMAC under this connection's key, for
// replies that hand back a freshly minted LOB locator.
func (t *Transfer) MintLobMAC(lobID int64) [LobMACSize]byte {
	return LobMAC(t.macKey, lobID)
}

// BeginResponse stages a new outbound response packet for opCode,
// discarding any previously staged, unflushed bytes (i.e. implicitly
// Reset()s first). Exactly one of BeginResponse/BeginRequest must be
// called before any field writer and before Flush.
func (t *Transfer) BeginResponse(opCode OpCode) {
	t.Reset()
	t.header = Header{OpCode: opCode, IsResponse: true}
	t.began = true
	t.enc.Int32(t.header.encode())
}

// BeginRequest stages a new outbound request packet, used only when
// this Transfer is driving the client side of the protocol.
func (t *Transfer) BeginRequest(opCode OpCode) {
	t.Reset()
	t.header = Header{OpCode: opCode, IsResponse: false}
	t.began = true
	t.enc.Int32(t.header.encode())
}

// Reset discards any partially written response bytes and rewinds to
// the start of the current outbound packet. Called
// automatically by BeginResponse/BeginRequest, and explicitly by
// WriteError on mid-response failure.
func (t *Transfer) Reset() {
	t.out.Reset()
	t.began = false
}

// Status writes the response status prefix.
func (t *Transfer) Status(s Status) { t.enc.Int32(int32(s)) }

// Bool writes a boolean field.
func (t *Transfer) Bool(v bool) { t.enc.Bool(v) }

// Int32 writes an i32 field.
func (t *Transfer) Int32(v int32) { t.enc.Int32(v) }

// Int64 writes an i64 field.
func (t *Transfer) Int64(v int64) { t.enc.Int64(v) }

// String writes a length-prefixed UTF-8 string field; ok=false encodes
// the wire null-string length.
func (t *Transfer) String(s string, ok bool) { t.enc.String(s, ok) }

// ByteArray writes a length-prefixed byte array field.
func (t *Transfer) ByteArray(p []byte) { t.enc.ByteArray(p) }

// Bytes writes p verbatim with no length prefix, for fixed-width fields
// such as a LOB HMAC.
func (t *Transfer) Bytes(p []byte) { t.enc.Bytes(p) }

// Value writes a typed Value field.
func (t *Transfer) Value(v Value) { WriteValue(t.enc, v) }

// Flush writes the staged packet to the underlying writer as
// u32-length-prefix + payload, and clears the stage. It is an error to
// call Flush without a preceding BeginResponse/BeginRequest.
func (t *Transfer) Flush() error {
	if !t.began {
		return fmt.Errorf("protocol: Flush called with no packet staged")
	}
	if err := t.enc.Error(); err != nil {
		t.Reset()
		return err
	}
	payload := t.out.Bytes()
	var lenPrefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(payload)))
	if _, err := t.w.Write(lenPrefix[:]); err != nil {
		t.Reset()
		return err
	}
	if _, err := t.w.Write(payload); err != nil {
		t.Reset()
		return err
	}
	t.Reset()
	return nil
}

// StagedLen returns the number of bytes staged so far, for tests
// asserting that a frame's declared length equals its payload size.
func (t *Transfer) StagedLen() int { return t.out.Len() }
