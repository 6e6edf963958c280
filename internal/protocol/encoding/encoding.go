// Package encoding implements the primitive binary readers and writers
// used by the wire protocol: fixed-width integers, length-prefixed
// strings and byte arrays, and a sticky read/write error that lets
// callers chain many small reads without checking an error after each
// one.
package encoding

import (
	"encoding/binary"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const scratchSize = 4096

// Decoder reads primitive wire values from an io.Reader. Read errors are
// sticky: once set, further reads become no-ops and return zero values,
// so callers can decode a whole parameter tuple and check Error once at
// the end rather than after every field.
type Decoder struct {
	rd  io.Reader
	err error
	b   [scratchSize]byte
	cnt int64
}

// NewDecoder creates a Decoder reading from rd.
func NewDecoder(rd io.Reader) *Decoder { return &Decoder{rd: rd} }

// Error returns the first read error encountered, if any.
func (d *Decoder) Error() error { return d.err }

// ResetError returns and clears the sticky error.
func (d *Decoder) ResetError() error {
	err := d.err
	d.err = nil
	return err
}

// SetError injects err as the sticky decode error, for callers that
// validate a decoded value (a length or count field) and need the
// failure to flow through the same path as a short read. The first
// error wins.
func (d *Decoder) SetError(err error) {
	if d.err == nil {
		d.err = err
	}
}

// Cnt returns the number of bytes successfully read so far.
func (d *Decoder) Cnt() int64 { return d.cnt }

func (d *Decoder) readFull(p []byte) {
	if d.err != nil {
		return
	}
	n, err := io.ReadFull(d.rd, p)
	d.cnt += int64(n)
	d.err = err
}

// Skip discards n bytes.
func (d *Decoder) Skip(n int) {
	for n > 0 {
		chunk := n
		if chunk > scratchSize {
			chunk = scratchSize
		}
		d.readFull(d.b[:chunk])
		if d.err != nil {
			return
		}
		n -= chunk
	}
}

// Byte reads a single byte.
func (d *Decoder) Byte() byte {
	d.readFull(d.b[:1])
	return d.b[0]
}

// Bool reads a boolean byte.
func (d *Decoder) Bool() bool { return d.Byte() != 0 }

// Bytes reads len(p) bytes into p.
func (d *Decoder) Bytes(p []byte) { d.readFull(p) }

// Int32 reads a big-endian 32 bit signed integer.
func (d *Decoder) Int32() int32 {
	d.readFull(d.b[:4])
	return int32(binary.BigEndian.Uint32(d.b[:4]))
}

// Uint32 reads a big-endian 32 bit unsigned integer.
func (d *Decoder) Uint32() uint32 {
	d.readFull(d.b[:4])
	return binary.BigEndian.Uint32(d.b[:4])
}

// Int64 reads a big-endian 64 bit signed integer.
func (d *Decoder) Int64() int64 {
	d.readFull(d.b[:8])
	return int64(binary.BigEndian.Uint64(d.b[:8]))
}

// String reads a length-prefixed UTF-8 string; a length of -1 decodes
// to ok=false (the wire "null string" encoding).
func (d *Decoder) String() (s string, ok bool) {
	n := d.Int32()
	if d.err != nil {
		return "", false
	}
	if n < 0 {
		return "", false
	}
	buf := make([]byte, n)
	d.readFull(buf)
	if d.err != nil {
		return "", false
	}
	return string(buf), true
}

// ByteArray reads a length-prefixed byte array; a length of -1 decodes
// to a nil slice.
func (d *Decoder) ByteArray() []byte {
	n := d.Int32()
	if d.err != nil || n < 0 {
		return nil
	}
	buf := make([]byte, n)
	d.readFull(buf)
	if d.err != nil {
		return nil
	}
	return buf
}

// Encoder writes primitive wire values to an io.Writer. Like Decoder,
// write errors are sticky.
type Encoder struct {
	wr  io.Writer
	err error
	b   [8]byte
}

// NewEncoder creates an Encoder writing to wr.
func NewEncoder(wr io.Writer) *Encoder { return &Encoder{wr: wr} }

// Error returns the first write error encountered, if any.
func (e *Encoder) Error() error { return e.err }

func (e *Encoder) write(p []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.wr.Write(p)
}

// Byte writes a single byte.
func (e *Encoder) Byte(b byte) { e.write([]byte{b}) }

// Bool writes a boolean as a single byte.
func (e *Encoder) Bool(b bool) {
	if b {
		e.Byte(1)
	} else {
		e.Byte(0)
	}
}

// Bytes writes p verbatim.
func (e *Encoder) Bytes(p []byte) { e.write(p) }

// Int32 writes a big-endian 32 bit signed integer.
func (e *Encoder) Int32(v int32) {
	binary.BigEndian.PutUint32(e.b[:4], uint32(v))
	e.write(e.b[:4])
}

// Uint32 writes a big-endian 32 bit unsigned integer.
func (e *Encoder) Uint32(v uint32) {
	binary.BigEndian.PutUint32(e.b[:4], v)
	e.write(e.b[:4])
}

// Int64 writes a big-endian 64 bit signed integer.
func (e *Encoder) Int64(v int64) {
	binary.BigEndian.PutUint64(e.b[:8], uint64(v))
	e.write(e.b[:8])
}

// String writes s as a length-prefixed UTF-8 string. Passing ok=false
// writes the -1 "null string" length with no payload.
func (e *Encoder) String(s string, ok bool) {
	if !ok {
		e.Int32(-1)
		return
	}
	e.Int32(int32(len(s)))
	e.write([]byte(s))
}

// ByteArray writes p as a length-prefixed byte array; a nil p writes a
// -1 length with no payload.
func (e *Encoder) ByteArray(p []byte) {
	if p == nil {
		e.Int32(-1)
		return
	}
	e.Int32(int32(len(p)))
	e.write(p)
}

// ValidateUTF8 runs s through the golang.org/x/text UTF-8 decoder and
// reports whether it decodes cleanly. The decoder replaces ill-formed
// bytes with U+FFFD, so any difference between input and output marks
// s as malformed. No normalization is applied. The server rejects
// session properties that fail this check rather than letting
// malformed text reach the storage engine.
func ValidateUTF8(s string) bool {
	out, _, err := transform.String(unicode.UTF8.NewDecoder(), s)
	return err == nil && out == s
}
