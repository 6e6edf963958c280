package protocol

import "encoding/binary"

// maxReasonablePacket bounds the tail buffer so a malicious or broken
// peer claiming a huge packetLength cannot make the reassembler grow
// without limit. Connection applies the
// configured MaxFrameSize on top of this hard ceiling.
const maxReasonablePacket = 1 << 30 // 1 GiB

// Reassembler accumulates arbitrary TCP byte chunks into whole
// length-prefixed packets and hands them to the dispatcher in the exact
// order they arrived on the wire.
//
// Reassembler is not safe for concurrent use; it is owned by exactly one
// Connection's reactor goroutine.
type Reassembler struct {
	tail        []byte
	maxFrameLen int
}

// NewReassembler creates a Reassembler that rejects any declared packet
// length greater than maxFrameLen (0 means use the hard ceiling only).
func NewReassembler(maxFrameLen int) *Reassembler {
	if maxFrameLen <= 0 || maxFrameLen > maxReasonablePacket {
		maxFrameLen = maxReasonablePacket
	}
	return &Reassembler{maxFrameLen: maxFrameLen}
}

// ErrFrameTooLarge is returned by Feed when a declared packetLength
// exceeds the configured maximum.
type ErrFrameTooLarge struct {
	Declared int
	Max      int
}

func (e *ErrFrameTooLarge) Error() string {
	return "protocol: declared frame length exceeds maximum"
}

// Feed appends chunk to the pending tail and returns every whole packet
// (payload only, length prefix stripped) that can now be extracted, in
// wire order. A short trailing fragment is retained internally and
// prepended to the next Feed call.
func (r *Reassembler) Feed(chunk []byte) ([][]byte, error) {
	if len(r.tail) > 0 {
		buf := make([]byte, 0, len(r.tail)+len(chunk))
		buf = append(buf, r.tail...)
		buf = append(buf, chunk...)
		r.tail = nil
		chunk = buf
	}

	var packets [][]byte
	for {
		if len(chunk) < LengthPrefixSize {
			break
		}
		n := int(binary.BigEndian.Uint32(chunk[:LengthPrefixSize]))
		if n < 0 || n > r.maxFrameLen {
			return packets, &ErrFrameTooLarge{Declared: n, Max: r.maxFrameLen}
		}
		total := LengthPrefixSize + n
		if len(chunk) < total {
			break
		}
		packets = append(packets, chunk[LengthPrefixSize:total])
		chunk = chunk[total:]
	}

	if len(chunk) > 0 {
		r.tail = append([]byte(nil), chunk...)
	}
	return packets, nil
}

// Pending returns the number of bytes currently held as an incomplete
// trailing fragment (for diagnostics/tests).
func (r *Reassembler) Pending() int { return len(r.tail) }
