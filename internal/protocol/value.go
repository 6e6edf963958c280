package protocol

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"github.com/lealone-go/tcpserver/internal/protocol/encoding"
)

// ValueTag identifies the wire encoding of a typed Value.
type ValueTag byte

// Tag numeric values are part of the wire ABI.
const (
	TagNull    ValueTag = 0x00
	TagInt32   ValueTag = 0x01
	TagInt64   ValueTag = 0x02
	TagDecimal ValueTag = 0x03 // decoded/encoded as a string; no fixed-point type owned by this layer
	TagString  ValueTag = 0x04
	TagBytes   ValueTag = 0x05
	TagLob     ValueTag = 0x06
	TagArray   ValueTag = 0x07
)

func (t ValueTag) String() string {
	switch t {
	case TagNull:
		return "NULL"
	case TagInt32:
		return "INT32"
	case TagInt64:
		return "INT64"
	case TagDecimal:
		return "DECIMAL"
	case TagString:
		return "STRING"
	case TagBytes:
		return "BYTES"
	case TagLob:
		return "LOB"
	case TagArray:
		return "ARRAY"
	default:
		return fmt.Sprintf("TAG(0x%02x)", byte(t))
	}
}

// maxArrayElements bounds the element count of a wire array value so a
// malformed frame cannot drive a huge pre-allocation before the sticky
// decode error is ever checked.
const maxArrayElements = 1 << 16

// LobMACSize is the size in bytes of a LOB's HMAC-SHA256 authentication
// code.
const LobMACSize = sha256.Size

// LobValue is the payload carried by a TagLob-tagged Value: a LOB is
// never sent inline, only its locator and integrity code.
type LobValue struct {
	LobID     int64
	Length    int64
	MAC       [LobMACSize]byte
	Precision int32
}

// Value is a single typed SQL value as carried on the wire. Exactly one
// of the typed fields is meaningful, selected by Tag; IsNull is true iff
// Tag == TagNull.
type Value struct {
	Tag     ValueTag
	IsNull  bool
	Int     int64
	Str     string
	Bytes   []byte
	Lob     LobValue
	Array   []Value
}

// NullValue returns the wire-null Value.
func NullValue() Value { return Value{Tag: TagNull, IsNull: true} }

// Int32Value returns a tagged 32 bit integer Value.
func Int32Value(v int32) Value { return Value{Tag: TagInt32, Int: int64(v)} }

// Int64Value returns a tagged 64 bit integer Value.
func Int64Value(v int64) Value { return Value{Tag: TagInt64, Int: v} }

// StringValue returns a tagged string Value.
func StringValue(s string) Value { return Value{Tag: TagString, Str: s} }

// BytesValue returns a tagged byte-array Value.
func BytesValue(b []byte) Value { return Value{Tag: TagBytes, Bytes: b} }

// LobMAC computes the per-connection HMAC-SHA256 over a LOB id. The
// same key must be used to verify on read; READ_LOB requests carry only
// the id and the echoed MAC, so the MAC binds the id alone.
func LobMAC(key []byte, lobID int64) [LobMACSize]byte {
	mac := hmac.New(sha256.New, key)
	var buf [8]byte
	putInt64(buf[:], lobID)
	mac.Write(buf[:])
	var out [LobMACSize]byte
	copy(out[:], mac.Sum(nil))
	return out
}

func putInt64(b []byte, v int64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

// VerifyLobMAC reports whether mac authenticates lobID under key.
func VerifyLobMAC(key []byte, lobID int64, mac [LobMACSize]byte) bool {
	want := LobMAC(key, lobID)
	return hmac.Equal(want[:], mac[:])
}

// ReadValue decodes a typed Value from dec.
func ReadValue(dec *encoding.Decoder) Value {
	tag := ValueTag(dec.Byte())
	switch tag {
	case TagNull:
		return Value{Tag: TagNull, IsNull: true}
	case TagInt32:
		return Value{Tag: TagInt32, Int: int64(dec.Int32())}
	case TagInt64:
		return Value{Tag: TagInt64, Int: dec.Int64()}
	case TagDecimal, TagString:
		s, _ := dec.String()
		return Value{Tag: tag, Str: s}
	case TagBytes:
		return Value{Tag: TagBytes, Bytes: dec.ByteArray()}
	case TagLob:
		v := Value{Tag: TagLob}
		v.Lob.LobID = dec.Int64()
		v.Lob.Length = dec.Int64()
		dec.Bytes(v.Lob.MAC[:])
		v.Lob.Precision = dec.Int32()
		return v
	case TagArray:
		n := int(dec.Int32())
		if n < 0 || n > maxArrayElements {
			dec.SetError(fmt.Errorf("protocol: array value count %d out of range", n))
			return Value{Tag: TagNull, IsNull: true}
		}
		v := Value{Tag: TagArray, Array: make([]Value, 0, n)}
		for i := 0; i < n; i++ {
			if dec.Error() != nil {
				break
			}
			v.Array = append(v.Array, ReadValue(dec))
		}
		return v
	default:
		return Value{Tag: TagNull, IsNull: true}
	}
}

// WriteValue encodes a typed Value to enc.
func WriteValue(enc *encoding.Encoder, v Value) {
	if v.IsNull {
		enc.Byte(byte(TagNull))
		return
	}
	enc.Byte(byte(v.Tag))
	switch v.Tag {
	case TagInt32:
		enc.Int32(int32(v.Int))
	case TagInt64:
		enc.Int64(v.Int)
	case TagDecimal, TagString:
		enc.String(v.Str, true)
	case TagBytes:
		enc.ByteArray(v.Bytes)
	case TagLob:
		enc.Int64(v.Lob.LobID)
		enc.Int64(v.Lob.Length)
		enc.Bytes(v.Lob.MAC[:])
		enc.Int32(v.Lob.Precision)
	case TagArray:
		enc.Int32(int32(len(v.Array)))
		for _, e := range v.Array {
			WriteValue(enc, e)
		}
	}
}
