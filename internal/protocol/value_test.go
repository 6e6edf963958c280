package protocol

import (
	"bytes"
	"testing"

	"github.com/lealone-go/tcpserver/internal/protocol/encoding"
)

func TestValueArrayRoundTrip(t *testing.T) {
	v := Value{Tag: TagArray, Array: []Value{
		Int32Value(1),
		StringValue("hi"),
		NullValue(),
		BytesValue([]byte{1, 2, 3}),
	}}

	var buf bytes.Buffer
	enc := encoding.NewEncoder(&buf)
	WriteValue(enc, v)
	if err := enc.Error(); err != nil {
		t.Fatal(err)
	}

	dec := encoding.NewDecoder(bytes.NewReader(buf.Bytes()))
	got := ReadValue(dec)
	if dec.Error() != nil {
		t.Fatal(dec.Error())
	}
	if len(got.Array) != 4 {
		t.Fatalf("got %d elements, want 4", len(got.Array))
	}
	if got.Array[0].Int != 1 || got.Array[1].Str != "hi" || !got.Array[2].IsNull {
		t.Fatalf("array mismatch: %+v", got.Array)
	}
	if !bytes.Equal(got.Array[3].Bytes, []byte{1, 2, 3}) {
		t.Fatalf("bytes mismatch: %+v", got.Array[3])
	}
}

// TestValueArrayRejectsBadCount feeds array values whose declared
// element count is negative or absurd; ReadValue must surface a decode
// error rather than sizing an allocation from the wire.
func TestValueArrayRejectsBadCount(t *testing.T) {
	for _, count := range []int32{-1, 1 << 24} {
		var buf bytes.Buffer
		enc := encoding.NewEncoder(&buf)
		enc.Byte(byte(TagArray))
		enc.Int32(count)

		dec := encoding.NewDecoder(bytes.NewReader(buf.Bytes()))
		got := ReadValue(dec)
		if dec.Error() == nil {
			t.Fatalf("count %d: expected a decode error", count)
		}
		if !got.IsNull {
			t.Fatalf("count %d: a rejected array should decode as null, got %+v", count, got)
		}
	}
}

func TestLobMACVerification(t *testing.T) {
	key := []byte("connection-key")
	mac := LobMAC(key, 42)
	if !VerifyLobMAC(key, 42, mac) {
		t.Fatal("expected verification to succeed with matching key and id")
	}
	if VerifyLobMAC(key, 43, mac) {
		t.Fatal("expected verification to fail when the lob id is tampered with")
	}
	if VerifyLobMAC([]byte("other-key"), 42, mac) {
		t.Fatal("expected verification to fail with the wrong key")
	}
}
