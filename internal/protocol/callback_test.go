package protocol

import (
	"bytes"
	"testing"

	"github.com/lealone-go/tcpserver/internal/protocol/encoding"
)

func TestCallbackTableSingleShot(t *testing.T) {
	table := NewCallbackTable()
	invoked := 0
	id := table.Register(func(status Status, dec *encoding.Decoder) error {
		invoked++
		return nil
	})
	if table.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", table.Pending())
	}
	if err := table.Dispatch(id, StatusOK, NewDecoder(nil)); err != nil {
		t.Fatal(err)
	}
	if invoked != 1 {
		t.Fatalf("callback invoked %d times, want 1", invoked)
	}
	if table.Pending() != 0 {
		t.Fatal("fulfilled callback should be removed")
	}
	if err := table.Dispatch(id, StatusOK, NewDecoder(nil)); err == nil {
		t.Fatal("a duplicate response must be rejected")
	}
}

func TestCallbackTableOutOfOrderCorrelation(t *testing.T) {
	table := NewCallbackTable()
	var got []int32
	first := table.Register(func(Status, *encoding.Decoder) error { got = append(got, 1); return nil })
	second := table.Register(func(Status, *encoding.Decoder) error { got = append(got, 2); return nil })

	// Responses arrive in reverse order; correlation is by id.
	if err := table.Dispatch(second, StatusOK, NewDecoder(nil)); err != nil {
		t.Fatal(err)
	}
	if err := table.Dispatch(first, StatusOK, NewDecoder(nil)); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != 2 || got[1] != 1 {
		t.Fatalf("got %v, want [2 1]", got)
	}
}

func TestUpdateCountCallback(t *testing.T) {
	var buf bytes.Buffer
	enc := encoding.NewEncoder(&buf)
	enc.Int64(42)

	var count int64
	var cbErr error
	cb := UpdateCountCallback(func(n int64, err error) { count, cbErr = n, err })
	if err := cb(StatusOK, encoding.NewDecoder(bytes.NewReader(buf.Bytes()))); err != nil {
		t.Fatal(err)
	}
	if cbErr != nil || count != 42 {
		t.Fatalf("got count %d err %v, want 42 nil", count, cbErr)
	}

	cb = UpdateCountCallback(func(n int64, err error) { count, cbErr = n, err })
	if err := cb(StatusError, encoding.NewDecoder(bytes.NewReader(nil))); err != nil {
		t.Fatal(err)
	}
	if cbErr == nil {
		t.Fatal("an error status must surface as an error to the receiver")
	}
}
