package protocol

import (
	"errors"
	"fmt"

	"github.com/lealone-go/tcpserver/internal/protocol/encoding"
)

// ErrorKind classifies a failure for propagation purposes.
type ErrorKind int

const (
	KindExecution ErrorKind = iota
	KindProtocol
	KindAuthSetup
	KindTransport
	KindCancelled
)

// CodeConnectionBroken is the wire error code signalling "reconnect
// permitted" on the client-side parse path.
const CodeConnectionBroken = 1

// WireError is the SQLException-shaped record the Error Encoder packs
// into the wire error packet: (sqlState, message, sql?,
// errorCode, stackTraceText).
type WireError struct {
	Kind       ErrorKind
	SQLState   string
	Message    string
	SQL        string
	HasSQL     bool
	ErrorCode  int32
	StackTrace string
}

func (e *WireError) Error() string {
	if e.SQLState != "" {
		return fmt.Sprintf("[%s] %s (code %d)", e.SQLState, e.Message, e.ErrorCode)
	}
	return fmt.Sprintf("%s (code %d)", e.Message, e.ErrorCode)
}

// defaultSQLState is used when a caught error carries no SQLSTATE of
// its own.
const defaultSQLState = "HY000"

// ToWireError converts any caught error into a WireError. Callers that
// already constructed a WireError (to set Kind, SQL text, or a specific
// SQLSTATE) should pass it straight through; ToWireError is idempotent
// on that type.
func ToWireError(err error, kind ErrorKind) *WireError {
	var we *WireError
	if errors.As(err, &we) {
		return we
	}
	stack := ""
	var cause interface{ Unwrap() error }
	if errors.As(err, &cause) {
		stack = fmt.Sprintf("%+v", err)
	}
	return &WireError{
		Kind:       kind,
		SQLState:   defaultSQLState,
		Message:    err.Error(),
		ErrorCode:  -1,
		StackTrace: stack,
	}
}

// ReadWireError decodes the wire error packet fields written by
// WriteError, for the client-side parse path. dec
// must be positioned just past the STATUS_ERROR prefix.
func ReadWireError(dec *encoding.Decoder) *WireError {
	we := &WireError{}
	we.SQLState, _ = dec.String()
	we.Message, _ = dec.String()
	we.SQL, we.HasSQL = dec.String()
	we.ErrorCode = dec.Int32()
	we.StackTrace, _ = dec.String()
	return we
}

// ReconnectPermitted reports whether err carries the wire error code
// that explicitly signals "reconnect permitted" to a client.
func ReconnectPermitted(err error) bool {
	var we *WireError
	return errors.As(err, &we) && we.ErrorCode == CodeConnectionBroken
}

// WriteError packs we into t's staged outbound packet as the wire error
// response for opCode, resetting t first so the error frame replaces
// any partially written payload rather than appending to it.
func WriteError(t *Transfer, opCode OpCode, we *WireError) error {
	t.BeginResponse(opCode)
	t.Status(StatusError)
	t.String(we.SQLState, true)
	t.String(we.Message, true)
	t.String(we.SQL, we.HasSQL)
	t.Int32(we.ErrorCode)
	// Peers must tolerate an absent stack trace.
	t.String(we.StackTrace, we.StackTrace != "")
	return t.Flush()
}
