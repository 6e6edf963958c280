package protocol

import (
	"fmt"
	"sync"

	"github.com/lealone-go/tcpserver/internal/protocol/encoding"
)

// AsyncCallback is a single-shot handler invoked when the response to a
// previously sent request arrives. It is given the response Status and
// a Decoder positioned at the start of the remaining payload.
type AsyncCallback func(status Status, dec *encoding.Decoder) error

// CallbackTable correlates outbound request ids to pending response
// handlers on the client-side path.
// Responses may arrive in any order; CallbackTable looks the handler up
// by id and removes it once fulfilled.
type CallbackTable struct {
	mu   sync.Mutex
	next int32
	cbs  map[int32]AsyncCallback
}

// NewCallbackTable creates an empty CallbackTable.
func NewCallbackTable() *CallbackTable {
	return &CallbackTable{cbs: make(map[int32]AsyncCallback)}
}

// Register allocates a fresh request id and associates cb with it,
// returning the id to embed in the outbound request.
func (t *CallbackTable) Register(cb AsyncCallback) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	id := t.next
	t.cbs[id] = cb
	return id
}

// Dispatch looks up and removes the callback for id, then invokes it.
// It returns an error if no callback is registered for id (a protocol
// violation on the client side: an unsolicited or duplicate response).
func (t *CallbackTable) Dispatch(id int32, status Status, dec *encoding.Decoder) error {
	t.mu.Lock()
	cb, ok := t.cbs[id]
	if ok {
		delete(t.cbs, id)
	}
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("protocol: no pending callback for request id %d", id)
	}
	return cb(status, dec)
}

// Pending returns the number of callbacks still awaiting a response.
func (t *CallbackTable) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cbs)
}

// UpdateCountCallback returns an AsyncCallback that decodes a single i64
// update count and delivers it (or a decode/status error) to done.
func UpdateCountCallback(done func(count int64, err error)) AsyncCallback {
	return func(status Status, dec *encoding.Decoder) error {
		if status == StatusError {
			done(0, fmt.Errorf("protocol: server returned error status"))
			return nil
		}
		count := dec.Int64()
		if err := dec.Error(); err != nil {
			done(0, err)
			return err
		}
		done(count, nil)
		return nil
	}
}

// RawCallback returns an AsyncCallback that hands the positioned Decoder
// straight to fn, for responses too varied in shape to generalize.
func RawCallback(fn func(status Status, dec *encoding.Decoder)) AsyncCallback {
	return func(status Status, dec *encoding.Decoder) error {
		fn(status, dec)
		return dec.Error()
	}
}
