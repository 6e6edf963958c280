// Package client is a minimal driver-side implementation of the wire
// protocol: enough to dial a server, run the
// SESSION_INIT handshake, and exchange one request/response pair at a
// time against a connectionId. It exists to exercise
// internal/protocol's Transfer and Reassembler from the other
// direction and to drive integration tests end to end; it is not a
// database/sql driver.
package client

import (
	"fmt"
	"net"
	"sync"

	"github.com/lealone-go/tcpserver/internal/protocol"
	"github.com/lealone-go/tcpserver/internal/protocol/encoding"
)

// Client is a single TCP connection to a server, driving requests
// strictly one at a time: Call blocks until the matching response
// packet arrives. A concurrent caller that needs true pipelining would
// register multiple protocol.AsyncCallback handlers against request ids
// instead; this client's scenarios never need more than
// one outstanding request.
type Client struct {
	mu        sync.Mutex
	conn      net.Conn
	transfer  *protocol.Transfer
	reasm     *protocol.Reassembler
	callbacks *protocol.CallbackTable
	macKey    []byte
	pending   [][]byte
}

// Dial connects to addr and prepares the client codec. macKey must
// match the key the server uses to mint/verify LOB HMACs for this
// connection; a real deployment negotiates this during SESSION_INIT,
// but since this is an in-process test client we just require the
// caller supply whatever key they expect the server to use (tests that
// don't exercise LOBs can pass nil).
func Dial(addr string, macKey []byte) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return New(conn, macKey), nil
}

// New wraps an already established connection, e.g. one end of a
// net.Pipe in tests.
func New(conn net.Conn, macKey []byte) *Client {
	return &Client{
		conn:      conn,
		transfer:  protocol.NewTransfer(conn, macKey),
		reasm:     protocol.NewReassembler(0),
		callbacks: protocol.NewCallbackTable(),
		macKey:    macKey,
	}
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Call sends one request and blocks for its response. encode writes the
// request body (the header is staged by Call itself); decode receives
// the response status and a Decoder positioned at the remaining body.
func (c *Client) Call(op protocol.OpCode, encode func(t *protocol.Transfer), decode func(status protocol.Status, dec *encoding.Decoder) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var callErr error
	id := c.callbacks.Register(protocol.RawCallback(func(status protocol.Status, dec *encoding.Decoder) {
		callErr = decode(status, dec)
	}))

	c.transfer.BeginRequest(op)
	encode(c.transfer)
	if err := c.transfer.Flush(); err != nil {
		c.callbacks.Dispatch(id, protocol.StatusError, protocol.NewDecoder(nil))
		return fmt.Errorf("client: write request: %w", err)
	}

	payload, err := c.readPacket()
	if err != nil {
		return fmt.Errorf("client: read response: %w", err)
	}
	hdr, rest, err := protocol.ReadPacketHeader(payload)
	if err != nil {
		return err
	}
	if !hdr.IsResponse || hdr.OpCode != op {
		return fmt.Errorf("client: unexpected response opcode %s (want %s)", hdr.OpCode, op)
	}
	dec := protocol.NewDecoder(rest)
	status := protocol.Status(dec.Int32())
	if err := dec.Error(); err != nil {
		return err
	}
	if status == protocol.StatusError {
		// The server's error packet replaces the normal response shape;
		// decode it here so callers get a typed error they can test with
		// protocol.ReconnectPermitted.
		werr := protocol.ReadWireError(dec)
		c.callbacks.Dispatch(id, status, protocol.NewDecoder(nil))
		return werr
	}
	if err := c.callbacks.Dispatch(id, status, dec); err != nil {
		return err
	}
	return callErr
}

// readPacket returns the next whole packet, reading from the connection
// until the Reassembler can produce one. A read that yields several
// packets at once (the server coalescing replies) queues the extras for
// subsequent calls.
func (c *Client) readPacket() ([]byte, error) {
	if len(c.pending) > 0 {
		pkt := c.pending[0]
		c.pending = c.pending[1:]
		return pkt, nil
	}
	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			packets, ferr := c.reasm.Feed(buf[:n])
			if len(packets) > 0 {
				c.pending = append(c.pending, packets[1:]...)
				return packets[0], nil
			}
			if ferr != nil {
				return nil, ferr
			}
		}
		if err != nil {
			return nil, err
		}
	}
}
