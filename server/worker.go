package server

import (
	"log/slog"
	"sync"

	"github.com/lealone-go/tcpserver/internal/protocol"
)

// PreparedCommand is a deferred unit of work: a query, update, or other
// DB-touching opcode handler that must not run on the connection's
// reactor goroutine. Session and Statement record
// what the action operates on; Run performs exactly one execution
// attempt and is responsible for writing its own reply frame (or error
// frame) through the owning Connection's codec.
type PreparedCommand struct {
	ConnID    int32
	Session   protocol.Session
	Statement protocol.PreparedStatement
	Run       func()
}

// CommandQueue is a per-connection FIFO of deferred commands. Each
// enqueued command is mirrored by a drain token posted to the shared
// WorkerPool; a worker picking up the token executes the queue's head,
// so per-connection order is the enqueue order regardless of which
// queue representation is observed.
type CommandQueue struct {
	mu    sync.Mutex
	items []*PreparedCommand
}

// Push appends cmd to the queue.
func (q *CommandQueue) Push(cmd *PreparedCommand) {
	q.mu.Lock()
	q.items = append(q.items, cmd)
	q.mu.Unlock()
}

// Pop removes and returns the queue head.
func (q *CommandQueue) Pop() (*PreparedCommand, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	cmd := q.items[0]
	q.items = q.items[1:]
	return cmd, true
}

// Len returns the number of commands still pending.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// WorkerPool is the process-wide shared worker set that drains queued
// PreparedCommands. Commands are routed to one of a fixed number of
// FIFO channels by hashing ConnID, giving
// connection-affine single-flight execution: every command for a given
// connection is handled by the same channel in submission order, which
// is what keeps worker-routed replies FIFO per connection without a
// codec-wide lock.
type WorkerPool struct {
	queues []chan *PreparedCommand
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewWorkerPool creates a pool of n workers, each with its own bounded
// queue of depth qdepth.
func NewWorkerPool(n, qdepth int, logger *slog.Logger) *WorkerPool {
	if n <= 0 {
		n = 1
	}
	if qdepth <= 0 {
		qdepth = 64
	}
	p := &WorkerPool{queues: make([]chan *PreparedCommand, n), logger: logger}
	for i := range p.queues {
		p.queues[i] = make(chan *PreparedCommand, qdepth)
	}
	return p
}

// Start launches one goroutine per queue.
func (p *WorkerPool) Start() {
	for _, q := range p.queues {
		p.wg.Add(1)
		go p.drain(q)
	}
}

func (p *WorkerPool) drain(q chan *PreparedCommand) {
	defer p.wg.Done()
	for cmd := range q {
		p.runOne(cmd)
	}
}

func (p *WorkerPool) runOne(cmd *PreparedCommand) {
	defer func() {
		if r := recover(); r != nil && p.logger != nil {
			p.logger.Error("worker: recovered panic executing command", "conn", cmd.ConnID, "panic", r)
		}
	}()
	cmd.Run()
}

// Submit enqueues cmd onto the channel affine to its ConnID.
func (p *WorkerPool) Submit(cmd *PreparedCommand) {
	idx := int(uint32(cmd.ConnID)) % len(p.queues)
	p.queues[idx] <- cmd
}

// Stop closes every queue and waits for in-flight commands to drain.
func (p *WorkerPool) Stop() {
	for _, q := range p.queues {
		close(q)
	}
	p.wg.Wait()
}
