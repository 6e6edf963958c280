// Package server implements the connection handler: the TCP reactor,
// shared worker pool, session registry, and opcode dispatch table that
// together turn an accepted net.Conn into a multiplexed set of logical
// database sessions.
package server

import (
	"log/slog"
	"net"

	"github.com/lealone-go/tcpserver/internal/auth"
	"github.com/lealone-go/tcpserver/internal/protocol"
)

// Server is the TCP acceptor: thin boot glue wiring a listener, a
// shared WorkerPool, a SessionFactory, and an optional credential
// validator into one Connection per accepted socket.
type Server struct {
	cfg       protocol.Config
	factory   protocol.SessionFactory
	pool      *WorkerPool
	validator auth.Validator
	logger    *slog.Logger
}

// New constructs a Server. workers <= 0 picks a small fixed default.
func New(cfg protocol.Config, factory protocol.SessionFactory, workers int, validator auth.Validator, logger *slog.Logger) *Server {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	pool := NewWorkerPool(workers, 256, logger)
	return &Server{cfg: cfg, factory: factory, pool: pool, validator: validator, logger: logger}
}

// ListenAndServe accepts connections on addr until the listener is
// closed or Accept returns a permanent error.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()
	return s.Serve(ln)
}

// Serve accepts from an already-bound listener, spawning one Connection
// goroutine per socket. Serve starts the shared worker pool on entry
// and stops it when Accept fails and Serve returns.
func (s *Server) Serve(ln net.Listener) error {
	s.pool.Start()
	defer s.pool.Stop()

	s.logger.Info("listening", "addr", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		c := NewConnection(conn, s.cfg, s.factory, s.pool, s.validator, s.logger)
		go c.Serve()
	}
}
