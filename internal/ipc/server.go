package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"go.uber.org/zap"
)

// Handler processes one command from a page context.
type Handler func(Command) Response

// Subscriber registers a push channel for a connection; it returns the
// unsubscribe function.
type Subscriber interface {
	Subscribe(send func(Command) error) func()
}

// Server accepts page-context connections on a unix socket. Each connection
// may issue commands and, after SUBSCRIBE, also receives broadcast pushes.
type Server struct {
	socketPath string
	handler    Handler
	hub        Subscriber
	logger     *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewServer creates a server; Start binds the socket.
func NewServer(socketPath string, handler Handler, hub Subscriber, logger *zap.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		handler:    handler,
		hub:        hub,
		logger:     logger,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Start binds the socket and begins accepting connections.
func (s *Server) Start() error {
	// Stale socket from a crashed run blocks the bind.
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("IPC server listening", zap.String("socket", s.socketPath))
	return nil
}

// Stop closes the listener and every open connection, then waits for the
// connection goroutines.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	os.Remove(s.socketPath)
	s.logger.Info("IPC server stopped")
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("Accept failed", zap.Error(err))
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	var writeMu sync.Mutex // responses and pushes share the wire

	var unsubscribe func()
	defer func() {
		if unsubscribe != nil {
			unsubscribe()
		}
	}()

	for {
		var cmd Command
		if err := dec.Decode(&cmd); err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("Connection read ended", zap.Error(err))
			}
			return
		}

		var resp Response
		if cmd.Name == CmdSubscribe {
			if unsubscribe == nil {
				unsubscribe = s.hub.Subscribe(func(frame Command) error {
					writeMu.Lock()
					defer writeMu.Unlock()
					return enc.Encode(frame)
				})
			}
			resp = OKResponse(nil)
		} else {
			resp = s.handler(cmd)
		}

		writeMu.Lock()
		err := enc.Encode(resp)
		writeMu.Unlock()
		if err != nil {
			s.logger.Debug("Connection write failed", zap.Error(err))
			return
		}
	}
}
