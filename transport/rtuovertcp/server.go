// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtuovertcp

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	rtupacket "github.com/ffutop/modbus-server/modbus/rtu"
	"github.com/ffutop/modbus-server/transport"
)

// DefaultTimeout is the silent interval used when none is configured.
const DefaultTimeout = 500 * time.Millisecond

// Server implements a Modbus RTU over TCP Server.
// It listens on a TCP port and handles incoming connections as Modbus RTU streams.
type Server struct {
	Address string
	// Timeout bounds every read. It ends frames of unknown length and lets
	// idle connections notice shutdown.
	Timeout time.Duration

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a new RTU over TCP Server.
func NewServer(address string, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Server{
		Address: address,
		Timeout: timeout,
	}
}

// Start starts the TCP server.
func (s *Server) Start(ctx context.Context, handler transport.FrameHandler) error {
	listener, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Address, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	slog.Info("RTU over TCP server listening", "addr", listener.Addr())

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("Failed to accept connection", "err", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConnection(ctx, conn, handler)
		}()
	}
}

// Addr returns the listening address once Start has bound it.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close closes the server listener.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// deadlineReader arms the read deadline before every read.
type deadlineReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r deadlineReader) Read(p []byte) (int, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
		return 0, err
	}
	return r.conn.Read(p)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn, handler transport.FrameHandler) {
	defer conn.Close()
	slog.Info("New RTU over TCP client connected", "addr", conn.RemoteAddr())

	// Buffer for reading (reusing max size from RTU package)
	buf := make([]byte, rtupacket.MaxSize)
	r := deadlineReader{conn: conn, timeout: s.Timeout}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := rtupacket.ReadRequest(r, buf)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				slog.Info("RTU over TCP client disconnected", "addr", conn.RemoteAddr())
				return
			case isTimeout(err):
				if n > 0 {
					slog.Debug("Discarding partial frame", "addr", conn.RemoteAddr(), "frame", hex.EncodeToString(buf[:n]))
				}
				continue
			case errors.Is(err, rtupacket.ErrShortFrame), errors.Is(err, rtupacket.ErrLongFrame):
				// The stream position is lost; drop the connection.
				slog.Warn("Invalid RTU frame", "addr", conn.RemoteAddr(), "err", err)
				return
			default:
				slog.Error("Connection read error", "addr", conn.RemoteAddr(), "err", err)
				return
			}
		}
		if n == 0 {
			continue
		}

		resp := handler(buf[:n])
		if len(resp) == 0 {
			continue
		}
		if _, err := conn.Write(resp); err != nil {
			slog.Error("Failed to write response", "addr", conn.RemoteAddr(), "err", err)
			return
		}
	}
}
