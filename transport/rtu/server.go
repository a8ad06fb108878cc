// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/grid-x/serial"

	"github.com/ffutop/modbus-server/internal/config"
	rtupacket "github.com/ffutop/modbus-server/modbus/rtu"
	"github.com/ffutop/modbus-server/transport"
)

// Server implements a Modbus RTU Server (Upstream).
// It acts as a Slave on the serial bus, waiting for requests from an external Master.
type Server struct {
	Config config.SerialConfig

	mu   sync.Mutex
	port io.ReadWriteCloser
}

// NewServer creates a new RTU Server.
func NewServer(cfg config.SerialConfig) *Server {
	return &Server{
		Config: cfg,
	}
}

// SerialConfig maps cfg to the serial driver configuration.
func SerialConfig(cfg config.SerialConfig) *serial.Config {
	return &serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.Timeout, // Read timeout, ends frames of unknown length
		RS485: serial.RS485Config{
			Enabled:            cfg.RS485,
			DelayRtsBeforeSend: cfg.DelayRtsBeforeSend,
			DelayRtsAfterSend:  cfg.DelayRtsAfterSend,
			RtsHighDuringSend:  cfg.RtsHighDuringSend,
			RtsHighAfterSend:   cfg.RtsHighAfterSend,
			RxDuringTx:         cfg.RxDuringTx,
		},
	}
}

// Start opens the serial port and serves requests until ctx is done.
func (s *Server) Start(ctx context.Context, handler transport.FrameHandler) error {
	port, err := serial.Open(SerialConfig(s.Config))
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.Config.Device, err)
	}
	s.mu.Lock()
	s.port = port
	s.mu.Unlock()
	defer s.Close()
	slog.Info("RTU Server listening", "device", s.Config.Device, "baud", s.Config.BaudRate)

	// handle close
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	err = s.scanLoop(ctx, port, handler)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// scanLoop reads one request at a time, answers it, and only then reads
// the next one.
func (s *Server) scanLoop(ctx context.Context, port io.ReadWriter, handler transport.FrameHandler) error {
	buf := make([]byte, rtupacket.MaxSize)
	delay := frameDelay(s.Config.BaudRate)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := rtupacket.ReadRequest(port, buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return err
			}
			if n > 0 {
				slog.Debug("Discarding partial frame", "device", s.Config.Device, "frame", hex.EncodeToString(buf[:n]), "err", err)
			}
			continue
		}
		if n == 0 {
			continue
		}

		slog.Debug("recv from modbus master", "device", s.Config.Device, "request", hex.EncodeToString(buf[:n]))
		resp := handler(buf[:n])
		if len(resp) == 0 {
			continue
		}

		// Keep the bus silent for t3.5 before answering.
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		slog.Debug("send to modbus master", "device", s.Config.Device, "response", hex.EncodeToString(resp))
		if _, err := port.Write(resp); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
}

// frameDelay returns the t3.5 inter-frame silence for baudRate. Above
// 19200 baud the fixed 1750µs value applies.
func frameDelay(baudRate int) time.Duration {
	if baudRate <= 0 || baudRate > 19200 {
		return 1750 * time.Microsecond
	}
	return time.Duration(35000000/baudRate) * time.Microsecond
}

// Close closes the serial port.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
