// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package server turns raw RTU frames into responses for a single slave.
package server

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"

	"github.com/ffutop/modbus-server/internal/model"
	"github.com/ffutop/modbus-server/internal/slave"
	"github.com/ffutop/modbus-server/modbus"
	"github.com/ffutop/modbus-server/modbus/rtu"
	"github.com/ffutop/modbus-server/transport"
)

// DefaultSlaveID is the address answered when none is configured.
const DefaultSlaveID = 1

// Server is a Modbus RTU server bound to one slave address.
type Server struct {
	slaveID byte
	slave   *slave.Slave

	// mu serialises Handle across upstreams.
	mu sync.Mutex
}

// New creates a Server answering slaveID from m with the default commands.
func New(slaveID byte, m *model.DataModel) *Server {
	return NewWithSlave(slaveID, slave.NewSlave(m))
}

// NewWithSlave creates a Server answering slaveID through s.
func NewWithSlave(slaveID byte, s *slave.Slave) *Server {
	return &Server{
		slaveID: slaveID,
		slave:   s,
	}
}

// SlaveID returns the configured address.
func (s *Server) SlaveID() byte {
	return s.slaveID
}

// Slave returns the command dispatcher.
func (s *Server) Slave() *slave.Slave {
	return s.slave
}

// Model returns the served data model.
func (s *Server) Model() *model.DataModel {
	return s.slave.Model()
}

// Process handles one raw RTU frame and returns the encoded response. A nil
// result means the frame was dropped and nothing must be sent.
//
// Process is not safe for concurrent use; see Handle.
func (s *Server) Process(raw []byte) []byte {
	counters := &s.Model().Counters

	if len(raw) < rtu.MinSize {
		slog.Debug("Dropping short frame", "slaveID", s.slaveID, "frame", hex.EncodeToString(raw))
		return nil
	}

	adu, err := rtu.Decode(raw)
	if err != nil {
		if errors.Is(err, rtu.ErrChecksum) {
			counters.Inc(model.CounterBusCommunicationError)
		}
		slog.Debug("Dropping undecodable frame", "slaveID", s.slaveID, "frame", hex.EncodeToString(raw), "err", err)
		return nil
	}
	counters.Inc(model.CounterBusMessage)

	if adu.SlaveID != s.slaveID && adu.SlaveID != rtu.BroadcastAddress {
		slog.Debug("Ignoring frame for other slave", "slaveID", s.slaveID, "address", adu.SlaveID)
		return nil
	}
	counters.Inc(model.CounterServerMessage)

	if adu.SlaveID == rtu.BroadcastAddress {
		counters.Inc(model.CounterServerNoResponse)
		slog.Debug("Dropping broadcast frame", "slaveID", s.slaveID, "func", modbus.FunctionCode(adu.Pdu.FunctionCode))
		return nil
	}

	req, ok := adu.Frame().(modbus.Request)
	if !ok {
		counters.Inc(model.CounterServerNoResponse)
		slog.Debug("Dropping inbound exception frame", "slaveID", s.slaveID, "frame", hex.EncodeToString(raw))
		return nil
	}

	resp := s.slave.Execute(req)
	out, err := rtu.EncodeFrame(s.slaveID, resp)
	if err != nil {
		counters.Inc(model.CounterServerNoResponse)
		slog.Error("Failed to encode response", "slaveID", s.slaveID, "func", req.FunctionCode, "err", err)
		return nil
	}
	if resp.Type() == modbus.FrameTypeException {
		counters.Inc(model.CounterBusExceptionError)
		slog.Debug("Replying with exception", "slaveID", s.slaveID, "func", req.FunctionCode, "err", resp)
	}
	return out
}

// Handle is Process behind a mutex. It satisfies transport.FrameHandler so
// several upstreams may share one Server.
func (s *Server) Handle(raw []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Process(raw)
}

// Serve starts every upstream with Handle and blocks until ctx is done.
func (s *Server) Serve(ctx context.Context, upstreams []transport.Upstream) error {
	var wg sync.WaitGroup
	for i, us := range upstreams {
		wg.Add(1)
		go func(ups transport.Upstream, idx int) {
			defer wg.Done()
			slog.Info("Starting upstream", "slaveID", s.slaveID, "index", idx)
			if err := ups.Start(ctx, s.Handle); err != nil {
				slog.Error("Upstream stopped with error", "slaveID", s.slaveID, "index", idx, "err", err)
			}
		}(us, i)
	}

	<-ctx.Done()

	// Graceful shutdown
	for _, us := range upstreams {
		us.Close()
	}

	wg.Wait()
	return nil
}
