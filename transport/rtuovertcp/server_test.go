// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package rtuovertcp

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/modbus-server/internal/model"
	"github.com/ffutop/modbus-server/internal/server"
	"github.com/ffutop/modbus-server/modbus/crc"
)

func withCRC(frame ...byte) []byte {
	sum := crc.Checksum(frame)
	return append(frame, byte(sum), byte(sum>>8))
}

func startServer(t *testing.T) (*Server, *model.DataModel, context.CancelFunc, <-chan error) {
	t.Helper()
	m := model.NewDataModel()
	srv := server.New(1, m)

	s := NewServer("127.0.0.1:0", 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx, srv.Handle)
	}()
	require.Eventually(t, func() bool { return s.Addr() != nil }, time.Second, 5*time.Millisecond)
	return s, m, cancel, done
}

func readReply(t *testing.T, conn net.Conn, n int) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, n)
	_, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	return buf
}

func TestServer_LifeCycle(t *testing.T) {
	s, m, cancel, done := startServer(t)
	m.WriteHoldingRegister(0, 0xAABB)

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	// Read Holding Registers, address 0, quantity 1
	_, err = conn.Write(withCRC(0x01, 0x03, 0x00, 0x00, 0x00, 0x01))
	require.NoError(t, err)
	want := withCRC(0x01, 0x03, 0x02, 0xAA, 0xBB)
	assert.Equal(t, want, readReply(t, conn, len(want)))

	// A frame split across writes is reassembled.
	req := withCRC(0x01, 0x10, 0x00, 0x01, 0x00, 0x02, 0x04, 0x11, 0x22, 0x33, 0x44)
	_, err = conn.Write(req[:5])
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = conn.Write(req[5:])
	require.NoError(t, err)
	want = withCRC(0x01, 0x10, 0x00, 0x01, 0x00, 0x02)
	assert.Equal(t, want, readReply(t, conn, len(want)))
	assert.Equal(t, uint16(0x3344), m.ReadHoldingRegister(2))

	// Unknown function codes end at the silent interval.
	_, err = conn.Write(withCRC(0x01, 0x2B, 0x0E, 0x01, 0x00))
	require.NoError(t, err)
	want = withCRC(0x01, 0xAB, 0x01)
	assert.Equal(t, want, readReply(t, conn, len(want)))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_NoReplyForOtherSlave(t *testing.T) {
	s, _, cancel, done := startServer(t)
	defer func() {
		cancel()
		<-done
	}()

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(withCRC(0x05, 0x03, 0x00, 0x00, 0x00, 0x01))
	require.NoError(t, err)
	_, err = conn.Write(withCRC(0x01, 0x03, 0x00, 0x00, 0x00, 0x01))
	require.NoError(t, err)

	// Only the second request is answered.
	want := withCRC(0x01, 0x03, 0x02, 0x00, 0x00)
	assert.Equal(t, want, readReply(t, conn, len(want)))
}

func TestNewServerDefaultTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, NewServer(":502", 0).Timeout)
}
