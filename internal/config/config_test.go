// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/modbus-server/internal/model"
)

const sampleConfig = `
server:
  slave_id: 17
  capacity:
    coils: 64
    holding_registers: 32
  seed:
    coils:
      - address: 2
        values: [true, false, true]
    input_registers:
      - address: 0
        values: [4660, 22136]
persistence:
  type: mmap
  path: /var/lib/modbus-server/tables.bin
upstreams:
  - type: rtu
    serial:
      device: /dev/ttyUSB0
      baud_rate: 9600
      parity: e
      rs485: true
      delay_rts_before_send: 2ms
  - type: rtu-over-tcp
    tcp:
      address: 0.0.0.0:5020
log:
  level: warn
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func load(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	fs := NewFlagSet("test")
	require.NoError(t, fs.Parse(args))
	return LoadConfig(fs)
}

func TestLoadConfig(t *testing.T) {
	cfg, err := load(t, "--config", writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 17, cfg.Server.SlaveID)
	assert.Equal(t, model.Capacity{
		Coils:            64,
		DiscreteInputs:   model.DefaultDiscreteInputs,
		HoldingRegisters: 32,
		InputRegisters:   model.DefaultInputRegisters,
	}, cfg.Server.Capacity)
	assert.Equal(t, []BitBlock{{Address: 2, Values: []bool{true, false, true}}}, cfg.Server.Seed.Coils)
	assert.Equal(t, []RegisterBlock{{Address: 0, Values: []uint16{0x1234, 0x5678}}}, cfg.Server.Seed.InputRegisters)
	assert.Equal(t, PersistenceConfig{Type: "mmap", Path: "/var/lib/modbus-server/tables.bin"}, cfg.Persistence)
	assert.Equal(t, "warn", cfg.Log.Level)

	require.Len(t, cfg.Upstreams, 2)
	serial := cfg.Upstreams[0].Serial
	assert.Equal(t, UpstreamRTU, cfg.Upstreams[0].Type)
	assert.Equal(t, "/dev/ttyUSB0", serial.Device)
	assert.Equal(t, 9600, serial.BaudRate)
	assert.Equal(t, "E", serial.Parity)
	assert.Equal(t, 8, serial.DataBits)
	assert.Equal(t, 1, serial.StopBits)
	assert.Equal(t, 500*time.Millisecond, serial.Timeout)
	assert.True(t, serial.RS485)
	assert.Equal(t, 2*time.Millisecond, serial.DelayRtsBeforeSend)

	assert.Equal(t, UpstreamRTUOverTCP, cfg.Upstreams[1].Type)
	assert.Equal(t, "0.0.0.0:5020", cfg.Upstreams[1].Tcp.Address)
	assert.Equal(t, 500*time.Millisecond, cfg.Upstreams[1].Tcp.Timeout)
}

func TestLoadConfigFlagsOverride(t *testing.T) {
	cfg, err := load(t, "-c", writeConfig(t, sampleConfig), "--log-level", "debug", "--slave-id", "3")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Server.SlaveID)
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	cfg, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Server.SlaveID)
	assert.Equal(t, model.DefaultCapacity(), cfg.Server.Capacity)
	assert.Equal(t, "memory", cfg.Persistence.Type)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Upstreams)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"SlaveIDZero", "server:\n  slave_id: 0\n"},
		{"SlaveIDTooLarge", "server:\n  slave_id: 248\n"},
		{"CapacityTooLarge", "server:\n  capacity:\n    coils: 70000\n"},
		{"PersistenceWithoutPath", "persistence:\n  type: file\n"},
		{"UnknownPersistence", "persistence:\n  type: redis\n"},
		{"UnknownUpstream", "upstreams:\n  - type: tcp\n"},
		{"SerialWithoutDevice", "upstreams:\n  - type: rtu\n"},
		{"TcpWithoutAddress", "upstreams:\n  - type: rtu-over-tcp\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, "--config", writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := load(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSeedApply(t *testing.T) {
	m, err := model.NewDataModelWithCapacity(model.Capacity{Coils: 8, DiscreteInputs: 8, HoldingRegisters: 4, InputRegisters: 4})
	require.NoError(t, err)

	seed := SeedConfig{
		Coils:            []BitBlock{{Address: 1, Values: []bool{true, true}}},
		DiscreteInputs:   []BitBlock{{Address: 7, Values: []bool{true}}},
		HoldingRegisters: []RegisterBlock{{Address: 3, Values: []uint16{0xCAFE}}},
		InputRegisters:   []RegisterBlock{{Address: 0, Values: []uint16{1, 2, 3, 4}}},
	}
	require.NoError(t, seed.Apply(m))
	assert.True(t, m.ReadCoil(2))
	assert.True(t, m.ReadDiscreteInput(7))
	assert.Equal(t, uint16(0xCAFE), m.ReadHoldingRegister(3))
	assert.Equal(t, uint16(4), m.ReadInputRegister(3))

	bad := SeedConfig{HoldingRegisters: []RegisterBlock{{Address: 3, Values: []uint16{1, 2}}}}
	assert.ErrorIs(t, bad.Apply(m), model.ErrOutOfRange)
}
