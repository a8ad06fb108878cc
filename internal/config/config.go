// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ffutop/modbus-server/internal/model"
	"github.com/ffutop/modbus-server/internal/persistence"
)

// Upstream types.
const (
	UpstreamRTU        = "rtu"
	UpstreamRTUOverTCP = "rtu-over-tcp"
)

// Config defines the global configuration structure
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Upstreams   []UpstreamConfig  `mapstructure:"upstreams"`
	Log         LogConfig         `mapstructure:"log"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// ServerConfig defines the served slave
type ServerConfig struct {
	SlaveID  int            `mapstructure:"slave_id"`
	Capacity model.Capacity `mapstructure:"capacity"`
	Seed     SeedConfig     `mapstructure:"seed"`
}

// SeedConfig holds initial table contents applied at startup.
type SeedConfig struct {
	Coils            []BitBlock      `mapstructure:"coils"`
	DiscreteInputs   []BitBlock      `mapstructure:"discrete_inputs"`
	HoldingRegisters []RegisterBlock `mapstructure:"holding_registers"`
	InputRegisters   []RegisterBlock `mapstructure:"input_registers"`
}

// BitBlock is a run of coils or discrete inputs starting at Address.
type BitBlock struct {
	Address uint16 `mapstructure:"address"`
	Values  []bool `mapstructure:"values"`
}

// RegisterBlock is a run of registers starting at Address.
type RegisterBlock struct {
	Address uint16   `mapstructure:"address"`
	Values  []uint16 `mapstructure:"values"`
}

// PersistenceConfig defines data storage settings
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "file", "mmap", "sqlite"
	Path string `mapstructure:"path"` // File path for "file/mmap", DSN for "sqlite"
}

// UpstreamConfig defines a master connecting to the server
type UpstreamConfig struct {
	Type   string       `mapstructure:"type"`   // "rtu", "rtu-over-tcp"
	Tcp    TcpConfig    `mapstructure:"tcp"`    // Used if Type is "rtu-over-tcp"
	Serial SerialConfig `mapstructure:"serial"` // Used if Type is "rtu"
}

// TcpConfig defines TCP settings
type TcpConfig struct {
	Address string        `mapstructure:"address"` // e.g. "0.0.0.0:502"
	Timeout time.Duration `mapstructure:"timeout"` // Silent interval ending a frame of unknown length
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device   string        `mapstructure:"device"`
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	Parity   string        `mapstructure:"parity"`
	StopBits int           `mapstructure:"stop_bits"`
	Timeout  time.Duration `mapstructure:"timeout"`

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// NewFlagSet defines the command line flags understood by LoadConfig.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringP("config", "c", "", "Configuration file path.")
	fs.IntP("slave-id", "s", 1, "Slave address to answer (1-247).")
	fs.StringP("log-level", "v", "info", "Log verbosity level (debug, info, warn, error).")
	fs.StringP("log-file", "L", "", "Log file name ('-' for logging to STDOUT only).")
	return fs
}

// LoadConfig loads configuration from the file named by the "config" flag,
// or from the default search paths. Flags that were set override the file.
func LoadConfig(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.slave_id", 1)
	v.SetDefault("server.capacity.coils", model.DefaultCoils)
	v.SetDefault("server.capacity.discrete_inputs", model.DefaultDiscreteInputs)
	v.SetDefault("server.capacity.holding_registers", model.DefaultHoldingRegisters)
	v.SetDefault("server.capacity.input_registers", model.DefaultInputRegisters)
	v.SetDefault("persistence.type", persistence.TypeMemory)
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("MODBUS_SERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configFile := ""
	if fs != nil {
		for key, flag := range map[string]string{
			"server.slave_id": "slave-id",
			"log.level":       "log-level",
			"log.file":        "log-file",
		} {
			if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", flag, err)
			}
		}
		configFile, _ = fs.GetString("config")
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/modbus-server/")
		v.AddConfigPath("$HOME/.modbus-server")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config is fine when no file was named; flags and
		// defaults still apply.
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate / Fixups
	for i := range config.Upstreams {
		fixupSerial(&config.Upstreams[i].Serial)
		fixupTcp(&config.Upstreams[i].Tcp)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks values that the defaults cannot repair.
func (c *Config) Validate() error {
	if c.Server.SlaveID < 1 || c.Server.SlaveID > 247 {
		return fmt.Errorf("config: slave_id %d outside [1, 247]", c.Server.SlaveID)
	}
	if err := c.Server.Capacity.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Persistence.Type {
	case persistence.TypeMemory:
	case persistence.TypeFile, persistence.TypeMmap, persistence.TypeSQLite:
		if c.Persistence.Path == "" {
			return fmt.Errorf("config: persistence type %q needs a path", c.Persistence.Type)
		}
	default:
		return fmt.Errorf("config: unknown persistence type %q", c.Persistence.Type)
	}
	for i, us := range c.Upstreams {
		switch us.Type {
		case UpstreamRTU:
			if us.Serial.Device == "" {
				return fmt.Errorf("config: upstream %d: serial device is required", i)
			}
		case UpstreamRTUOverTCP:
			if us.Tcp.Address == "" {
				return fmt.Errorf("config: upstream %d: tcp address is required", i)
			}
		default:
			return fmt.Errorf("config: upstream %d: unknown type %q", i, us.Type)
		}
	}
	return nil
}

// Apply writes the seed blocks into m. Discrete inputs and input registers
// are only writable this way.
func (s SeedConfig) Apply(m *model.DataModel) error {
	for _, b := range s.Coils {
		if err := m.WriteMultipleCoils(b.Address, b.Values); err != nil {
			return fmt.Errorf("seed coils: %w", err)
		}
	}
	for _, b := range s.DiscreteInputs {
		if err := m.SetDiscreteInputs(b.Address, b.Values); err != nil {
			return fmt.Errorf("seed discrete inputs: %w", err)
		}
	}
	for _, b := range s.HoldingRegisters {
		if err := m.WriteMultipleHoldingRegisters(b.Address, b.Values); err != nil {
			return fmt.Errorf("seed holding registers: %w", err)
		}
	}
	for _, b := range s.InputRegisters {
		if err := m.SetInputRegisters(b.Address, b.Values); err != nil {
			return fmt.Errorf("seed input registers: %w", err)
		}
	}
	return nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.Parity == "" {
		s.Parity = "N"
	}
	if s.BaudRate == 0 {
		s.BaudRate = 19200
	}
	if s.DataBits == 0 {
		s.DataBits = 8
	}
	if s.StopBits == 0 {
		s.StopBits = 1
	}
	if s.Timeout == 0 {
		s.Timeout = 500 * time.Millisecond
	}
}

func fixupTcp(t *TcpConfig) {
	if t.Timeout == 0 {
		t.Timeout = 500 * time.Millisecond
	}
}
