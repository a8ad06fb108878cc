// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/pflag"

	"github.com/ffutop/modbus-server/internal/config"
	"github.com/ffutop/modbus-server/internal/model"
	"github.com/ffutop/modbus-server/internal/persistence"
	"github.com/ffutop/modbus-server/internal/server"
	"github.com/ffutop/modbus-server/transport"
	"github.com/ffutop/modbus-server/transport/rtu"
	"github.com/ffutop/modbus-server/transport/rtuovertcp"
)

func main() {
	fs := config.NewFlagSet(os.Args[0])
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	// Load Configuration
	cfg, err := config.LoadConfig(fs)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	slog.Info("Starting Modbus Server...", "slaveID", cfg.Server.SlaveID)

	if err := run(cfg); err != nil {
		slog.Error("Modbus Server stopped with error", "err", err)
		os.Exit(1)
	}
	slog.Info("Goodbye.")
}

func run(cfg *config.Config) error {
	m, err := model.NewDataModelWithCapacity(cfg.Server.Capacity)
	if err != nil {
		return err
	}
	if err := cfg.Server.Seed.Apply(m); err != nil {
		return err
	}

	storage, err := persistence.Open(cfg.Persistence.Type, cfg.Persistence.Path)
	if err != nil {
		return err
	}
	if err := persistence.Bind(storage, m); err != nil {
		return fmt.Errorf("failed to load %s storage: %w", cfg.Persistence.Type, err)
	}
	defer func() {
		if err := storage.Save(m); err != nil {
			slog.Error("Failed to save data model", "err", err)
		}
		storage.Close()
	}()

	// Create Upstreams
	var upstreams []transport.Upstream
	for _, usCfg := range cfg.Upstreams {
		switch usCfg.Type {
		case config.UpstreamRTU:
			upstreams = append(upstreams, rtu.NewServer(usCfg.Serial))
		case config.UpstreamRTUOverTCP:
			upstreams = append(upstreams, rtuovertcp.NewServer(usCfg.Tcp.Address, usCfg.Tcp.Timeout))
		default:
			slog.Error("Unknown upstream type", "type", usCfg.Type)
		}
	}
	if len(upstreams) == 0 {
		return errors.New("no valid upstreams configured")
	}

	srv := server.New(byte(cfg.Server.SlaveID), m)
	slog.Info("Serving data model", "slaveID", srv.SlaveID(), "upstreams", len(upstreams), "persistence", cfg.Persistence.Type)

	// Wait for Signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = srv.Serve(ctx, upstreams)
	slog.Info("Shutting down...")
	return err
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stdout: %v\n", err)
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
