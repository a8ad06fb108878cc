// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ffutop/modbus-server/internal/model"
)

// FileStorage implements persistence using file operations.
// It keeps an image of the tables in memory and writes back only the
// changed range on every write.
//
// Layout, for capacities C, D, H and I:
// - Coils: C bytes (Offset 0)
// - DiscreteInputs: D bytes (Offset C)
// - HoldingRegisters: H * 2 bytes, big-endian (Offset C+D)
// - InputRegisters: I * 2 bytes, big-endian (Offset C+D+2H)
type FileStorage struct {
	path   string
	file   *os.File
	data   []byte
	layout layout
	model  *model.DataModel
}

// NewFileStorage creates a new FileStorage.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{
		path: path,
	}
}

// Load reads the tables from the file, or initialises a new file from m.
func (ms *FileStorage) Load(m *model.DataModel) error {
	ms.layout = newLayout(m.Capacity())

	// Open file, creating if necessary
	f, err := os.OpenFile(ms.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	switch fi.Size() {
	case 0:
		ms.file = f
		ms.model = m
		ms.data = make([]byte, ms.layout.size)
		return ms.Save(m)
	case int64(ms.layout.size):
	default:
		f.Close()
		return fmt.Errorf("%w: %s has %d bytes, want %d", ErrLayoutMismatch, ms.path, fi.Size(), ms.layout.size)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to read file: %w", err)
	}
	if err := ms.layout.decode(data, m); err != nil {
		f.Close()
		return fmt.Errorf("failed to decode file: %w", err)
	}

	ms.file = f
	ms.data = data
	ms.model = m
	return nil
}

// Save writes the whole image and flushes it to disk.
func (ms *FileStorage) Save(m *model.DataModel) error {
	if ms.file == nil {
		return fmt.Errorf("file storage %s is not loaded", ms.path)
	}
	ms.layout.encode(m, ms.data)
	return ms.sync(0, len(ms.data))
}

// OnWrite writes the changed range and syncs the file.
func (ms *FileStorage) OnWrite(table model.TableType, address, quantity uint16) {
	if ms.file == nil || ms.model == nil {
		return
	}
	start, end := ms.layout.encodeRange(ms.model, ms.data, table, address, quantity)
	if err := ms.sync(start, end); err != nil {
		slog.Error("Failed to sync file", "table", table, "address", address, "err", err)
	}
}

func (ms *FileStorage) sync(start, end int) error {
	if start >= end {
		return nil
	}
	if _, err := ms.file.WriteAt(ms.data[start:end], int64(start)); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := ms.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file to disk: %w", err)
	}
	return nil
}

// Close the file.
func (ms *FileStorage) Close() error {
	if ms.file == nil {
		return nil
	}
	err := ms.file.Close()
	ms.file = nil
	return err
}
