// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/ffutop/modbus-server/internal/model"
)

// MmapStorage implements persistence using memory-mapped files.
// This provides OS-managed persistence and efficient memory usage.
// The file layout is the same as FileStorage.
type MmapStorage struct {
	path   string
	file   *os.File
	data   mmap.MMap
	layout layout
	model  *model.DataModel
}

// NewMmapStorage creates a new MmapStorage.
func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{
		path: path,
	}
}

// Load memory-maps the file and copies it into m, or initialises a new
// file from m.
func (ms *MmapStorage) Load(m *model.DataModel) error {
	ms.layout = newLayout(m.Capacity())
	ms.model = m
	if ms.layout.size == 0 {
		// Nothing to persist, and a zero-length file cannot be mapped.
		return nil
	}

	// Open file, creating if necessary
	f, err := os.OpenFile(ms.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open mmap file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	fresh := fi.Size() == 0
	if fresh {
		if err := f.Truncate(int64(ms.layout.size)); err != nil {
			f.Close()
			return fmt.Errorf("failed to resize mmap file: %w", err)
		}
	} else if fi.Size() != int64(ms.layout.size) {
		f.Close()
		return fmt.Errorf("%w: %s has %d bytes, want %d", ErrLayoutMismatch, ms.path, fi.Size(), ms.layout.size)
	}

	// Mmap the file
	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return fmt.Errorf("mmap failed: %w", err)
	}
	ms.file = f
	ms.data = data

	if fresh {
		return ms.Save(m)
	}
	if err := ms.layout.decode(data, m); err != nil {
		ms.Close()
		return fmt.Errorf("failed to decode mmap file: %w", err)
	}
	return nil
}

// Save copies m into the mapping and flushes it to disk.
func (ms *MmapStorage) Save(m *model.DataModel) error {
	if ms.layout.size == 0 {
		return nil
	}
	if ms.data == nil {
		return fmt.Errorf("mmap data is nil")
	}
	ms.layout.encode(m, ms.data)
	return ms.data.Flush()
}

// OnWrite copies the changed range into the mapping and flushes it.
func (ms *MmapStorage) OnWrite(table model.TableType, address, quantity uint16) {
	if ms.data == nil || ms.model == nil {
		return
	}
	ms.layout.encodeRange(ms.model, ms.data, table, address, quantity)
	if err := ms.data.Flush(); err != nil {
		slog.Error("Failed to flush mmap", "table", table, "address", address, "err", err)
	}
}

// Close unmaps and closes the file.
func (ms *MmapStorage) Close() error {
	var err error
	if ms.data != nil {
		if e := ms.data.Unmap(); e != nil {
			err = e
		}
		ms.data = nil
	}
	if ms.file != nil {
		if e := ms.file.Close(); e != nil {
			err = e
		}
		ms.file = nil
	}
	return err
}
