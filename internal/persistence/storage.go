// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package persistence keeps the data model across restarts.
package persistence

import (
	"errors"
	"fmt"

	"github.com/ffutop/modbus-server/internal/model"
)

// Storage types accepted by Open.
const (
	TypeMemory = "memory"
	TypeFile   = "file"
	TypeMmap   = "mmap"
	TypeSQLite = "sqlite"
)

// ErrLayoutMismatch is returned by Load when the stored image was written
// for different table capacities.
var ErrLayoutMismatch = errors.New("persistence: stored layout does not match capacity")

// Storage defines the interface for persisting the data model.
type Storage interface {
	// Load binds the storage to m. An empty store is initialised from the
	// current contents of m, otherwise the stored tables are copied into m.
	Load(m *model.DataModel) error

	// Save writes every table of m to storage.
	Save(m *model.DataModel) error

	// OnWrite is a hook called whenever a register is modified.
	// It allows the storage to perform real-time persistence (e.g. sync to disk or DB).
	OnWrite(table model.TableType, address, quantity uint16)

	Close() error
}

// Open creates a storage of the given type. path is a file path for file
// and mmap, and a DSN for sqlite.
func Open(typ, path string) (Storage, error) {
	switch typ {
	case "", TypeMemory:
		return NewMemoryStorage(), nil
	case TypeFile:
		return NewFileStorage(path), nil
	case TypeMmap:
		return NewMmapStorage(path), nil
	case TypeSQLite:
		return NewSQLStorage("sqlite3", path), nil
	default:
		return nil, fmt.Errorf("persistence: unknown storage type %q", typ)
	}
}

// Bind loads m from st and installs st.OnWrite as the write hook of m.
func Bind(st Storage, m *model.DataModel) error {
	if err := st.Load(m); err != nil {
		return err
	}
	m.SetWriteHook(st.OnWrite)
	return nil
}
