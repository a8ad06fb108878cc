// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/modbus-server/internal/model"
)

var testCapacity = model.Capacity{
	Coils:            20,
	DiscreteInputs:   10,
	HoldingRegisters: 8,
	InputRegisters:   4,
}

func newModel(t testing.TB) *model.DataModel {
	t.Helper()
	m, err := model.NewDataModelWithCapacity(testCapacity)
	require.NoError(t, err)
	return m
}

type storageFactory func(dir string) Storage

var factories = map[string]storageFactory{
	TypeFile:   func(dir string) Storage { return NewFileStorage(filepath.Join(dir, "tables.bin")) },
	TypeMmap:   func(dir string) Storage { return NewMmapStorage(filepath.Join(dir, "tables.bin")) },
	TypeSQLite: func(dir string) Storage { return NewSQLStorage("sqlite3", filepath.Join(dir, "tables.db")) },
}

func TestStorageRoundTrip(t *testing.T) {
	for name, open := range factories {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()

			// A new store starts from the seeded model.
			m := newModel(t)
			require.NoError(t, m.SetInputRegisters(0, []uint16{0xAAAA, 0xBBBB}))
			m.WriteDiscreteInput(9, true)

			st := open(dir)
			require.NoError(t, Bind(st, m))
			m.WriteCoil(19, true)
			m.WriteHoldingRegister(3, 0xBEEF)
			require.NoError(t, m.WriteMultipleHoldingRegisters(5, []uint16{1, 2, 3}))
			require.NoError(t, m.WriteMultipleCoils(0, []bool{true, false, true}))
			require.NoError(t, st.Close())

			// Protocol writes survive a restart.
			restored := newModel(t)
			st = open(dir)
			require.NoError(t, Bind(st, restored))
			defer st.Close()

			assert.True(t, restored.ReadCoil(0))
			assert.False(t, restored.ReadCoil(1))
			assert.True(t, restored.ReadCoil(2))
			assert.True(t, restored.ReadCoil(19))
			assert.Equal(t, uint16(0xBEEF), restored.ReadHoldingRegister(3))
			assert.Equal(t, uint16(1), restored.ReadHoldingRegister(5))
			assert.Equal(t, uint16(3), restored.ReadHoldingRegister(7))
			assert.Equal(t, uint16(0xBBBB), restored.ReadInputRegister(1))
			assert.True(t, restored.ReadDiscreteInput(9))
		})
	}
}

func TestStorageSave(t *testing.T) {
	for name, open := range factories {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()

			m := newModel(t)
			st := open(dir)
			require.NoError(t, st.Load(m))

			// Seeding writes bypass the hook; Save picks them up.
			m.WriteInputRegister(2, 0x0102)
			require.NoError(t, st.Save(m))
			require.NoError(t, st.Close())

			restored := newModel(t)
			st = open(dir)
			require.NoError(t, st.Load(restored))
			defer st.Close()
			assert.Equal(t, uint16(0x0102), restored.ReadInputRegister(2))
		})
	}
}

func TestStorageLayoutMismatch(t *testing.T) {
	for _, other := range []model.Capacity{
		{Coils: 1},
		{Coils: 5, DiscreteInputs: 5, HoldingRegisters: 5, InputRegisters: 5},
		{Coils: 20, DiscreteInputs: 10, HoldingRegisters: 8, InputRegisters: 5},
	} {
		for name, open := range factories {
			t.Run(name, func(t *testing.T) {
				dir := t.TempDir()
				m := newModel(t)
				st := open(dir)
				require.NoError(t, Bind(st, m))
				m.WriteHoldingRegister(7, 0xBEEF)
				require.NoError(t, st.Close())

				smaller, err := model.NewDataModelWithCapacity(other)
				require.NoError(t, err)
				err = open(dir).Load(smaller)
				assert.ErrorIs(t, err, ErrLayoutMismatch)

				// The rejected store is left intact.
				restored := newModel(t)
				st = open(dir)
				require.NoError(t, st.Load(restored))
				defer st.Close()
				assert.Equal(t, uint16(0xBEEF), restored.ReadHoldingRegister(7))
			})
		}
	}
}

func TestStorageZeroCapacity(t *testing.T) {
	for name, open := range factories {
		t.Run(name, func(t *testing.T) {
			m, err := model.NewDataModelWithCapacity(model.Capacity{})
			require.NoError(t, err)

			st := open(t.TempDir())
			require.NoError(t, Bind(st, m))
			assert.NoError(t, st.Save(m))
			assert.NoError(t, st.Close())
		})
	}
}

func TestSQLStorageBadRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.db")
	st := NewSQLStorage("sqlite3", path)
	require.NoError(t, st.Load(newModel(t)))
	_, err := st.db.Exec("UPDATE modbus_registers SET value = 'x' WHERE table_type = ? AND address = 0",
		int(model.TableHoldingRegisters))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st = NewSQLStorage("sqlite3", path)
	err = st.Load(newModel(t))
	require.Error(t, err)
	assert.Nil(t, st.db, "db must be closed after a failed load")
}

func TestFileImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.bin")
	m := newModel(t)
	st := NewFileStorage(path)
	require.NoError(t, Bind(st, m))
	m.WriteHoldingRegister(0, 0x1234)
	m.WriteCoil(1, true)
	require.NoError(t, st.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, 20+10+2*8+2*4)
	assert.Equal(t, []byte{0, 1, 0}, data[0:3])
	assert.Equal(t, []byte{0x12, 0x34}, data[30:32])
}

func TestMemoryStorage(t *testing.T) {
	m := newModel(t)
	st, err := Open(TypeMemory, "")
	require.NoError(t, err)
	require.NoError(t, Bind(st, m))
	m.WriteCoil(0, true)
	assert.True(t, m.ReadCoil(0))
	assert.NoError(t, st.Save(m))
	assert.NoError(t, st.Close())
}

func TestOpen(t *testing.T) {
	for typ, want := range map[string]Storage{
		"":         &MemoryStorage{},
		TypeMemory: &MemoryStorage{},
		TypeFile:   &FileStorage{},
		TypeMmap:   &MmapStorage{},
		TypeSQLite: &SQLStorage{},
	} {
		st, err := Open(typ, "x")
		require.NoError(t, err, typ)
		assert.IsType(t, want, st, typ)
	}

	_, err := Open("redis", "")
	assert.Error(t, err)
}

func TestLayoutSpan(t *testing.T) {
	l := newLayout(testCapacity)
	assert.Equal(t, 20+10+16+8, l.size)

	start, end := l.span(model.TableHoldingRegisters, 6, 10)
	assert.Equal(t, 30+12, start)
	assert.Equal(t, 30+16, end)

	start, end = l.span(model.TableCoils, 25, 30)
	assert.Equal(t, start, end)
}
