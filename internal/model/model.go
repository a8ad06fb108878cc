// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"errors"
	"fmt"
)

const (
	DefaultCoils            = 2000
	DefaultDiscreteInputs   = 2000
	DefaultHoldingRegisters = 125
	DefaultInputRegisters   = 125

	// MaxCapacity covers the full 16-bit address space.
	MaxCapacity = 65536
)

// ErrOutOfRange is returned by batch writes that do not fit the table.
var ErrOutOfRange = errors.New("model: range out of bounds")

// TableType represents the type of Modbus data table.
type TableType int

const (
	TableCoils TableType = iota
	TableDiscreteInputs
	TableHoldingRegisters
	TableInputRegisters
)

func (t TableType) String() string {
	switch t {
	case TableCoils:
		return "coils"
	case TableDiscreteInputs:
		return "discrete_inputs"
	case TableHoldingRegisters:
		return "holding_registers"
	case TableInputRegisters:
		return "input_registers"
	default:
		return fmt.Sprintf("table(%d)", int(t))
	}
}

// Capacity is the number of entries in each table.
type Capacity struct {
	Coils            int `mapstructure:"coils"`
	DiscreteInputs   int `mapstructure:"discrete_inputs"`
	HoldingRegisters int `mapstructure:"holding_registers"`
	InputRegisters   int `mapstructure:"input_registers"`
}

// DefaultCapacity returns the protocol limits per table.
func DefaultCapacity() Capacity {
	return Capacity{
		Coils:            DefaultCoils,
		DiscreteInputs:   DefaultDiscreteInputs,
		HoldingRegisters: DefaultHoldingRegisters,
		InputRegisters:   DefaultInputRegisters,
	}
}

// Validate checks every table size is within [0, MaxCapacity].
func (c Capacity) Validate() error {
	for _, v := range []struct {
		table TableType
		size  int
	}{
		{TableCoils, c.Coils},
		{TableDiscreteInputs, c.DiscreteInputs},
		{TableHoldingRegisters, c.HoldingRegisters},
		{TableInputRegisters, c.InputRegisters},
	} {
		if v.size < 0 || v.size > MaxCapacity {
			return fmt.Errorf("model: %s capacity %d outside [0, %d]", v.table, v.size, MaxCapacity)
		}
	}
	return nil
}

// WriteHook is called after coils or holding registers change through
// the protocol facing write methods.
type WriteHook func(table TableType, address, quantity uint16)

// DataModel holds the four Modbus tables in memory.
//
// Reads outside a table return the zero value and single writes outside a
// table are ignored; protocol level address checks happen before the model
// is touched. DataModel does no locking.
type DataModel struct {
	// 0x Coils (Read/Write).
	coils []bool
	// 1x Discrete Inputs (Read Only).
	discreteInputs []bool
	// 4x Holding Registers (Read/Write).
	holdingRegisters []uint16
	// 3x Input Registers (Read Only).
	inputRegisters []uint16

	// Counters are the serial line diagnostic counters.
	Counters Counters

	hook WriteHook
}

// NewDataModel creates a zeroed model with the default capacity.
func NewDataModel() *DataModel {
	m, _ := NewDataModelWithCapacity(DefaultCapacity())
	return m
}

// NewDataModelWithCapacity creates a zeroed model sized by c.
func NewDataModelWithCapacity(c Capacity) (*DataModel, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &DataModel{
		coils:            make([]bool, c.Coils),
		discreteInputs:   make([]bool, c.DiscreteInputs),
		holdingRegisters: make([]uint16, c.HoldingRegisters),
		inputRegisters:   make([]uint16, c.InputRegisters),
	}, nil
}

// SetWriteHook installs h, replacing any previous hook. nil removes it.
func (m *DataModel) SetWriteHook(h WriteHook) {
	m.hook = h
}

func (m *DataModel) notify(table TableType, address, quantity uint16) {
	if m.hook != nil {
		m.hook(table, address, quantity)
	}
}

// Capacity reports the configured table sizes.
func (m *DataModel) Capacity() Capacity {
	return Capacity{
		Coils:            len(m.coils),
		DiscreteInputs:   len(m.discreteInputs),
		HoldingRegisters: len(m.holdingRegisters),
		InputRegisters:   len(m.inputRegisters),
	}
}

func (m *DataModel) MaxCoils() int            { return len(m.coils) }
func (m *DataModel) MaxDiscreteInputs() int   { return len(m.discreteInputs) }
func (m *DataModel) MaxHoldingRegisters() int { return len(m.holdingRegisters) }
func (m *DataModel) MaxInputRegisters() int   { return len(m.inputRegisters) }

func (m *DataModel) ReadCoil(index uint16) bool {
	if int(index) < len(m.coils) {
		return m.coils[index]
	}
	return false
}

func (m *DataModel) ReadDiscreteInput(index uint16) bool {
	if int(index) < len(m.discreteInputs) {
		return m.discreteInputs[index]
	}
	return false
}

func (m *DataModel) ReadHoldingRegister(index uint16) uint16 {
	if int(index) < len(m.holdingRegisters) {
		return m.holdingRegisters[index]
	}
	return 0
}

func (m *DataModel) ReadInputRegister(index uint16) uint16 {
	if int(index) < len(m.inputRegisters) {
		return m.inputRegisters[index]
	}
	return 0
}

// WriteCoil sets one coil. Out of range indices are ignored.
func (m *DataModel) WriteCoil(index uint16, value bool) {
	if int(index) >= len(m.coils) {
		return
	}
	m.coils[index] = value
	m.notify(TableCoils, index, 1)
}

// WriteHoldingRegister sets one holding register. Out of range indices are
// ignored.
func (m *DataModel) WriteHoldingRegister(index uint16, value uint16) {
	if int(index) >= len(m.holdingRegisters) {
		return
	}
	m.holdingRegisters[index] = value
	m.notify(TableHoldingRegisters, index, 1)
}

// WriteDiscreteInput seeds a discrete input. Discrete inputs are read-only
// to the protocol; this is for the process side (tests, sampling, storage).
func (m *DataModel) WriteDiscreteInput(index uint16, value bool) {
	if int(index) < len(m.discreteInputs) {
		m.discreteInputs[index] = value
	}
}

// WriteInputRegister seeds an input register, see WriteDiscreteInput.
func (m *DataModel) WriteInputRegister(index uint16, value uint16) {
	if int(index) < len(m.inputRegisters) {
		m.inputRegisters[index] = value
	}
}

// WriteMultipleCoils writes values starting at start. Either all values are
// written or, when the range does not fit, none.
func (m *DataModel) WriteMultipleCoils(start uint16, values []bool) error {
	if !fits(start, len(values), len(m.coils)) {
		return fmt.Errorf("%w: coils %d+%d > %d", ErrOutOfRange, start, len(values), len(m.coils))
	}
	copy(m.coils[start:], values)
	if len(values) > 0 {
		m.notify(TableCoils, start, uint16(len(values)))
	}
	return nil
}

// WriteMultipleHoldingRegisters writes values starting at start with the same
// all-or-nothing rule as WriteMultipleCoils.
func (m *DataModel) WriteMultipleHoldingRegisters(start uint16, values []uint16) error {
	if !fits(start, len(values), len(m.holdingRegisters)) {
		return fmt.Errorf("%w: holding registers %d+%d > %d", ErrOutOfRange, start, len(values), len(m.holdingRegisters))
	}
	copy(m.holdingRegisters[start:], values)
	if len(values) > 0 {
		m.notify(TableHoldingRegisters, start, uint16(len(values)))
	}
	return nil
}

// SetDiscreteInputs seeds a block of discrete inputs, all-or-nothing.
func (m *DataModel) SetDiscreteInputs(start uint16, values []bool) error {
	if !fits(start, len(values), len(m.discreteInputs)) {
		return fmt.Errorf("%w: discrete inputs %d+%d > %d", ErrOutOfRange, start, len(values), len(m.discreteInputs))
	}
	copy(m.discreteInputs[start:], values)
	return nil
}

// SetInputRegisters seeds a block of input registers, all-or-nothing.
func (m *DataModel) SetInputRegisters(start uint16, values []uint16) error {
	if !fits(start, len(values), len(m.inputRegisters)) {
		return fmt.Errorf("%w: input registers %d+%d > %d", ErrOutOfRange, start, len(values), len(m.inputRegisters))
	}
	copy(m.inputRegisters[start:], values)
	return nil
}

func fits(start uint16, count, capacity int) bool {
	return int(start)+count <= capacity
}
