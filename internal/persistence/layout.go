// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"encoding/binary"

	"github.com/ffutop/modbus-server/internal/model"
)

// layout places the four tables back to back in one byte image:
// one byte per coil and discrete input, two big-endian bytes per register.
type layout struct {
	capacity model.Capacity
	offsets  [4]int
	size     int
}

func newLayout(c model.Capacity) layout {
	l := layout{capacity: c}
	l.offsets[model.TableCoils] = 0
	l.offsets[model.TableDiscreteInputs] = c.Coils
	l.offsets[model.TableHoldingRegisters] = c.Coils + c.DiscreteInputs
	l.offsets[model.TableInputRegisters] = c.Coils + c.DiscreteInputs + 2*c.HoldingRegisters
	l.size = l.offsets[model.TableInputRegisters] + 2*c.InputRegisters
	return l
}

func (l layout) count(table model.TableType) int {
	switch table {
	case model.TableCoils:
		return l.capacity.Coils
	case model.TableDiscreteInputs:
		return l.capacity.DiscreteInputs
	case model.TableHoldingRegisters:
		return l.capacity.HoldingRegisters
	case model.TableInputRegisters:
		return l.capacity.InputRegisters
	}
	return 0
}

func width(table model.TableType) int {
	if table == model.TableHoldingRegisters || table == model.TableInputRegisters {
		return 2
	}
	return 1
}

// span returns the byte range of entries [first, last) in table, clipped to
// the table size.
func (l layout) span(table model.TableType, first, last int) (start, end int) {
	if n := l.count(table); last > n {
		last = n
	}
	if first > last {
		first = last
	}
	w := width(table)
	return l.offsets[table] + first*w, l.offsets[table] + last*w
}

// encodeRange copies [address, address+quantity) of table from m into buf
// and returns the byte range written.
func (l layout) encodeRange(m *model.DataModel, buf []byte, table model.TableType, address, quantity uint16) (start, end int) {
	return l.encodeSpan(m, buf, table, int(address), int(address)+int(quantity))
}

func (l layout) encodeSpan(m *model.DataModel, buf []byte, table model.TableType, first, last int) (start, end int) {
	start, end = l.span(table, first, last)
	w := width(table)
	for off := start; off < end; off += w {
		i := uint16((off - l.offsets[table]) / w)
		switch table {
		case model.TableCoils:
			buf[off] = boolByte(m.ReadCoil(i))
		case model.TableDiscreteInputs:
			buf[off] = boolByte(m.ReadDiscreteInput(i))
		case model.TableHoldingRegisters:
			binary.BigEndian.PutUint16(buf[off:], m.ReadHoldingRegister(i))
		case model.TableInputRegisters:
			binary.BigEndian.PutUint16(buf[off:], m.ReadInputRegister(i))
		}
	}
	return start, end
}

// encode copies every table of m into buf, which must hold l.size bytes.
func (l layout) encode(m *model.DataModel, buf []byte) {
	for _, table := range tables {
		l.encodeSpan(m, buf, table, 0, l.count(table))
	}
}

// decode copies buf into m.
func (l layout) decode(buf []byte, m *model.DataModel) error {
	coils := make([]bool, l.capacity.Coils)
	for i := range coils {
		coils[i] = buf[l.offsets[model.TableCoils]+i] != 0
	}
	discrete := make([]bool, l.capacity.DiscreteInputs)
	for i := range discrete {
		discrete[i] = buf[l.offsets[model.TableDiscreteInputs]+i] != 0
	}
	holding := make([]uint16, l.capacity.HoldingRegisters)
	for i := range holding {
		holding[i] = binary.BigEndian.Uint16(buf[l.offsets[model.TableHoldingRegisters]+2*i:])
	}
	input := make([]uint16, l.capacity.InputRegisters)
	for i := range input {
		input[i] = binary.BigEndian.Uint16(buf[l.offsets[model.TableInputRegisters]+2*i:])
	}

	if err := m.WriteMultipleCoils(0, coils); err != nil {
		return err
	}
	if err := m.SetDiscreteInputs(0, discrete); err != nil {
		return err
	}
	if err := m.WriteMultipleHoldingRegisters(0, holding); err != nil {
		return err
	}
	return m.SetInputRegisters(0, input)
}

var tables = []model.TableType{
	model.TableCoils,
	model.TableDiscreteInputs,
	model.TableHoldingRegisters,
	model.TableInputRegisters,
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
