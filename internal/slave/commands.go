// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"encoding/binary"

	"github.com/ffutop/modbus-server/internal/model"
	"github.com/ffutop/modbus-server/modbus"
)

// ReadCoils handles function code 0x01.
func ReadCoils(m *model.DataModel, req modbus.Request) modbus.Frame {
	return readBits(req, m.MaxCoils(), m.ReadCoil)
}

// ReadDiscreteInputs handles function code 0x02.
func ReadDiscreteInputs(m *model.DataModel, req modbus.Request) modbus.Frame {
	return readBits(req, m.MaxDiscreteInputs(), m.ReadDiscreteInput)
}

// ReadHoldingRegisters handles function code 0x03.
func ReadHoldingRegisters(m *model.DataModel, req modbus.Request) modbus.Frame {
	return readRegisters(req, m.MaxHoldingRegisters(), m.ReadHoldingRegister)
}

// ReadInputRegisters handles function code 0x04.
func ReadInputRegisters(m *model.DataModel, req modbus.Request) modbus.Frame {
	return readRegisters(req, m.MaxInputRegisters(), m.ReadInputRegister)
}

func readBits(req modbus.Request, capacity int, read func(uint16) bool) modbus.Frame {
	quantity, err := validateQuantity(req, 1, MaxReadBits)
	if err != nil {
		return exception(req, err)
	}
	start, err := validateAddress(req, capacity)
	if err != nil {
		return exception(req, err)
	}

	byteCount := (int(quantity) + 7) / 8
	respData := make([]byte, 1+byteCount)
	respData[0] = byte(byteCount)
	for i := 0; i < int(quantity); i++ {
		if read(start + uint16(i)) {
			respData[1+i/8] |= 1 << (i % 8)
		}
	}

	return modbus.Response{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}
}

func readRegisters(req modbus.Request, capacity int, read func(uint16) uint16) modbus.Frame {
	quantity, err := validateQuantity(req, 1, MaxReadRegisters)
	if err != nil {
		return exception(req, err)
	}
	start, err := validateAddress(req, capacity)
	if err != nil {
		return exception(req, err)
	}

	respData := make([]byte, 1+2*int(quantity))
	respData[0] = byte(2 * quantity)
	for i := 0; i < int(quantity); i++ {
		binary.BigEndian.PutUint16(respData[1+2*i:], read(start+uint16(i)))
	}

	return modbus.Response{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}
}

// WriteSingleCoil handles function code 0x05. The response echoes the
// request.
func WriteSingleCoil(m *model.DataModel, req modbus.Request) modbus.Frame {
	if len(req.Data) < 4 {
		return exception(req, modbus.ExceptionCodeIllegalDataValue)
	}
	value := binary.BigEndian.Uint16(req.Data[2:4])
	if value != coilOn && value != coilOff {
		return exception(req, modbus.ExceptionCodeIllegalDataValue)
	}
	address, err := validateSingleAddress(req, m.MaxCoils())
	if err != nil {
		return exception(req, err)
	}

	m.WriteCoil(address, value == coilOn)
	return echo(req)
}

// WriteSingleRegister handles function code 0x06. The response echoes the
// request.
func WriteSingleRegister(m *model.DataModel, req modbus.Request) modbus.Frame {
	if len(req.Data) < 4 {
		return exception(req, modbus.ExceptionCodeIllegalDataValue)
	}
	address, err := validateSingleAddress(req, m.MaxHoldingRegisters())
	if err != nil {
		return exception(req, err)
	}

	m.WriteHoldingRegister(address, binary.BigEndian.Uint16(req.Data[2:4]))
	return echo(req)
}

// WriteMultipleCoils handles function code 0x0F.
func WriteMultipleCoils(m *model.DataModel, req modbus.Request) modbus.Frame {
	quantity, err := validateQuantity(req, 1, MaxWriteCoils)
	if err != nil {
		return exception(req, err)
	}
	if err := validateByteCount(req, (int(quantity)+7)/8); err != nil {
		return exception(req, err)
	}
	start, err := validateAddress(req, m.MaxCoils())
	if err != nil {
		return exception(req, err)
	}

	packed := req.Data[5:]
	values := make([]bool, quantity)
	for i := range values {
		values[i] = packed[i/8]&(1<<(i%8)) != 0
	}
	if err := m.WriteMultipleCoils(start, values); err != nil {
		return exception(req, err)
	}
	return echo(req)
}

// WriteMultipleRegisters handles function code 0x10.
func WriteMultipleRegisters(m *model.DataModel, req modbus.Request) modbus.Frame {
	quantity, err := validateQuantity(req, 1, MaxWriteRegisters)
	if err != nil {
		return exception(req, err)
	}
	if err := validateByteCount(req, 2*int(quantity)); err != nil {
		return exception(req, err)
	}
	start, err := validateAddress(req, m.MaxHoldingRegisters())
	if err != nil {
		return exception(req, err)
	}

	values := make([]uint16, quantity)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(req.Data[5+2*i:])
	}
	if err := m.WriteMultipleHoldingRegisters(start, values); err != nil {
		return exception(req, err)
	}
	return echo(req)
}

// echo replies with the first four payload bytes: address and value for
// single writes, start and quantity for multiple writes.
func echo(req modbus.Request) modbus.Frame {
	data := make([]byte, 4)
	copy(data, req.Data[:4])
	return modbus.Response{
		FunctionCode: req.FunctionCode,
		Data:         data,
	}
}
