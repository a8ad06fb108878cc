// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"encoding/binary"

	"github.com/ffutop/modbus-server/modbus"
)

// Quantity limits per function, Modbus Application Protocol V1.1b3.
const (
	MaxReadBits       = 2000
	MaxReadRegisters  = 125
	MaxWriteCoils     = 1968
	MaxWriteRegisters = 123
)

const (
	coilOn  = 0xFF00
	coilOff = 0x0000
)

// validateQuantity checks the quantity field (bytes 2-3) is within
// [min, max].
func validateQuantity(req modbus.Request, min, max uint16) (uint16, error) {
	if len(req.Data) < 4 {
		return 0, modbus.ExceptionCodeIllegalDataValue
	}
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	if quantity < min || quantity > max {
		return 0, modbus.ExceptionCodeIllegalDataValue
	}
	return quantity, nil
}

// validateAddress checks the block [start, start+quantity) lies below
// maxValidAddress and does not wrap the 16-bit address space.
func validateAddress(req modbus.Request, maxValidAddress int) (uint16, error) {
	if len(req.Data) < 4 {
		return 0, modbus.ExceptionCodeIllegalDataValue
	}
	start := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	end := uint32(start) + uint32(quantity)

	if end > 0xFFFF {
		return 0, modbus.ExceptionCodeIllegalDataAddress
	}
	if int(start) >= maxValidAddress || int(end) > maxValidAddress {
		return 0, modbus.ExceptionCodeIllegalDataAddress
	}
	return start, nil
}

// validateSingleAddress checks the address field (bytes 0-1) of a single
// write.
func validateSingleAddress(req modbus.Request, capacity int) (uint16, error) {
	address := binary.BigEndian.Uint16(req.Data[0:2])
	if int(address) >= capacity {
		return 0, modbus.ExceptionCodeIllegalDataAddress
	}
	return address, nil
}

// validateByteCount checks the byte count field (byte 4) equals want and the
// payload carries that many bytes after it.
func validateByteCount(req modbus.Request, want int) error {
	if len(req.Data) < 5 {
		return modbus.ExceptionCodeIllegalDataValue
	}
	byteCount := int(req.Data[4])
	if byteCount != want || len(req.Data) < 5+byteCount {
		return modbus.ExceptionCodeIllegalDataValue
	}
	return nil
}
