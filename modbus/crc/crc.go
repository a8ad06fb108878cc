// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package crc implements the CRC-16 used by Modbus RTU framing
// (reflected polynomial 0xA001, initial value 0xFFFF).
package crc

// Polynomial is the reflected form of the Modbus CRC-16 polynomial 0x8005.
const Polynomial = 0xA001

var table [256]uint16

func init() {
	for i := range table {
		table[i] = update(0, byte(i))
	}
}

// update runs the bitwise algorithm for a single byte.
func update(value uint16, b byte) uint16 {
	value ^= uint16(b)
	for i := 0; i < 8; i++ {
		if value&0x0001 != 0 {
			value = (value >> 1) ^ Polynomial
		} else {
			value >>= 1
		}
	}
	return value
}

// CRC accumulates a Modbus CRC-16. The zero value must be Reset before use.
type CRC struct {
	value uint16
}

// Reset sets the register to its initial value 0xFFFF.
func (c *CRC) Reset() *CRC {
	c.value = 0xFFFF
	return c
}

// PushBytes feeds bs into the register.
func (c *CRC) PushBytes(bs []byte) *CRC {
	for _, b := range bs {
		c.value = (c.value >> 8) ^ table[byte(c.value)^b]
	}
	return c
}

// Value returns the current register. On the wire the low byte goes first.
func (c *CRC) Value() uint16 {
	return c.value
}

// Checksum returns the Modbus CRC-16 of data.
func Checksum(data []byte) uint16 {
	var c CRC
	return c.Reset().PushBytes(data).Value()
}

// Bitwise computes the same checksum without the lookup table.
func Bitwise(data []byte) uint16 {
	value := uint16(0xFFFF)
	for _, b := range data {
		value = update(value, b)
	}
	return value
}
