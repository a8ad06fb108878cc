// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"errors"
	"fmt"

	"github.com/ffutop/modbus-server/modbus"
	"github.com/ffutop/modbus-server/modbus/crc"
)

var (
	ErrShortFrame = errors.New("modbus: frame too short")
	ErrLongFrame  = errors.New("modbus: frame too long")
	ErrChecksum   = errors.New("modbus: crc mismatch")
)

// ApplicationDataUnit is an RTU frame: slave address, PDU and CRC.
type ApplicationDataUnit struct {
	SlaveID byte
	Pdu     modbus.ProtocolDataUnit
}

// Decode splits raw into an ADU after verifying length and CRC. The PDU data
// is copied so raw may be reused by the caller.
func Decode(raw []byte) (*ApplicationDataUnit, error) {
	length := len(raw)
	// Minimum size (including address, function and CRC)
	if length < MinSize {
		return nil, fmt.Errorf("%w: length '%v' does not meet minimum '%v'", ErrShortFrame, length, MinSize)
	}
	if length > MaxSize {
		return nil, fmt.Errorf("%w: length '%v' exceeds maximum '%v'", ErrLongFrame, length, MaxSize)
	}

	var c crc.CRC
	c.Reset().PushBytes(raw[0 : length-2])
	checksum := uint16(raw[length-1])<<8 | uint16(raw[length-2])
	if checksum != c.Value() {
		return nil, fmt.Errorf("%w: received '0x%04X', expected '0x%04X'", ErrChecksum, checksum, c.Value())
	}

	data := make([]byte, length-MinSize)
	copy(data, raw[2:length-2])
	return &ApplicationDataUnit{
		SlaveID: raw[0],
		Pdu: modbus.ProtocolDataUnit{
			FunctionCode: raw[1],
			Data:         data,
		},
	}, nil
}

// Frame classifies the carried PDU as a request or an exception.
func (adu *ApplicationDataUnit) Frame() modbus.Frame {
	return modbus.DecodeRequest(adu.Pdu)
}

// Encode encodes PDU in an RTU frame:
//
//	Slave Address   : 1 byte
//	Function        : 1 byte
//	Data            : 0 up to 252 bytes
//	CRC             : 2 bytes
func (adu *ApplicationDataUnit) Encode() (raw []byte, err error) {
	length := len(adu.Pdu.Data) + 4
	if length > MaxSize {
		err = fmt.Errorf("%w: length of data '%v' must not be bigger than '%v'", ErrLongFrame, length, MaxSize)
		return
	}
	raw = make([]byte, length)

	raw[0] = adu.SlaveID
	raw[1] = adu.Pdu.FunctionCode
	copy(raw[2:], adu.Pdu.Data)

	// Append crc
	checksum := crc.Checksum(raw[0 : length-2])
	raw[length-1] = byte(checksum >> 8)
	raw[length-2] = byte(checksum)
	return
}

// EncodeFrame wraps f for slaveID.
func EncodeFrame(slaveID byte, f modbus.Frame) ([]byte, error) {
	adu := &ApplicationDataUnit{SlaveID: slaveID, Pdu: f.PDU()}
	return adu.Encode()
}
