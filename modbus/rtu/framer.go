// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"errors"
	"fmt"
	"io"

	"github.com/ffutop/modbus-server/modbus"
)

// ErrUnknownLength is returned when the request length cannot be derived
// from its header. Stream transports then fall back to the silent interval.
var ErrUnknownLength = errors.New("modbus: request length undetermined")

// CalculateRequestLength returns the expected total length of the Request RTU ADU based on the header.
func CalculateRequestLength(funcCode byte, header []byte) (int, error) {
	// [SlaveID, Func, Appd1, Appd2, Appd3, Appd4, ByteCount]
	switch modbus.FunctionCode(funcCode) {
	case modbus.FuncCodeReadExceptionStatus:
		return MinSize, nil
	case modbus.FuncCodeReadCoils,
		modbus.FuncCodeReadDiscreteInputs,
		modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeReadInputRegisters,
		modbus.FuncCodeWriteSingleCoil,
		modbus.FuncCodeWriteSingleRegister,
		modbus.FuncCodeDiagnostics:
		// Fixed 8 bytes: [SlaveID, Func, Addr(2), Val(2), CRC(2)]
		return 8, nil
	case modbus.FuncCodeWriteMultipleCoils,
		modbus.FuncCodeWriteMultipleRegisters:
		// Req: [SlaveID, Func, Addr(2), Quant(2), ByteCount(1), Data(N), CRC(2)]
		if len(header) < HeaderSize {
			return 0, fmt.Errorf("need %d bytes to determine length for 0x%02X, got %d", HeaderSize, funcCode, len(header))
		}
		byteCount := int(header[6])
		return HeaderSize + byteCount + 2, nil
	default:
		return 0, fmt.Errorf("%w: function code 0x%02X", ErrUnknownLength, funcCode)
	}
}

// ReadRequest reads one request ADU from r into buf, which should hold
// MaxSize bytes, and returns its length.
//
// The length is derived from the function code. Frames whose length is
// unknown end at the first read that fails or returns no data, which is how
// serial ports and deadline-bound connections report the silent interval.
// An error before the first byte is returned as is. Once a byte has arrived
// the frame is read on, and a frame cut short returns ErrShortFrame.
func ReadRequest(r io.Reader, buf []byte) (int, error) {
	n, err := r.Read(buf[:1])
	if n == 0 {
		return 0, err
	}

	current := 1
	if current, err = readTo(r, buf, current, 2); err != nil {
		return current, err
	}

	length, err := CalculateRequestLength(buf[1], buf[:current])
	switch {
	case errors.Is(err, ErrUnknownLength):
		return readUntilSilence(r, buf, current), nil
	case err != nil:
		if current, err = readTo(r, buf, current, HeaderSize); err != nil {
			return current, err
		}
		if length, err = CalculateRequestLength(buf[1], buf[:current]); err != nil {
			return current, err
		}
	}

	if length > len(buf) {
		return current, fmt.Errorf("%w: announced length %d exceeds buffer %d", ErrLongFrame, length, len(buf))
	}
	return readTo(r, buf, current, length)
}

// readTo fills buf[current:want].
func readTo(r io.Reader, buf []byte, current, want int) (int, error) {
	for current < want {
		n, err := r.Read(buf[current:want])
		current += n
		if current >= want {
			break
		}
		if err == nil && n == 0 {
			err = io.ErrUnexpectedEOF
		}
		if err != nil {
			return current, fmt.Errorf("%w: got %d of %d bytes: %w", ErrShortFrame, current, want, err)
		}
	}
	return current, nil
}

func readUntilSilence(r io.Reader, buf []byte, current int) int {
	for current < len(buf) {
		n, err := r.Read(buf[current:])
		current += n
		if err != nil || n == 0 {
			break
		}
	}
	return current
}
