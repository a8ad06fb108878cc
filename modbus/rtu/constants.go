// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

const (
	// MinSize is address + function code + CRC.
	MinSize = 4
	// MaxSize is address + 253 byte PDU + CRC.
	MaxSize = 256

	// ExceptionSize is address + function code + exception code + CRC.
	ExceptionSize = 5

	// HeaderSize is the number of leading bytes needed to size any
	// supported request, up to the byte count of 0x0F/0x10.
	HeaderSize = 7

	// BroadcastAddress is never answered.
	BroadcastAddress = 0
)
