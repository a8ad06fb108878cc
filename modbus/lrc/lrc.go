// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package lrc implements the longitudinal redundancy check of Modbus ASCII.
package lrc

// LRC accumulates the byte sum modulo 256.
type LRC struct {
	sum uint8
}

// Reset clears the sum.
func (l *LRC) Reset() *LRC {
	l.sum = 0
	return l
}

// Push adds bs to the sum.
func (l *LRC) Push(bs ...byte) *LRC {
	for _, b := range bs {
		l.sum += b
	}
	return l
}

// Value returns the two's complement of the sum.
func (l *LRC) Value() uint8 {
	return uint8(-int8(l.sum))
}

// Checksum returns the LRC of data.
func Checksum(data []byte) uint8 {
	var l LRC
	return l.Push(data...).Value()
}
