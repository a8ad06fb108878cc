// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package crc

import (
	"testing"

	"pgregory.net/rapid"
)

func TestCRC(t *testing.T) {
	var crc CRC
	crc.Reset()
	crc.PushBytes([]byte{0x02, 0x07})

	if crc.Value() != 0x1241 {
		t.Fatalf("crc expected %v, actual %v", 0x1241, crc.Value())
	}
}

func TestChecksumFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		want  uint16
	}{
		{"ReadCoilsRequest", []byte{0x01, 0x01, 0x00, 0x00, 0x00, 0x08}, 0xCC3D},
		{"ReadCoilsResponse", []byte{0x01, 0x01, 0x01, 0xD5}, 0x1790},
		{"WriteMultipleRegistersRequest", []byte{0x01, 0x10, 0x00, 0x05, 0x00, 0x02, 0x04, 0x11, 0x22, 0x33, 0x44}, 0x6582},
		{"WriteMultipleRegistersResponse", []byte{0x01, 0x10, 0x00, 0x05, 0x00, 0x02}, 0xC951},
		{"Empty", []byte{}, 0xFFFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.frame); got != tt.want {
				t.Errorf("Checksum() = 0x%04X, want 0x%04X", got, tt.want)
			}
		})
	}
}

func TestChecksumMatchesBitwise(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOf(rapid.Byte()).Draw(t, "data")
		if Checksum(data) != Bitwise(data) {
			t.Fatalf("table and bitwise checksum differ for % x", data)
		}
	})
}

func TestChecksumIncremental(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOf(rapid.Byte()).Draw(t, "data")
		split := rapid.IntRange(0, len(data)).Draw(t, "split")

		var c CRC
		c.Reset().PushBytes(data[:split]).PushBytes(data[split:])
		if c.Value() != Checksum(data) {
			t.Fatalf("incremental checksum 0x%04X, want 0x%04X", c.Value(), Checksum(data))
		}
	})
}

// A frame followed by its own CRC (low byte first) always checks to zero.
func TestChecksumResidue(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOf(rapid.Byte()).Draw(t, "data")
		sum := Checksum(data)
		framed := append(append([]byte{}, data...), byte(sum), byte(sum>>8))
		if got := Checksum(framed); got != 0 {
			t.Fatalf("residue 0x%04X, want 0", got)
		}
	})
}

func BenchmarkChecksum(b *testing.B) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Checksum(data)
	}
}
