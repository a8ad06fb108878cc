// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

// Counter selects one of the serial line diagnostic counters.
type Counter int

const (
	// CounterBusMessage counts frames received with a valid CRC.
	CounterBusMessage Counter = iota
	// CounterBusCommunicationError counts CRC errors.
	CounterBusCommunicationError
	// CounterBusExceptionError counts exception responses returned.
	CounterBusExceptionError
	// CounterServerMessage counts frames addressed to this server,
	// broadcasts included.
	CounterServerMessage
	// CounterServerNoResponse counts addressed frames that got no reply.
	CounterServerNoResponse

	numCounters
)

// Counters are 16-bit and wrap, as reported on the wire.
type Counters struct {
	c [numCounters]uint16
}

func (c *Counters) Inc(cnt Counter) {
	if cnt < 0 || cnt >= numCounters {
		return
	}
	c.c[cnt]++
}

func (c *Counters) Get(cnt Counter) uint16 {
	if cnt < 0 || cnt >= numCounters {
		return 0
	}
	return c.c[cnt]
}

// Reset clears every counter.
func (c *Counters) Reset() {
	c.c = [numCounters]uint16{}
}
