// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"
)

// FrameHandler handles one request/response cycle.
// It takes a complete RTU Application Data Unit (ADU) and returns the
// response ADU. An empty result means no response is sent.
type FrameHandler func(adu []byte) []byte

// Upstream represents a source of requests (a Modbus master connected to us).
// It acts as a server.
type Upstream interface {
	// Start starts the server and blocks until ctx is cancelled or the
	// underlying connection fails. It should be called in a goroutine.
	Start(ctx context.Context, handler FrameHandler) error
	Close() error
}
