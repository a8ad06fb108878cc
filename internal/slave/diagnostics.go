// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"encoding/binary"

	"github.com/ffutop/modbus-server/internal/model"
	"github.com/ffutop/modbus-server/modbus"
)

var diagnosticCounters = map[modbus.DiagnosticsCode]model.Counter{
	modbus.DiagReturnBusMessageCount:            model.CounterBusMessage,
	modbus.DiagReturnBusCommunicationErrorCount: model.CounterBusCommunicationError,
	modbus.DiagReturnBusExceptionErrorCount:     model.CounterBusExceptionError,
	modbus.DiagReturnServerMessageCount:         model.CounterServerMessage,
	modbus.DiagReturnServerNoResponseCount:      model.CounterServerNoResponse,
}

// Diagnostics handles function code 0x08 for serial line diagnostics.
func Diagnostics(m *model.DataModel, req modbus.Request) modbus.Frame {
	if len(req.Data) < 4 {
		return exception(req, modbus.ExceptionCodeIllegalDataValue)
	}
	sub := modbus.DiagnosticsCode(binary.BigEndian.Uint16(req.Data[0:2]))

	switch sub {
	case modbus.DiagReturnQueryData:
		data := make([]byte, len(req.Data))
		copy(data, req.Data)
		return modbus.Response{FunctionCode: req.FunctionCode, Data: data}
	case modbus.DiagRestartCommunicationsOption, modbus.DiagClearCountersAndDiagnosticRegister:
		m.Counters.Reset()
		return diagnosticReply(req, sub, 0)
	case modbus.DiagReturnDiagnosticRegister:
		return diagnosticReply(req, sub, 0)
	}

	if counter, ok := diagnosticCounters[sub]; ok {
		return diagnosticReply(req, sub, m.Counters.Get(counter))
	}
	return exception(req, modbus.ExceptionCodeIllegalFunction)
}

func diagnosticReply(req modbus.Request, sub modbus.DiagnosticsCode, value uint16) modbus.Frame {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], uint16(sub))
	binary.BigEndian.PutUint16(data[2:4], value)
	return modbus.Response{FunctionCode: req.FunctionCode, Data: data}
}
