// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

/*
Package modbus defines the transport independent part of the protocol:
function codes, exception codes and the protocol data unit.
*/
package modbus

import "fmt"

// FunctionCode identifies the operation carried by a PDU.
type FunctionCode byte

const (
	FuncCodeReadCoils              FunctionCode = 0x01
	FuncCodeReadDiscreteInputs     FunctionCode = 0x02
	FuncCodeReadHoldingRegisters   FunctionCode = 0x03
	FuncCodeReadInputRegisters     FunctionCode = 0x04
	FuncCodeWriteSingleCoil        FunctionCode = 0x05
	FuncCodeWriteSingleRegister    FunctionCode = 0x06
	FuncCodeReadExceptionStatus    FunctionCode = 0x07
	FuncCodeDiagnostics            FunctionCode = 0x08
	FuncCodeWriteMultipleCoils     FunctionCode = 0x0F
	FuncCodeWriteMultipleRegisters FunctionCode = 0x10
)

// ExceptionBit is set in the function code of an exception response.
const ExceptionBit = 0x80

var functionNames = map[FunctionCode]string{
	FuncCodeReadCoils:              "read coils",
	FuncCodeReadDiscreteInputs:     "read discrete inputs",
	FuncCodeReadHoldingRegisters:   "read holding registers",
	FuncCodeReadInputRegisters:     "read input registers",
	FuncCodeWriteSingleCoil:        "write single coil",
	FuncCodeWriteSingleRegister:    "write single register",
	FuncCodeReadExceptionStatus:    "read exception status",
	FuncCodeDiagnostics:            "diagnostics",
	FuncCodeWriteMultipleCoils:     "write multiple coils",
	FuncCodeWriteMultipleRegisters: "write multiple registers",
}

func (fc FunctionCode) String() string {
	if name, ok := functionNames[fc&^ExceptionBit]; ok {
		return name
	}
	return fmt.Sprintf("function 0x%02X", byte(fc))
}

// ExceptionCode is the single payload byte of an exception response.
type ExceptionCode byte

const (
	ExceptionCodeIllegalFunction                    ExceptionCode = 0x01
	ExceptionCodeIllegalDataAddress                 ExceptionCode = 0x02
	ExceptionCodeIllegalDataValue                   ExceptionCode = 0x03
	ExceptionCodeServerDeviceFailure                ExceptionCode = 0x04
	ExceptionCodeAcknowledge                        ExceptionCode = 0x05
	ExceptionCodeServerDeviceBusy                   ExceptionCode = 0x06
	ExceptionCodeNegativeAcknowledge                ExceptionCode = 0x07
	ExceptionCodeMemoryParityError                  ExceptionCode = 0x08
	ExceptionCodeGatewayPathUnavailable             ExceptionCode = 0x0A
	ExceptionCodeGatewayTargetDeviceFailedToRespond ExceptionCode = 0x0B
)

var exceptionNames = map[ExceptionCode]string{
	ExceptionCodeIllegalFunction:                    "illegal function",
	ExceptionCodeIllegalDataAddress:                 "illegal data address",
	ExceptionCodeIllegalDataValue:                   "illegal data value",
	ExceptionCodeServerDeviceFailure:                "server device failure",
	ExceptionCodeAcknowledge:                        "acknowledge",
	ExceptionCodeServerDeviceBusy:                   "server device busy",
	ExceptionCodeNegativeAcknowledge:                "negative acknowledge",
	ExceptionCodeMemoryParityError:                  "memory parity error",
	ExceptionCodeGatewayPathUnavailable:             "gateway path unavailable",
	ExceptionCodeGatewayTargetDeviceFailedToRespond: "gateway target device failed to respond",
}

// Error implements error so exception codes can travel as errors.
func (ec ExceptionCode) Error() string {
	name, ok := exceptionNames[ec]
	if !ok {
		name = "unknown"
	}
	return fmt.Sprintf("modbus: exception %d (%s)", byte(ec), name)
}

// DiagnosticsCode is the sub-function of a Diagnostics (0x08) request.
type DiagnosticsCode uint16

const (
	DiagReturnQueryData                    DiagnosticsCode = 0x0000
	DiagRestartCommunicationsOption        DiagnosticsCode = 0x0001
	DiagReturnDiagnosticRegister           DiagnosticsCode = 0x0002
	DiagClearCountersAndDiagnosticRegister DiagnosticsCode = 0x000A
	DiagReturnBusMessageCount              DiagnosticsCode = 0x000B
	DiagReturnBusCommunicationErrorCount   DiagnosticsCode = 0x000C
	DiagReturnBusExceptionErrorCount       DiagnosticsCode = 0x000D
	DiagReturnServerMessageCount           DiagnosticsCode = 0x000E
	DiagReturnServerNoResponseCount        DiagnosticsCode = 0x000F
)

// ProtocolDataUnit (PDU) is independent of underlying communication layers.
// For an exception FunctionCode has ExceptionBit set and Data holds the
// exception code.
type ProtocolDataUnit struct {
	FunctionCode byte
	Data         []byte
}
