// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

// FrameType classifies a decoded PDU.
type FrameType int

const (
	FrameTypeNone FrameType = iota
	FrameTypeRequest
	FrameTypeResponse
	FrameTypeException
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeRequest:
		return "request"
	case FrameTypeResponse:
		return "response"
	case FrameTypeException:
		return "exception"
	default:
		return "none"
	}
}

// Frame is a decoded PDU. It is implemented by Request, Response and
// Exception only.
type Frame interface {
	Type() FrameType
	Function() FunctionCode
	// PDU returns the wire form of the frame.
	PDU() ProtocolDataUnit

	frame()
}

// Request is a PDU sent by a client.
type Request struct {
	FunctionCode FunctionCode
	Data         []byte
}

func (Request) Type() FrameType          { return FrameTypeRequest }
func (r Request) Function() FunctionCode { return r.FunctionCode }
func (r Request) PDU() ProtocolDataUnit {
	return ProtocolDataUnit{FunctionCode: byte(r.FunctionCode), Data: r.Data}
}
func (Request) frame() {}

// Response is a normal (non exception) reply.
type Response struct {
	FunctionCode FunctionCode
	Data         []byte
}

func (Response) Type() FrameType          { return FrameTypeResponse }
func (r Response) Function() FunctionCode { return r.FunctionCode }
func (r Response) PDU() ProtocolDataUnit {
	return ProtocolDataUnit{FunctionCode: byte(r.FunctionCode), Data: r.Data}
}
func (Response) frame() {}

// Exception is an error reply. FunctionCode is the original function code,
// without ExceptionBit.
type Exception struct {
	FunctionCode  FunctionCode
	ExceptionCode ExceptionCode
}

// NewException builds the exception reply to function fc.
func NewException(fc FunctionCode, code ExceptionCode) Exception {
	return Exception{FunctionCode: fc &^ ExceptionBit, ExceptionCode: code}
}

func (Exception) Type() FrameType          { return FrameTypeException }
func (e Exception) Function() FunctionCode { return e.FunctionCode }
func (e Exception) PDU() ProtocolDataUnit {
	return ProtocolDataUnit{
		FunctionCode: byte(e.FunctionCode) | ExceptionBit,
		Data:         []byte{byte(e.ExceptionCode)},
	}
}
func (Exception) frame() {}

// Error reports the exception together with the function it answers.
func (e Exception) Error() string {
	return e.ExceptionCode.Error() + ", function '" + e.FunctionCode.String() + "'"
}

// DecodeRequest classifies a PDU received by a server. A function code with
// ExceptionBit set yields an Exception whose code is the first data byte;
// anything else is a Request.
func DecodeRequest(pdu ProtocolDataUnit) Frame {
	if pdu.FunctionCode&ExceptionBit != 0 {
		var code ExceptionCode
		if len(pdu.Data) > 0 {
			code = ExceptionCode(pdu.Data[0])
		}
		return NewException(FunctionCode(pdu.FunctionCode), code)
	}
	return Request{FunctionCode: FunctionCode(pdu.FunctionCode), Data: pdu.Data}
}
