// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package slave executes Modbus requests against a DataModel.
package slave

import (
	"errors"

	"github.com/ffutop/modbus-server/internal/model"
	"github.com/ffutop/modbus-server/modbus"
)

// Command executes one function code. It returns either a modbus.Response
// or a modbus.Exception, and leaves m untouched when it returns an
// exception.
type Command func(m *model.DataModel, req modbus.Request) modbus.Frame

// DefaultCommands returns a fresh table of the supported function codes.
func DefaultCommands() map[modbus.FunctionCode]Command {
	return map[modbus.FunctionCode]Command{
		modbus.FuncCodeReadCoils:              ReadCoils,
		modbus.FuncCodeReadDiscreteInputs:     ReadDiscreteInputs,
		modbus.FuncCodeReadHoldingRegisters:   ReadHoldingRegisters,
		modbus.FuncCodeReadInputRegisters:     ReadInputRegisters,
		modbus.FuncCodeWriteSingleCoil:        WriteSingleCoil,
		modbus.FuncCodeWriteSingleRegister:    WriteSingleRegister,
		modbus.FuncCodeDiagnostics:            Diagnostics,
		modbus.FuncCodeWriteMultipleCoils:     WriteMultipleCoils,
		modbus.FuncCodeWriteMultipleRegisters: WriteMultipleRegisters,
	}
}

// Slave implements the Modbus protocol logic on top of a DataModel.
type Slave struct {
	model    *model.DataModel
	commands map[modbus.FunctionCode]Command
}

// NewSlave creates a Slave serving m with DefaultCommands.
func NewSlave(m *model.DataModel) *Slave {
	return &Slave{
		model:    m,
		commands: DefaultCommands(),
	}
}

// Model returns the served data model.
func (s *Slave) Model() *model.DataModel {
	return s.model
}

// Register installs cmd for fc. A nil cmd removes the function code.
func (s *Slave) Register(fc modbus.FunctionCode, cmd Command) {
	if cmd == nil {
		delete(s.commands, fc)
		return
	}
	s.commands[fc] = cmd
}

// Supports reports whether fc has a registered command.
func (s *Slave) Supports(fc modbus.FunctionCode) bool {
	_, ok := s.commands[fc]
	return ok
}

// Execute runs the command registered for req.FunctionCode. Unregistered
// function codes yield an illegal function exception.
func (s *Slave) Execute(req modbus.Request) modbus.Frame {
	cmd, ok := s.commands[req.FunctionCode]
	if !ok {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalFunction)
	}
	return cmd(s.model, req)
}

// exception maps err to an exception reply. Errors that are not exception
// codes become a server device failure.
func exception(req modbus.Request, err error) modbus.Frame {
	var code modbus.ExceptionCode
	if !errors.As(err, &code) {
		code = modbus.ExceptionCodeServerDeviceFailure
	}
	return modbus.NewException(req.FunctionCode, code)
}
