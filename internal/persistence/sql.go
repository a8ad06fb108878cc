// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/ffutop/modbus-server/internal/model"
)

const upsertQuery = "INSERT INTO modbus_registers (table_type, address, value) VALUES (?, ?, ?) " +
	"ON CONFLICT(table_type, address) DO UPDATE SET value=excluded.value"

// SQLStorage implements persistence using a SQL database.
// It assumes a table `modbus_registers` exists (or creates it).
type SQLStorage struct {
	driver string
	dsn    string
	db     *sql.DB
	model  *model.DataModel
}

// NewSQLStorage creates a new SQLStorage.
// Note: The driver (e.g., sqlite3) must be imported in main.go
func NewSQLStorage(driver, dsn string) *SQLStorage {
	return &SQLStorage{
		driver: driver,
		dsn:    dsn,
	}
}

// Load connects to the DB and loads the data. An empty table is filled from m.
func (s *SQLStorage) Load(m *model.DataModel) error {
	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	s.db = db

	if err := s.initSchema(); err != nil {
		s.Close()
		return fmt.Errorf("failed to init schema: %w", err)
	}

	var rowCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM modbus_registers").Scan(&rowCount); err != nil {
		s.Close()
		return fmt.Errorf("failed to count registers: %w", err)
	}
	s.model = m
	if rowCount == 0 {
		return s.Save(m)
	}
	if err := s.checkLayout(m.Capacity()); err != nil {
		s.Close()
		return err
	}

	rows, err := db.Query("SELECT table_type, address, value FROM modbus_registers")
	if err != nil {
		s.Close()
		return fmt.Errorf("failed to query registers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t, addr, val int
		if err := rows.Scan(&t, &addr, &val); err != nil {
			s.Close()
			return fmt.Errorf("failed to scan register: %w", err)
		}
		if addr < 0 || addr >= model.MaxCapacity {
			continue
		}

		switch model.TableType(t) {
		case model.TableCoils:
			m.WriteCoil(uint16(addr), val != 0)
		case model.TableDiscreteInputs:
			m.WriteDiscreteInput(uint16(addr), val != 0)
		case model.TableHoldingRegisters:
			m.WriteHoldingRegister(uint16(addr), uint16(val))
		case model.TableInputRegisters:
			m.WriteInputRegister(uint16(addr), uint16(val))
		}
	}
	return rows.Err()
}

// checkLayout compares the stored row count of each table with c.
func (s *SQLStorage) checkLayout(c model.Capacity) error {
	rows, err := s.db.Query("SELECT table_type, COUNT(*) FROM modbus_registers GROUP BY table_type")
	if err != nil {
		return fmt.Errorf("failed to count tables: %w", err)
	}
	defer rows.Close()

	stored := make(map[model.TableType]int)
	for rows.Next() {
		var t, n int
		if err := rows.Scan(&t, &n); err != nil {
			return fmt.Errorf("failed to scan table count: %w", err)
		}
		stored[model.TableType(t)] = n
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to count tables: %w", err)
	}

	l := newLayout(c)
	for _, table := range tables {
		if stored[table] != l.count(table) {
			return fmt.Errorf("%w: %s has %d %s rows, want %d", ErrLayoutMismatch, s.dsn, stored[table], table, l.count(table))
		}
		delete(stored, table)
	}
	if len(stored) > 0 {
		return fmt.Errorf("%w: %s has rows of %d unknown tables", ErrLayoutMismatch, s.dsn, len(stored))
	}
	return nil
}

func (s *SQLStorage) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS modbus_registers (
		table_type INTEGER,
		address INTEGER,
		value INTEGER,
		PRIMARY KEY (table_type, address)
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Save upserts every entry of m in one transaction.
func (s *SQLStorage) Save(m *model.DataModel) error {
	if s.db == nil {
		return fmt.Errorf("sql storage is not loaded")
	}
	c := m.Capacity()
	return s.upsert(func(stmt *sql.Stmt) error {
		for _, t := range []struct {
			table model.TableType
			count int
		}{
			{model.TableCoils, c.Coils},
			{model.TableDiscreteInputs, c.DiscreteInputs},
			{model.TableHoldingRegisters, c.HoldingRegisters},
			{model.TableInputRegisters, c.InputRegisters},
		} {
			for addr := 0; addr < t.count; addr++ {
				if _, err := stmt.Exec(int(t.table), addr, value(m, t.table, uint16(addr))); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// OnWrite upserts the changed registers to the DB.
func (s *SQLStorage) OnWrite(table model.TableType, address, quantity uint16) {
	if s.db == nil || s.model == nil {
		return
	}

	// OnWrite is called after the model update, so the new values are read
	// back from s.model.
	err := s.upsert(func(stmt *sql.Stmt) error {
		for i := 0; i < int(quantity); i++ {
			addr := int(address) + i
			if _, err := stmt.Exec(int(table), addr, value(s.model, table, uint16(addr))); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		slog.Error("Failed to persist registers", "table", table, "address", address, "quantity", quantity, "err", err)
	}
}

func (s *SQLStorage) upsert(fn func(stmt *sql.Stmt) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(upsertQuery)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	if err := fn(stmt); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to upsert: %w", err)
	}
	return tx.Commit()
}

func value(m *model.DataModel, table model.TableType, addr uint16) int64 {
	switch table {
	case model.TableCoils:
		return int64(boolByte(m.ReadCoil(addr)))
	case model.TableDiscreteInputs:
		return int64(boolByte(m.ReadDiscreteInput(addr)))
	case model.TableHoldingRegisters:
		return int64(m.ReadHoldingRegister(addr))
	case model.TableInputRegisters:
		return int64(m.ReadInputRegister(addr))
	}
	return 0
}

func (s *SQLStorage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
