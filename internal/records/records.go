// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package records keeps the legacy per-table raw uploads: whole workbook rows
// stored as JSON documents with file-hash duplicate detection and per-table
// unique-key upserts.
package records

import (
	"errors"
	"time"
)

// The four legacy tables. Anything else is rejected at the API boundary.
const (
	TableProvincialOperations  = "provincial_operations"
	TablePartsSales            = "parts_sales"
	TableRepairIncomeDetails   = "repair_income_details"
	TableTechnicianPerformance = "technician_performance"
)

// Tables lists the legal table names in a stable order.
var Tables = []string{
	TableProvincialOperations,
	TablePartsSales,
	TableRepairIncomeDetails,
	TableTechnicianPerformance,
}

// uniqueKeys are the header combinations that identify a logical row per
// table. Source data uses Chinese headers. Tables without an entry append
// every row.
var uniqueKeys = map[string][]string{
	TablePartsSales:          {"日期", "銷售人員", "零件編號", "廠別"},
	TableRepairIncomeDetails: {"日期", "技師", "工單號"},
}

var (
	ErrInvalidTable = errors.New("invalid table name")
	ErrNotFound     = errors.New("record not found")
)

// ValidTable reports whether name is one of the legacy tables.
func ValidTable(name string) bool {
	for _, t := range Tables {
		if t == name {
			return true
		}
	}
	return false
}

// UniqueKeys returns the unique-key headers for a table, nil when the table
// plain-appends.
func UniqueKeys(table string) []string {
	return uniqueKeys[table]
}

// Row is one stored workbook row.
type Row struct {
	ID        int64          `json:"id"`
	FileName  string         `json:"file_name"`
	RowNumber int            `json:"row_number"`
	Data      map[string]any `json:"data"`
	FileHash  string         `json:"file_hash,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// RowInput is one parsed workbook row headed for storage. RowNumber is the
// spreadsheet row (header row is 1).
type RowInput struct {
	RowNumber int
	Data      map[string]any
}

// UpsertResult summarizes a smart upload.
type UpsertResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Total    int `json:"total"`
}

// PriorUpload identifies an earlier upload with the same content hash.
type PriorUpload struct {
	ID        int64     `json:"id"`
	FileName  string    `json:"file_name"`
	CreatedAt time.Time `json:"created_at"`
}
