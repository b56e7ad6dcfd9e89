package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Columns that describe the change rather than the record.
const (
	colOperation  = "operation"
	colEntityType = "entity_type"
	colEntityID   = "entity_id"
	colComment    = "comment"
)

// CSVParser parses records from CSV. The header names the columns:
// entity_type is required, operation, entity_id and comment are optional,
// and every other column is a record field. Empty cells are omitted.
type CSVParser struct{}

// Parse reads CSV from the reader and returns parsed records.
func (p *CSVParser) Parse(r io.Reader) ([]RawRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := p.readHeader(reader)
	if err != nil {
		return nil, err
	}

	return p.readRecords(reader, header)
}

// readHeader reads and validates the CSV header row.
func (p *CSVParser) readHeader(reader *csv.Reader) ([]string, error) {
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	seen := make(map[string]bool, len(header))
	for i, col := range header {
		col = strings.ToLower(strings.TrimSpace(col))
		if col == "" {
			return nil, fmt.Errorf("column %d has no name", i+1)
		}
		if seen[col] {
			return nil, fmt.Errorf("duplicate column: %s", col)
		}
		seen[col] = true
		header[i] = col
	}

	if !seen[colEntityType] {
		return nil, fmt.Errorf("missing required column: %s", colEntityType)
	}
	return header, nil
}

// readRecords reads all data rows and converts them to RawRecords.
func (p *CSVParser) readRecords(reader *csv.Reader, header []string) ([]RawRecord, error) {
	var records []RawRecord
	lineNum := 1 // Header is line 1

	for {
		lineNum++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		records = append(records, p.parseRow(row, header, lineNum))
	}

	return records, nil
}

// parseRow converts a CSV row to a RawRecord.
func (p *CSVParser) parseRow(row, header []string, lineNum int) RawRecord {
	rec := RawRecord{LineNum: lineNum}
	for i, col := range header {
		if i >= len(row) {
			break
		}
		value := strings.TrimSpace(row[i])
		switch col {
		case colOperation:
			rec.Operation = value
		case colEntityType:
			rec.EntityType = value
		case colEntityID:
			rec.EntityID = value
		case colComment:
			rec.Comment = value
		default:
			if value == "" {
				continue
			}
			if rec.Fields == nil {
				rec.Fields = make(map[string]any)
			}
			rec.Fields[col] = value
		}
	}
	return rec
}
