// Package parsers reads bulk catalog proposals from JSON and CSV files.
package parsers

import (
	"io"
	"path/filepath"
	"strings"
)

// RawRecord is one proposed catalog change as read from a file, before
// validation.
type RawRecord struct {
	// Operation is CREATE, UPDATE or DELETE. Empty means CREATE.
	Operation  string         `json:"operation,omitempty"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	Comment    string         `json:"comment,omitempty"`
	LineNum    int            `json:"-"` // Line number in source file (set by parser)
}

// Parser defines the interface for parsing records from various formats.
type Parser interface {
	Parse(r io.Reader) ([]RawRecord, error)
}

// ForFormat returns the appropriate parser for the given format.
// Supported formats: "json", "csv".
func ForFormat(format string) Parser {
	switch strings.ToLower(format) {
	case "json":
		return &JSONParser{}
	case "csv":
		return &CSVParser{}
	default:
		return nil
	}
}

// ForFile returns the appropriate parser based on file extension.
func ForFile(filename string) Parser {
	return ForFormat(strings.TrimPrefix(filepath.Ext(filename), "."))
}
