package parsers

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONParser parses records from a JSON array.
type JSONParser struct{}

// Parse reads JSON from the reader and returns parsed records.
func (p *JSONParser) Parse(r io.Reader) ([]RawRecord, error) {
	var records []RawRecord

	decoder := json.NewDecoder(r)
	decoder.UseNumber()
	if err := decoder.Decode(&records); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	// Set line numbers (array index + 1, 1-indexed)
	for i := range records {
		records[i].LineNum = i + 1
		for k, v := range records[i].Fields {
			if n, ok := v.(json.Number); ok {
				records[i].Fields[k] = n.String()
			}
		}
	}

	return records, nil
}
