package main

// Default limits for CLI commands.
const (
	DefaultListLimit    = 50
	DefaultExportLimit  = 1000
	DefaultSimilarLimit = 5
	DefaultStatsDays    = 30
)

// Valid export formats.
var validFormats = []string{"json", "csv", "markdown"}
