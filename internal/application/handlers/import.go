package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/ersonp/chronicle/internal/domain/services"
	"github.com/ersonp/chronicle/internal/infrastructure/parsers"
)

// ImportHandler handles bulk catalog changes from files.
type ImportHandler struct {
	service *services.ImportService
}

// NewImportHandler creates a new import handler.
func NewImportHandler(service *services.ImportService) *ImportHandler {
	return &ImportHandler{
		service: service,
	}
}

// ImportOptions controls import behavior.
type ImportOptions struct {
	Format string // "json", "csv", or "auto"
	DryRun bool   // Validate without submitting
}

// Handle parses filePath and submits every row on behalf of actorID.
func (h *ImportHandler) Handle(ctx context.Context, actorID, filePath string, opts ImportOptions) (*services.ImportResult, error) {
	var parser parsers.Parser
	if opts.Format == "" || opts.Format == "auto" {
		parser = parsers.ForFile(filePath)
	} else {
		parser = parsers.ForFormat(opts.Format)
	}

	if parser == nil {
		return nil, fmt.Errorf("unsupported format for file: %s", filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	records, err := parser.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("parsing file: %w", err)
	}

	if len(records) == 0 {
		return &services.ImportResult{}, nil
	}

	return h.service.Import(ctx, actorID, records, services.ImportOptions{DryRun: opts.DryRun})
}
