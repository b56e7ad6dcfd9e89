package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ersonp/chronicle/internal/domain/entities"
	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
	"github.com/ersonp/chronicle/internal/infrastructure/parsers"
)

// ImportOptions controls import behavior.
type ImportOptions struct {
	DryRun bool // Validate without saving
}

// ImportError represents an error for a specific record during import.
type ImportError struct {
	Line    int    // Line number (1-indexed, 0 if unknown)
	Field   string // Which field has the error
	Message string // Human-readable error message
}

func (e ImportError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// ImportResult contains the result of an import operation.
type ImportResult struct {
	Total    int
	Applied  int // changed directly
	Proposed int // filed as change requests
	Errors   []ImportError
}

// ImportService submits bulk catalog changes. Every record goes through
// the same role gate as a single edit, so an import by a regular user only
// files proposals.
type ImportService struct {
	catalog *EntityServices
}

// NewImportService creates a new import service.
func NewImportService(catalog *EntityServices) *ImportService {
	return &ImportService{catalog: catalog}
}

type importItem struct {
	line    int
	service *EntityService
	op      entities.OperationType
	id      string
	fields  map[string]any
	comment string
}

// Import validates every record and then submits the valid ones in order.
// Invalid records and records rejected by the store with a validation,
// not-found or duplicate error are reported per line; any other error
// stops the import.
func (s *ImportService) Import(ctx context.Context, actorID string, records []parsers.RawRecord, opts ImportOptions) (*ImportResult, error) {
	result := &ImportResult{Total: len(records)}

	items, validationErrors := s.validateRecords(records)
	result.Errors = validationErrors

	if opts.DryRun || len(items) == 0 {
		return result, nil
	}

	for _, item := range items {
		res, err := s.submit(ctx, actorID, item)
		if err != nil {
			if !isRecordError(err) {
				return result, fmt.Errorf("line %d: %w", item.line, err)
			}
			result.Errors = append(result.Errors, toImportError(item.line, err))
			continue
		}
		if res.Applied {
			result.Applied++
		} else {
			result.Proposed++
		}
	}

	log.WithFields(log.Fields{
		"actor":    actorID,
		"applied":  result.Applied,
		"proposed": result.Proposed,
		"errors":   len(result.Errors),
	}).Info("import finished")
	return result, nil
}

func (s *ImportService) submit(ctx context.Context, actorID string, item importItem) (*MutationResult, error) {
	switch item.op {
	case entities.OpCreate:
		return item.service.Create(ctx, actorID, item.fields, item.comment)
	case entities.OpUpdate:
		return item.service.Update(ctx, actorID, item.id, item.fields, item.comment)
	default:
		return item.service.Delete(ctx, actorID, item.id, item.comment)
	}
}

// validateRecords checks records without touching the store.
func (s *ImportService) validateRecords(records []parsers.RawRecord) ([]importItem, []ImportError) {
	var items []importItem
	var errs []ImportError

	for i := range records {
		line := records[i].LineNum
		if line == 0 {
			line = i + 1
		}
		item, err := s.validateRecord(&records[i], line)
		if err != nil {
			errs = append(errs, toImportError(line, err))
			continue
		}
		items = append(items, item)
	}

	return items, errs
}

func (s *ImportService) validateRecord(raw *parsers.RawRecord, line int) (importItem, error) {
	t, err := entities.ParseEntityType(raw.EntityType)
	if err != nil {
		return importItem{}, err
	}

	op := entities.OpCreate
	if strings.TrimSpace(raw.Operation) != "" {
		if op, err = entities.ParseOperation(raw.Operation); err != nil {
			return importItem{}, err
		}
	}

	item := importItem{
		line:    line,
		op:      op,
		id:      strings.TrimSpace(raw.EntityID),
		fields:  raw.Fields,
		comment: strings.TrimSpace(raw.Comment),
	}
	if item.service, err = s.catalog.For(t); err != nil {
		return importItem{}, err
	}

	switch op {
	case entities.OpCreate:
		if item.id != "" {
			return importItem{}, domainErr.NewValidationError("entity_id", "must be empty for CREATE")
		}
	case entities.OpUpdate, entities.OpDelete:
		if item.id == "" {
			return importItem{}, domainErr.NewValidationError("entity_id", "is required for %s", op)
		}
	}

	if op == entities.OpDelete {
		if len(item.fields) > 0 {
			return importItem{}, domainErr.NewValidationError("fields", "must be empty for DELETE")
		}
		return item, nil
	}
	if _, err := entities.NormalizePayload(t, item.fields); err != nil {
		return importItem{}, err
	}
	return item, nil
}

func isRecordError(err error) bool {
	return errors.Is(err, domainErr.ErrValidation) ||
		errors.Is(err, domainErr.ErrNotFound) ||
		errors.Is(err, domainErr.ErrDuplicate)
}

func toImportError(line int, err error) ImportError {
	ie := ImportError{Line: line, Message: err.Error()}
	var ve *domainErr.ValidationError
	if errors.As(err, &ve) {
		ie.Field = ve.Field
	}
	return ie
}
