package handlers

import (
	"context"

	"github.com/ersonp/chronicle/internal/domain/entities"
	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
	"github.com/ersonp/chronicle/internal/domain/services"
)

// CatalogHandler handles catalog reads and mutations at the application layer.
type CatalogHandler struct {
	catalog *services.EntityServices
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(catalog *services.EntityServices) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ProposeRequest describes one change as entered by a user.
type ProposeRequest struct {
	ActorID    string
	EntityType string
	Operation  string
	EntityID   string
	Fields     map[string]any
	// Comment is the request comment, or the reason for a DELETE.
	Comment string
}

// HandlePropose applies the change directly when the actor's role allows it
// and files a change request otherwise.
func (h *CatalogHandler) HandlePropose(ctx context.Context, req ProposeRequest) (*services.MutationResult, error) {
	t, err := entities.ParseEntityType(req.EntityType)
	if err != nil {
		return nil, err
	}
	op, err := entities.ParseOperation(req.Operation)
	if err != nil {
		return nil, err
	}
	svc, err := h.catalog.For(t)
	if err != nil {
		return nil, err
	}

	switch op {
	case entities.OpCreate:
		if req.EntityID != "" {
			return nil, domainErr.NewValidationError("entity_id", "must be empty for CREATE")
		}
		return svc.Create(ctx, req.ActorID, req.Fields, req.Comment)
	case entities.OpUpdate:
		return svc.Update(ctx, req.ActorID, req.EntityID, req.Fields, req.Comment)
	default:
		return svc.Delete(ctx, req.ActorID, req.EntityID, req.Comment)
	}
}

// RecordListResult contains one page of catalog records.
type RecordListResult struct {
	Records []entities.CatalogRecord `json:"records"`
}

// HandleList returns records of one entity type ordered by label.
func (h *CatalogHandler) HandleList(ctx context.Context, entityType string, limit, offset int) (*RecordListResult, error) {
	svc, err := h.service(entityType)
	if err != nil {
		return nil, err
	}
	records, err := svc.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	return &RecordListResult{Records: records}, nil
}

// HandleGet returns one record.
func (h *CatalogHandler) HandleGet(ctx context.Context, entityType, id string) (*entities.CatalogRecord, error) {
	svc, err := h.service(entityType)
	if err != nil {
		return nil, err
	}
	return svc.Get(ctx, id)
}

func (h *CatalogHandler) service(entityType string) (*services.EntityService, error) {
	t, err := entities.ParseEntityType(entityType)
	if err != nil {
		return nil, err
	}
	return h.catalog.For(t)
}
