package handlers

import (
	"context"
	"errors"

	"github.com/ersonp/chronicle/internal/domain/entities"
	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
	"github.com/ersonp/chronicle/internal/domain/services"
)

// ModerationHandler exposes the review workflow to the presentation layer.
type ModerationHandler struct {
	service *services.ModerationService
}

// NewModerationHandler creates a new ModerationHandler.
func NewModerationHandler(service *services.ModerationService) *ModerationHandler {
	return &ModerationHandler{service: service}
}

// ListOptions narrows a request listing. Filters are given as user input.
type ListOptions struct {
	EntityType string
	Status     string
	Mine       bool
	Limit      int
	Offset     int
}

// RequestListResult contains one page of change requests.
type RequestListResult struct {
	Requests []entities.ChangeRequest `json:"requests"`
	Total    int                      `json:"total"`
}

// HandleList lists the review queue, or the caller's own requests when
// opts.Mine is set.
func (h *ModerationHandler) HandleList(ctx context.Context, actorID string, opts ListOptions) (*RequestListResult, error) {
	filter := entities.ChangeRequestFilter{Limit: opts.Limit, Offset: opts.Offset}
	if opts.EntityType != "" {
		t, err := entities.ParseEntityType(opts.EntityType)
		if err != nil {
			return nil, err
		}
		filter.EntityType = t
	}
	if opts.Status != "" {
		st, err := entities.ParseStatus(opts.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = st
	}

	var (
		requests []entities.ChangeRequest
		total    int
		err      error
	)
	if opts.Mine {
		requests, total, err = h.service.MyRequests(ctx, actorID, filter)
	} else {
		requests, total, err = h.service.ListPending(ctx, actorID, filter)
	}
	if err != nil {
		return nil, err
	}

	return &RequestListResult{Requests: requests, Total: total}, nil
}

// HandleShow returns one request visible to the caller.
func (h *ModerationHandler) HandleShow(ctx context.Context, actorID, requestID string) (*entities.ChangeRequest, error) {
	return h.service.Get(ctx, actorID, requestID)
}

// HandleApprove approves a request. When the approval committed but the
// change could not be applied, the result is returned together with an
// error that says so.
func (h *ModerationHandler) HandleApprove(ctx context.Context, moderatorID, requestID, comment string) (*services.ApprovalResult, error) {
	result, err := h.service.Approve(ctx, moderatorID, requestID, comment)
	if err == nil {
		return result, nil
	}

	var partial *domainErr.PartialApprovalError
	if errors.As(err, &partial) {
		return result, &ApplyFailedError{Partial: partial}
	}
	return nil, err
}

// ApplyFailedError is returned by HandleApprove when the approval was
// recorded but the change could not be applied. It unwraps to the
// *PartialApprovalError, so errors.Is(err, ErrPartialApproval) holds.
type ApplyFailedError struct {
	Partial *domainErr.PartialApprovalError
}

func (e *ApplyFailedError) Error() string {
	return "approval recorded, but applying the change failed: " + e.Partial.Err.Error()
}

func (e *ApplyFailedError) Unwrap() error { return e.Partial }

// HandleReject rejects a request with a mandatory comment.
func (h *ModerationHandler) HandleReject(ctx context.Context, moderatorID, requestID, comment string) (*entities.ChangeRequest, error) {
	return h.service.Reject(ctx, moderatorID, requestID, comment)
}

// HandleStats returns review statistics for the last periodDays days.
func (h *ModerationHandler) HandleStats(ctx context.Context, actorID string, periodDays int) (*services.Statistics, error) {
	return h.service.Statistics(ctx, actorID, periodDays)
}

// HandlePurge deletes reviewed requests older than daysOld days.
func (h *ModerationHandler) HandlePurge(ctx context.Context, adminID string, daysOld int) (*services.PurgeResult, error) {
	return h.service.PurgeOld(ctx, adminID, daysOld)
}

// HandleSimilar lists catalog records resembling a request's payload.
func (h *ModerationHandler) HandleSimilar(ctx context.Context, moderatorID, requestID string, limit int) ([]entities.SimilarEntity, error) {
	return h.service.SimilarEntities(ctx, moderatorID, requestID, limit)
}
