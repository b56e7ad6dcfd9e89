package handlers

import (
	"context"

	"github.com/ersonp/chronicle/internal/domain/entities"
	"github.com/ersonp/chronicle/internal/domain/services"
)

// AccountHandler handles sign-in and user administration.
type AccountHandler struct {
	accounts *services.AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts *services.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// HandleLogin checks credentials and returns the acting user.
func (h *AccountHandler) HandleLogin(ctx context.Context, username, password string) (*entities.User, error) {
	return h.accounts.Authenticate(ctx, username, password)
}

// HandleRegister creates a USER account.
func (h *AccountHandler) HandleRegister(ctx context.Context, nu entities.NewUser) (*entities.User, error) {
	return h.accounts.Register(ctx, nu)
}

// HandleAdd creates an account with the given role on behalf of an admin.
func (h *AccountHandler) HandleAdd(ctx context.Context, adminID string, nu entities.NewUser, role string) (*entities.User, error) {
	r, err := entities.ParseRole(role)
	if err != nil {
		return nil, err
	}
	return h.accounts.AddUser(ctx, adminID, nu, r)
}

// HandleSetRole changes the role of the user called username.
func (h *AccountHandler) HandleSetRole(ctx context.Context, adminID, username, role string) (*entities.User, error) {
	r, err := entities.ParseRole(role)
	if err != nil {
		return nil, err
	}
	user, err := h.accounts.ResolveUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return h.accounts.SetRole(ctx, adminID, user.ID, r)
}

// HandleList lists accounts.
func (h *AccountHandler) HandleList(ctx context.Context, actorID string, limit, offset int) ([]entities.User, error) {
	return h.accounts.List(ctx, actorID, limit, offset)
}
