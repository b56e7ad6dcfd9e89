package services

import (
	"context"
	"errors"
	"strings"

	"github.com/ersonp/chronicle/internal/domain/entities"
	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
	"github.com/ersonp/chronicle/internal/domain/ports"
)

// AccessGate decides whether a user may perform an action. Roles are read
// from the user store on every call so a role change takes effect at once.
type AccessGate struct {
	users ports.UserStore
}

// NewAccessGate creates a new AccessGate.
func NewAccessGate(users ports.UserStore) *AccessGate {
	return &AccessGate{users: users}
}

// RoleOf returns the current role of userID. Unknown users are refused
// with an AuthorizationError.
func (g *AccessGate) RoleOf(ctx context.Context, userID string) (entities.Role, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, &domainErr.AuthorizationError{Required: "a registered user"}
	}

	u, err := g.users.FindUserByID(ctx, userID)
	if errors.Is(err, domainErr.ErrNotFound) {
		return 0, &domainErr.AuthorizationError{UserID: userID, Required: "a registered user"}
	}
	if err != nil {
		return 0, err
	}
	return u.Role, nil
}

// RequirePermission fails unless userID exists and holds at least minRole.
func (g *AccessGate) RequirePermission(ctx context.Context, userID string, minRole entities.Role) error {
	role, err := g.RoleOf(ctx, userID)
	if err != nil {
		var authErr *domainErr.AuthorizationError
		if errors.As(err, &authErr) {
			authErr.Required = minRole.String()
		}
		return err
	}
	if !role.AtLeast(minRole) {
		return &domainErr.AuthorizationError{UserID: userID, Required: minRole.String(), Actual: role.String()}
	}
	return nil
}
