package services

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/ersonp/chronicle/internal/domain/entities"
	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
	"github.com/ersonp/chronicle/internal/domain/ports"
)

// AccountService manages user accounts and their roles.
type AccountService struct {
	tx     ports.Transactor
	users  ports.UserStore
	audit  ports.AuditTrail
	hasher ports.PasswordHasher
	gate   *AccessGate
}

// NewAccountService creates a new AccountService.
func NewAccountService(tx ports.Transactor, users ports.UserStore, audit ports.AuditTrail, hasher ports.PasswordHasher, gate *AccessGate) *AccountService {
	return &AccountService{tx: tx, users: users, audit: audit, hasher: hasher, gate: gate}
}

// Register creates a USER account.
func (s *AccountService) Register(ctx context.Context, nu entities.NewUser) (*entities.User, error) {
	return s.create(ctx, nu, entities.RoleUser, "")
}

// Bootstrap creates the first account as ADMIN. It fails once any user exists.
func (s *AccountService) Bootstrap(ctx context.Context, nu entities.NewUser) (*entities.User, error) {
	var user *entities.User
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		n, err := s.users.CountUsers(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return domainErr.NewValidationError("", "users already exist; ask an admin to register you")
		}
		user, err = s.create(ctx, nu, entities.RoleAdmin, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// AddUser lets an admin create an account with any role.
func (s *AccountService) AddUser(ctx context.Context, adminID string, nu entities.NewUser, role entities.Role) (*entities.User, error) {
	if err := s.gate.RequirePermission(ctx, adminID, entities.RoleAdmin); err != nil {
		return nil, err
	}
	if !role.IsValid() {
		return nil, domainErr.NewValidationError("role", "invalid role %d", int(role))
	}
	return s.create(ctx, nu, role, adminID)
}

func (s *AccountService) create(ctx context.Context, nu entities.NewUser, role entities.Role, actorID string) (*entities.User, error) {
	if err := nu.Validate(); err != nil {
		return nil, err
	}

	hash, err := s.hasher.HashPassword(ctx, nu.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &entities.User{
		Username:     nu.Username,
		Email:        nu.Email,
		PasswordHash: hash,
		Role:         role,
	}
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.users.CreateUser(ctx, user); err != nil {
			return err
		}
		if actorID == "" {
			actorID = user.ID
		}
		return s.audit.AppendAudit(ctx, &entities.AuditRecord{
			UserID:      actorID,
			ActionType:  entities.ActionUserRegistered,
			EntityType:  entities.AuditSubjectUser,
			EntityID:    user.ID,
			NewValue:    map[string]any{"username": user.Username, "role": role.String()},
			Description: fmt.Sprintf("registered %s as %s", user.Username, role),
		})
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"user": user.Username, "role": role}).Info("user registered")
	return user, nil
}

// SetRole changes a user's role. Admins only, and an admin cannot change
// their own role.
func (s *AccountService) SetRole(ctx context.Context, adminID, userID string, role entities.Role) (*entities.User, error) {
	if err := s.gate.RequirePermission(ctx, adminID, entities.RoleAdmin); err != nil {
		return nil, err
	}
	if !role.IsValid() {
		return nil, domainErr.NewValidationError("role", "invalid role %d", int(role))
	}
	if adminID == userID {
		return nil, domainErr.NewValidationError("user_id", "admins cannot change their own role")
	}

	var user *entities.User
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.users.FindUserByID(ctx, userID)
		if err != nil {
			return err
		}
		previous := user.Role
		if err := s.users.UpdateUserRole(ctx, userID, role); err != nil {
			return err
		}
		user.Role = role
		return s.audit.AppendAudit(ctx, &entities.AuditRecord{
			UserID:      adminID,
			ActionType:  entities.ActionUserRoleChange,
			EntityType:  entities.AuditSubjectUser,
			EntityID:    userID,
			OldValue:    map[string]any{"role": previous.String()},
			NewValue:    map[string]any{"role": role.String()},
			Description: fmt.Sprintf("%s is now %s", user.Username, role),
		})
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"admin": adminID, "user": user.Username, "role": role}).Info("role changed")
	return user, nil
}

// Authenticate checks a username and password and returns the user.
// Unknown users and wrong passwords are indistinguishable.
func (s *AccountService) Authenticate(ctx context.Context, username, password string) (*entities.User, error) {
	user, err := s.users.FindUserByUsername(ctx, username)
	if errors.Is(err, domainErr.ErrNotFound) {
		return nil, &domainErr.AuthorizationError{UserID: username, Required: "valid credentials"}
	}
	if err != nil {
		return nil, err
	}

	ok, err := s.hasher.VerifyPassword(ctx, password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, &domainErr.AuthorizationError{UserID: username, Required: "valid credentials"}
	}
	return user, nil
}

// ResolveUsername returns the user with the given username.
func (s *AccountService) ResolveUsername(ctx context.Context, username string) (*entities.User, error) {
	return s.users.FindUserByUsername(ctx, username)
}

// List lists users. Moderators and admins only.
func (s *AccountService) List(ctx context.Context, actorID string, limit, offset int) ([]entities.User, error) {
	if err := s.gate.RequirePermission(ctx, actorID, entities.RoleModerator); err != nil {
		return nil, err
	}
	return s.users.ListUsers(ctx, limit, offset)
}
