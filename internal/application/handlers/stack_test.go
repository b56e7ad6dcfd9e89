package handlers

import (
	"testing"

	"github.com/ersonp/chronicle/internal/domain/entities"
	"github.com/ersonp/chronicle/internal/domain/mocks"
	"github.com/ersonp/chronicle/internal/domain/services"
)

// stack wires the services over one in-memory store the way the CLI does.
type stack struct {
	db         *mocks.RelationalDB
	gate       *services.AccessGate
	moderation *services.ModerationService
	catalog    *services.EntityServices
	accounts   *services.AccountService

	user, mod, admin entities.User
}

func newStack(t *testing.T, policy services.ModerationPolicy) *stack {
	t.Helper()
	db := mocks.NewRelationalDB()
	gate := services.NewAccessGate(db)
	applier := services.NewChangeApplier(db, gate)
	moderation := services.NewModerationService(db, db, db, db, gate, applier, policy)
	return &stack{
		db:         db,
		gate:       gate,
		moderation: moderation,
		catalog:    services.NewEntityServices(db, db, db, gate, applier, moderation),
		accounts:   newAccounts(db),
		user:       db.AddUser("ursula", entities.RoleUser),
		mod:        db.AddUser("moritz", entities.RoleModerator),
		admin:      db.AddUser("agnes", entities.RoleAdmin),
	}
}
