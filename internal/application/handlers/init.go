// Package handlers contains application use case handlers.
package handlers

import (
	"context"
	"fmt"

	"github.com/ersonp/chronicle/internal/domain/entities"
	"github.com/ersonp/chronicle/internal/domain/ports"
	"github.com/ersonp/chronicle/internal/domain/services"
	"github.com/ersonp/chronicle/internal/infrastructure/config"
)

// SchemaManager creates the relational schema.
type SchemaManager interface {
	EnsureSchema(ctx context.Context) error
}

// ConfigOptions overrides the database section of a fresh config.
type ConfigOptions struct {
	Driver string
	DSN    string
}

// WriteConfig creates .chronicle/config.yaml under basePath and returns its path.
func WriteConfig(basePath string, opts ConfigOptions) (string, error) {
	if config.Exists(basePath) {
		return "", fmt.Errorf("chronicle already initialized in %s", basePath)
	}

	if opts.Driver == "" && opts.DSN == "" {
		if err := config.WriteDefault(basePath); err != nil {
			return "", fmt.Errorf("writing default config: %w", err)
		}
		return config.ConfigFilePath(basePath), nil
	}

	cfg := config.Default()
	if opts.Driver != "" {
		cfg.Database.Driver = opts.Driver
	}
	cfg.Database.DSN = opts.DSN
	if err := cfg.Validate(); err != nil {
		return "", fmt.Errorf("invalid database options: %w", err)
	}
	if err := config.Write(basePath, cfg); err != nil {
		return "", err
	}
	return config.ConfigFilePath(basePath), nil
}

// InitHandler prepares the store, the first admin and the similarity index.
type InitHandler struct {
	schema      SchemaManager
	accounts    *services.AccountService
	collections ports.CollectionManager
	vectorSize  uint64
}

// NewInitHandler creates a new init handler.
func NewInitHandler(schema SchemaManager, accounts *services.AccountService) *InitHandler {
	return &InitHandler{
		schema:   schema,
		accounts: accounts,
	}
}

// WithCollection makes Handle create the similarity collection as well.
func (h *InitHandler) WithCollection(collections ports.CollectionManager, vectorSize uint64) *InitHandler {
	h.collections = collections
	h.vectorSize = vectorSize
	return h
}

// InitRequest holds the optional first administrator.
type InitRequest struct {
	Admin *entities.NewUser
}

// InitResult contains the result of initialization.
type InitResult struct {
	Admin      *entities.User
	IndexReady bool
}

// Handle creates the schema, then the admin account and the collection when
// configured. Running it again on an initialized store only re-checks the schema.
func (h *InitHandler) Handle(ctx context.Context, req InitRequest) (*InitResult, error) {
	if err := h.schema.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	result := &InitResult{}
	if req.Admin != nil {
		admin, err := h.accounts.Bootstrap(ctx, *req.Admin)
		if err != nil {
			return nil, fmt.Errorf("creating admin: %w", err)
		}
		result.Admin = admin
	}

	if h.collections != nil {
		if err := h.collections.EnsureCollection(ctx, h.vectorSize); err != nil {
			return nil, fmt.Errorf("creating collection: %w", err)
		}
		result.IndexReady = true
	}

	return result, nil
}
