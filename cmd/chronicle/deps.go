package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/ersonp/chronicle/internal/application/handlers"
	"github.com/ersonp/chronicle/internal/domain/entities"
	"github.com/ersonp/chronicle/internal/domain/services"
	"github.com/ersonp/chronicle/internal/infrastructure/config"
	"github.com/ersonp/chronicle/internal/infrastructure/crypto"
	"github.com/ersonp/chronicle/internal/infrastructure/dbpool"
	embedder "github.com/ersonp/chronicle/internal/infrastructure/embedder/openai"
	"github.com/ersonp/chronicle/internal/infrastructure/relationaldb"
	"github.com/ersonp/chronicle/internal/infrastructure/vectordb/qdrant"
)

// envPassword holds the password for --as when --password is not given.
const envPassword = "CHRONICLE_PASSWORD"

// Deps holds high-level dependencies for commands.
// Only handlers are exposed - services and repositories are internal.
type Deps struct {
	Config     *config.Config
	Catalog    *handlers.CatalogHandler
	Moderation *handlers.ModerationHandler
	Accounts   *handlers.AccountHandler
	Import     *handlers.ImportHandler
	Audit      *handlers.AuditHandler
}

// internalDeps holds all dependencies including low-level components.
// Used internally by helper functions.
type internalDeps struct {
	Deps
	pool       *dbpool.Manager
	repo       *relationaldb.Repository
	gate       *services.AccessGate
	accounts   *services.AccountService
	similarity *services.SimilarityService
	index      *qdrant.Index
	embedder   *embedder.Embedder
}

// withDeps loads config and builds dependencies, then calls the provided function.
// It handles cleanup automatically.
func withDeps(ctx context.Context, fn func(*Deps) error) error {
	return withInternalDeps(ctx, func(d *internalDeps) error {
		return fn(&d.Deps)
	})
}

// withInternalDeps provides access to all dependencies including low-level components.
// Used by commands that need direct pool or index access.
func withInternalDeps(ctx context.Context, fn func(*internalDeps) error) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if globalLogLevel == "" {
		if lvl, err := log.ParseLevel(cfg.Logging.Level); err == nil {
			log.SetLevel(lvl)
		}
	}

	dbCfg := cfg.Database
	dbCfg.Path = dbCfg.ResolvePath(cwd)
	pool, err := dbpool.Open(ctx, dbCfg, cfg.Retry)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer pool.Close()

	repo, err := relationaldb.NewRepository(pool)
	if err != nil {
		return fmt.Errorf("creating repository: %w", err)
	}

	policy := services.ModerationPolicy{
		MinRejectComment:   cfg.Moderation.MinRejectComment,
		RetentionFloorDays: cfg.Moderation.RetentionFloorDays,
		Atomic:             cfg.Moderation.Atomic(),
	}

	gate := services.NewAccessGate(repo)
	applier := services.NewChangeApplier(repo, gate)
	moderation := services.NewModerationService(repo, repo, repo, repo, gate, applier, policy)
	catalog := services.NewEntityServices(repo, repo, repo, gate, applier, moderation)
	accounts := services.NewAccountService(repo, repo, repo, crypto.NewArgon2Hasher(crypto.Params{}), gate)

	deps := &internalDeps{
		Deps: Deps{
			Config:     cfg,
			Catalog:    handlers.NewCatalogHandler(catalog),
			Moderation: handlers.NewModerationHandler(moderation),
			Accounts:   handlers.NewAccountHandler(accounts),
			Import:     handlers.NewImportHandler(services.NewImportService(catalog)),
			Audit:      handlers.NewAuditHandler(services.NewAuditService(repo, gate)),
		},
		pool:     pool,
		repo:     repo,
		gate:     gate,
		accounts: accounts,
	}

	if cfg.Qdrant.Enabled {
		if cfg.Embedder.APIKey == "" {
			log.Warn("qdrant is enabled but no embedder API key is set; similarity checks are off")
		} else {
			emb, err := embedder.NewEmbedder(cfg.Embedder)
			if err != nil {
				return fmt.Errorf("creating embedder: %w", err)
			}
			index, err := qdrant.NewIndex(cfg.Qdrant)
			if err != nil {
				return fmt.Errorf("connecting to qdrant: %w", err)
			}
			defer index.Close()

			deps.embedder = emb
			deps.index = index
			deps.similarity = services.NewSimilarityService(emb, index)
			moderation.WithSimilarity(deps.similarity)
		}
	}

	return fn(deps)
}

// actor signs in the user named by --as.
func (d *Deps) actor(ctx context.Context) (*entities.User, error) {
	if globalAs == "" {
		return nil, errors.New("this command needs a user (use --as <username>)")
	}
	password := passwordFromFlags()
	if password == "" {
		return nil, fmt.Errorf("password required for %s (use --password or $%s)", globalAs, envPassword)
	}
	return d.Accounts.HandleLogin(ctx, globalAs, password)
}

// withActor is withDeps plus sign-in of the --as user.
func withActor(ctx context.Context, fn func(*Deps, *entities.User) error) error {
	return withDeps(ctx, func(d *Deps) error {
		user, err := d.actor(ctx)
		if err != nil {
			return err
		}
		return fn(d, user)
	})
}
