package authz

import (
	"context"
	"fmt"

	"github.com/KenIjiwoye/immune-me-sub004/internal/config"
	"github.com/KenIjiwoye/immune-me-sub004/pkg/cache"
	"github.com/KenIjiwoye/immune-me-sub004/pkg/logger"
)

// Engine bundles the fully wired authorization services: matrix loader,
// team manager, evaluator, and migration utility, sharing one cache and one
// directory connection.
type Engine struct {
	Matrix    *MatrixLoader
	Teams     *TeamService
	Evaluator *Evaluator
	Migration *MigrationService
	Audit     *AuditService

	store *FileConfigStore
}

// NewEngine wires the engine from process configuration: cache backend per
// cfg.Cache, permission documents from cfg.Authz.ConfigDir, optional hot
// reload. Initialize-time configuration errors are fatal to the caller;
// nothing else in the engine is.
func NewEngine(ctx context.Context, cfg *config.Config, directory DirectoryRepository, log logger.Logger) (*Engine, error) {
	backend, err := newCacheBackend(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache backend: %w", err)
	}

	store := NewFileConfigStore(cfg.Authz.ConfigDir, log)
	matrix := NewMatrixLoader(store, log)
	if err := matrix.Initialize(ctx); err != nil {
		return nil, err
	}

	if cfg.Authz.WatchConfig {
		err := store.Watch(func(document string) {
			if err := matrix.ReloadDocument(context.Background(), document); err != nil {
				log.Error("configuration reload rejected, previous tables kept", "document", document, "error", err)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("failed to watch config directory: %w", err)
		}
	}

	cacheRepo := NewCacheRepository(backend)
	audit := NewAuditService(directory)
	teams := NewTeamService(directory, cacheRepo, matrix, audit, log, TeamServiceOptions{
		TeamLimit: cfg.Authz.TeamLimit,
		TeamsTTL:  cfg.Authz.TeamsTTL(),
	})
	evaluator := NewEvaluator(teams, directory, cacheRepo, matrix, audit, log, EvaluatorOptions{
		UserContextTTL: cfg.Authz.UserContextTTL(),
		DecisionTTL:    cfg.Authz.DecisionTTL(),
	})
	migration := NewMigrationService(directory, teams, audit, log)

	return &Engine{
		Matrix:    matrix,
		Teams:     teams,
		Evaluator: evaluator,
		Migration: migration,
		Audit:     audit,
		store:     store,
	}, nil
}

// Close stops the configuration watcher, if one is running.
func (e *Engine) Close() error {
	return e.store.Close()
}

func newCacheBackend(cfg config.CacheConfig) (cache.Cache, error) {
	switch cfg.Backend {
	case "", "memory":
		return cache.NewMemory(cfg.MaxEntries, cfg.DefaultTTL()), nil
	case "redis":
		return cache.NewRedis(cfg.Addr, cfg.DB, cfg.Password, cfg.DefaultTTL())
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
