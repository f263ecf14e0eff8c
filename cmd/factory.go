// File: cmd/factory.go
package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/refintel/internal/config"
	"github.com/xkilldash9x/refintel/internal/engine"
	"github.com/xkilldash9x/refintel/internal/observability"
	"github.com/xkilldash9x/refintel/internal/store"
)

// Components holds the initialized services a command needs.
type Components struct {
	Runner *engine.Runner
	Store  *store.Store
	DBPool *pgxpool.Pool
}

// Shutdown releases everything Create acquired.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}
}

// ComponentFactory creates the components for a command. Commands take the
// interface so tests can run them without a database.
type ComponentFactory interface {
	Create(ctx context.Context, cfg *config.Config, persist bool) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct{}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// Create wires the store (when persist is set) and the batch runner.
func (f *concreteFactory) Create(ctx context.Context, cfg *config.Config, persist bool) (*Components, error) {
	logger := observability.GetLogger()
	components := &Components{}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Database pool and store, only when results are persisted or read back.
	var runStore engine.Store
	if persist {
		if cfg.Postgres.URL == "" {
			initializationErr = fmt.Errorf("database URL is not configured (hint: check REFINTEL_POSTGRES_URL)")
			return nil, initializationErr
		}
		dbPool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			initializationErr = fmt.Errorf("failed to create database connection pool: %w", err)
			return nil, initializationErr
		}
		components.DBPool = dbPool

		dbStore, err := store.New(ctx, dbPool, logger)
		if err != nil {
			initializationErr = fmt.Errorf("failed to initialize database store: %w", err)
			return nil, initializationErr
		}
		if err := dbStore.Migrate(ctx); err != nil {
			initializationErr = err
			return nil, initializationErr
		}
		components.Store = dbStore
		runStore = dbStore
		logger.Debug("Store service initialized.")
	}

	// 2. Batch runner
	runner, err := engine.New(cfg, logger, runStore)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize referral runner: %w", err)
		return nil, initializationErr
	}
	components.Runner = runner
	logger.Debug("Referral runner initialized.")

	return components, nil
}
