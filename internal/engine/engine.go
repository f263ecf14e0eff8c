package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/refintel/api/schemas"
	"github.com/xkilldash9x/refintel/internal/config"
	"github.com/xkilldash9x/refintel/internal/results"
)

// -- Interfaces for Dependency Inversion --

// Store defines the interface for any component that can persist run results.
// This decouples the engine from a specific storage implementation.
type Store interface {
	PersistRun(ctx context.Context, result *schemas.RunResult) error
}

// RunFunc executes a single isolated run over one input file.
type RunFunc func(ctx context.Context, inputPath string, cfg config.ReferralConfig, logger *zap.Logger) (*schemas.RunResult, error)

// Outcome is what happened to one input file.
type Outcome struct {
	Path       string
	Result     *schemas.RunResult
	Err        error
	PersistErr error
	Persisted  bool
	Duration   time.Duration
}

// Runner processes several record files, each as its own run. Runs share no
// mutable state; a failing file never affects the others.
type Runner struct {
	cfg    *config.Config
	logger *zap.Logger
	store  Store
	run    RunFunc
}

// New creates a Runner. store may be nil, in which case nothing is persisted.
func New(cfg *config.Config, logger *zap.Logger, store Store) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("engine requires a configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "referral_runner")),
		store:  store,
		run:    results.RunReferral,
	}, nil
}

// RunAll processes the files with at most engine.worker_concurrency runs in
// flight. Outcomes come back in input order. The returned error is only set
// when ctx ended before every file was processed.
func (r *Runner) RunAll(ctx context.Context, paths []string) ([]Outcome, error) {
	concurrency := r.cfg.Engine.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	r.logger.Info("Starting referral batch", zap.Int("files", len(paths)), zap.Int("concurrency", concurrency))

	outcomes := make([]Outcome, len(paths))
	var g errgroup.Group
	g.SetLimit(concurrency)

	for i, path := range paths {
		i, path := i, path
		if ctx.Err() != nil {
			outcomes[i] = Outcome{Path: path, Err: ctx.Err()}
			continue
		}
		g.Go(func() error {
			outcomes[i] = r.process(ctx, path)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	r.logger.Info("Referral batch finished", zap.Int("files", len(paths)), zap.Int("failed", failed))
	return outcomes, ctx.Err()
}

// process handles the execution of a single file.
func (r *Runner) process(ctx context.Context, path string) Outcome {
	logger := r.logger.With(zap.String("path", path))
	start := time.Now()
	out := Outcome{Path: path}

	result, err := r.run(ctx, path, r.cfg.Referral, logger)
	out.Duration = time.Since(start)
	if err != nil {
		logger.Error("Referral run failed", zap.Error(err))
		out.Err = err
		return out
	}
	out.Result = result

	if r.store == nil {
		return out
	}

	timeout := r.cfg.Engine.PersistTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	persistCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := r.store.PersistRun(persistCtx, result); err != nil {
		logger.Error("Failed to persist run results", zap.String("run_id", result.RunID), zap.Error(err))
		out.PersistErr = err
		return out
	}
	out.Persisted = true
	logger.Info("Successfully persisted run results.", zap.String("run_id", result.RunID))
	return out
}
