// Package results runs the referral engine: raw records go in, a frozen graph,
// per-entity scores and the eight artifacts come out.
package results

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/refintel/api/schemas"
	"github.com/xkilldash9x/refintel/internal/artifacts"
	"github.com/xkilldash9x/refintel/internal/config"
	"github.com/xkilldash9x/refintel/internal/decode"
	"github.com/xkilldash9x/refintel/internal/graph"
	"github.com/xkilldash9x/refintel/internal/normalize"
	"github.com/xkilldash9x/refintel/internal/scoring"
	"github.com/xkilldash9x/refintel/internal/temporal"
)

// Orchestrates one run. Stages execute strictly in order, each completing
// before the next starts:
// 1. Validates the configuration (fail fast, before any record is read).
// 2. Resolves referrer and referred identities.
// 3. Decodes the coded fields.
// 4. Classifies temporal behavior.
// 5. Builds and freezes the referral graph.
// 6. Scores every entity.
// 7. Generates the artifacts.
// Cancellation is honored between stages only. Everything the run touches is
// created here, so concurrent runs share nothing.
func RunPipeline(ctx context.Context, records []schemas.RawReferralRecord, cfg config.ReferralConfig, logger *zap.Logger) (*schemas.RunResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("pipeline")

	// Step 1: Configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	scorer, err := scoring.NewScorer(cfg, logger)
	if err != nil {
		return nil, err
	}

	report := &schemas.RunReport{}
	table := decode.NewTable(cfg.CodePrefixMap)
	start := time.Now()
	log.Info("Starting referral run", zap.Int("records", len(records)), zap.String("config_version", cfg.Version))

	// Step 2: Identity resolution
	if err := stageGate(ctx, "normalization"); err != nil {
		return nil, err
	}
	norm := normalize.New(cfg.EntitySuffixes, cfg.SimilarityThreshold, logger,
		normalize.WithReport(report),
		normalize.WithStaffCodes(staffCodes(records, table)))
	in := ingest(records, norm, report, log)
	entities := norm.Entities()

	// Step 3: Code decoding
	if err := stageGate(ctx, "decoding"); err != nil {
		return nil, err
	}
	edges := decodeEdges(in.records, decode.NewDecoder(table, report, logger))

	// Step 4: Temporal profiles
	if err := stageGate(ctx, "temporal detection"); err != nil {
		return nil, err
	}
	events := referrerEvents(len(entities), edges)
	asOf, err := temporal.AsOf(cfg, events)
	if err != nil {
		return nil, err
	}
	profiles := temporal.NewDetector(cfg).ProfileAll(entities, events, asOf)

	// Step 5: Graph construction
	if err := stageGate(ctx, "graph construction"); err != nil {
		return nil, err
	}
	g, err := buildGraph(cfg.MaxChainDepth, entities, edges, in.stats, logger)
	if err != nil {
		return nil, fmt.Errorf("error building referral graph: %w", err)
	}

	// Step 6: Scoring
	if err := stageGate(ctx, "scoring"); err != nil {
		return nil, err
	}
	scores, err := scorer.Score(g, profiles)
	if err != nil {
		return nil, fmt.Errorf("error scoring entities: %w", err)
	}

	// Step 7: Artifacts
	if err := stageGate(ctx, "artifact generation"); err != nil {
		return nil, err
	}
	arts := artifacts.Generate(g, scores, profiles, cfg)

	result := assemble(g, cfg, asOf, profiles, scores, arts, report)
	log.Info("Referral run complete",
		zap.String("run_id", result.RunID),
		zap.Int("entities", g.Len()),
		zap.Int("edges", g.EdgeCount()),
		zap.Int("warnings", len(result.Warnings)),
		zap.Duration("duration", time.Since(start)))
	return result, nil
}

// stageGate aborts the run before a stage starts when ctx is done.
func stageGate(ctx context.Context, stage string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("pipeline cancelled before %s: %w", stage, ctx.Err())
	default:
		return nil
	}
}

func referrerEvents(n int, edges []schemas.ReferralEdge) [][]time.Time {
	events := make([][]time.Time, n)
	for _, e := range edges {
		events[e.From] = append(events[e.From], e.Timestamp)
	}
	return events
}

func buildGraph(maxDepth int, entities []schemas.Entity, edges []schemas.ReferralEdge, stats schemas.IngestStats, logger *zap.Logger) (*graph.Graph, error) {
	b := graph.NewBuilder(maxDepth, logger)
	for _, e := range entities {
		if _, err := b.AddEntity(e); err != nil {
			return nil, err
		}
	}
	for _, e := range edges {
		if err := b.AddEdge(e); err != nil {
			return nil, err
		}
	}
	if err := b.SetIngestStats(stats); err != nil {
		return nil, err
	}
	return b.Freeze()
}
