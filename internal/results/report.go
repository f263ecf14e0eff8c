package results

import (
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/refintel/api/schemas"
	"github.com/xkilldash9x/refintel/internal/config"
	"github.com/xkilldash9x/refintel/internal/graph"
)

// Compiles the frozen graph and the derived outputs into a RunResult.
func assemble(g *graph.Graph, cfg config.ReferralConfig, asOf time.Time, profiles []schemas.TemporalProfile,
	scores []schemas.InfluenceScore, arts []schemas.Artifact, report *schemas.RunReport) *schemas.RunResult {

	metrics := make([]schemas.EntityMetrics, g.Len())
	for i := range metrics {
		metrics[i] = g.Metrics(i)
	}
	return &schemas.RunResult{
		RunID:         uuid.New().String(),
		ConfigVersion: cfg.Version,
		AsOf:          asOf,
		Stats:         g.IngestStats(),
		Entities:      g.Entities(),
		Metrics:       metrics,
		Edges:         g.Edges(),
		Profiles:      profiles,
		Scores:        scores,
		Artifacts:     arts,
		Warnings:      report.Warnings(),
	}
}
