// cmd/report.go
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/refintel/api/schemas"
	"github.com/xkilldash9x/refintel/internal/charts"
	"github.com/xkilldash9x/refintel/internal/config"
	"github.com/xkilldash9x/refintel/internal/observability"
	"github.com/xkilldash9x/refintel/internal/store"
)

// runReader reads persisted runs back.
type runReader interface {
	GetRun(ctx context.Context, runID string) (store.RunSummary, error)
	GetArtifacts(ctx context.Context, runID string) ([]schemas.Artifact, error)
}

func newReportCmd(factory ComponentFactory) *cobra.Command {
	var (
		runID string
		opts  outputOptions
	)

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Print the artifacts of a persisted referral run",
		Long:  `Reads the artifacts stored by 'refintel referral --persist' for the given run ID and prints them without recomputing anything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID == "" {
				return fmt.Errorf("a run-id must be provided")
			}
			if err := validFormat(opts.format); err != nil {
				return err
			}

			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Get the configuration initialized by the root command
			cfg := config.Get()

			components, err := factory.Create(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			if err := writeReport(ctx, cmd.OutOrStdout(), components.Store, runID, opts); err != nil {
				logger.Error("Failed to load persisted run", zap.Error(err), zap.String("run_id", runID))
				return err
			}
			return nil
		},
	}

	reportCmd.Flags().StringVar(&runID, "run-id", "", "The ID of the run to print (required)")
	reportCmd.Flags().StringVarP(&opts.format, "format", "f", FormatTable, "output format: table, markdown, json or yaml")
	reportCmd.Flags().BoolVar(&opts.charts, "charts", false, "include chart data contracts in json and yaml output")
	_ = reportCmd.MarkFlagRequired("run-id")

	return reportCmd
}

func writeReport(ctx context.Context, w io.Writer, reader runReader, runID string, opts outputOptions) error {
	summary, err := reader.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	arts, err := reader.GetArtifacts(ctx, runID)
	if err != nil {
		return err
	}

	asOf, stats := summary.AsOf, summary.Stats
	doc := reportDoc{
		RunID:         summary.RunID,
		Source:        summary.Source,
		ConfigVersion: summary.ConfigVersion,
		AsOf:          &asOf,
		Stats:         &stats,
		Artifacts:     arts,
	}
	if opts.charts {
		specs, err := charts.Build(arts)
		if err != nil {
			return fmt.Errorf("failed to build charts: %w", err)
		}
		doc.Charts = specs
	}
	return renderDoc(w, doc, opts.format)
}
