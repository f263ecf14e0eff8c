package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/refintel/internal/charts"
	"github.com/xkilldash9x/refintel/internal/config"
	"github.com/xkilldash9x/refintel/internal/engine"
	"github.com/xkilldash9x/refintel/internal/observability"
)

type outputOptions struct {
	format string
	charts bool
}

func newReferralCmd(factory ComponentFactory) *cobra.Command {
	var (
		opts    outputOptions
		persist bool
	)

	referralCmd := &cobra.Command{
		Use:   "referral <file> [file...]",
		Short: "Analyze referral record files",
		Long: `Loads each CSV, JSON or YAML record file, resolves identities, decodes codes,
classifies temporal behavior, builds the referral network, scores every entity and
prints the eight analysis artifacts. Each file is an independent run.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(opts.format); err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := config.Get()

			components, err := factory.Create(ctx, cfg, persist)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			outcomes, err := components.Runner.RunAll(ctx, args)
			if err != nil {
				return err
			}
			return writeOutcomes(cmd.OutOrStdout(), outcomes, opts, logger)
		},
	}

	referralCmd.Flags().StringVarP(&opts.format, "format", "f", FormatTable, "output format: table, markdown, json or yaml")
	referralCmd.Flags().BoolVar(&opts.charts, "charts", false, "include chart data contracts in json and yaml output")
	referralCmd.Flags().BoolVar(&persist, "persist", false, "store each run in PostgreSQL (requires postgres.url)")

	return referralCmd
}

// writeOutcomes renders every successful run and reports the failures.
func writeOutcomes(w io.Writer, outcomes []engine.Outcome, opts outputOptions, logger *zap.Logger) error {
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Fprintf(w, "%s: run failed: %v\n", o.Path, o.Err)
			continue
		}
		doc := docFromResult(o.Result)
		if opts.charts {
			specs, err := charts.Build(o.Result.Artifacts)
			if err != nil {
				return fmt.Errorf("failed to build charts for %s: %w", o.Path, err)
			}
			doc.Charts = specs
		}
		if err := renderDoc(w, doc, opts.format); err != nil {
			return fmt.Errorf("failed to render %s: %w", o.Path, err)
		}
		if o.PersistErr != nil {
			logger.Warn("Run was not persisted", zap.String("path", o.Path), zap.Error(o.PersistErr))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(outcomes))
	}
	return nil
}
