package results

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/refintel/api/schemas"
	"github.com/xkilldash9x/refintel/internal/config"
	"github.com/xkilldash9x/refintel/internal/loader"
)

// RunReferral loads one record file and runs the pipeline over it. The
// configuration is validated before the file is read.
func RunReferral(ctx context.Context, inputPath string, cfg config.ReferralConfig, logger *zap.Logger) (*schemas.RunResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	records, err := loader.New(logger).LoadFile(ctx, inputPath)
	if err != nil {
		return nil, fmt.Errorf("error loading records: %w", err)
	}
	result, err := RunPipeline(ctx, records, cfg, logger)
	if err != nil {
		return nil, err
	}
	result.Source = inputPath
	return result, nil
}
