// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/refintel/internal/config"
	"github.com/xkilldash9x/refintel/internal/observability"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "refintel",
	Short:         "refintel turns referral records into a scored referral network and analysis artifacts.",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 1. Initialize configuration loading (Viper)
		v := viper.GetViper()
		if err := initializeConfig(v); err != nil {
			return fmt.Errorf("failed to initialize configuration: %w", err)
		}

		// 2. Unmarshal and validate the configuration
		cfg, err := config.NewFromViper(v)
		if err != nil {
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "refintel"})
			return fmt.Errorf("invalid configuration: %w", err)
		}

		// 3. Store the configuration globally
		config.Set(cfg)

		// 4. Initialize the logger
		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Debug("Starting refintel", zap.String("version", Version))
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// It accepts a context passed from main.go for graceful shutdown.
func Execute(ctx context.Context) error {
	defer observability.Sync()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// Cancellation during shutdown is not a failure worth logging.
		if !errors.Is(err, context.Canceled) {
			observability.GetLogger().Error("Command execution failed", zap.Error(err))
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")

	factory := NewComponentFactory()
	rootCmd.AddCommand(newReferralCmd(factory))
	rootCmd.AddCommand(newReportCmd(factory))
	rootCmd.AddCommand(versionCmd)
}

// initializeConfig reads in config file and ENV variables if set.
func initializeConfig(v *viper.Viper) error {
	// Set default values so the app can run with a minimal config.
	config.SetDefaults(v)

	// 1. Set up config file search paths
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// 2. Environment Variable Configuration
	v.SetEnvPrefix("REFINTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("postgres.url", "REFINTEL_POSTGRES_URL", "REFINTEL_DATABASE_URL")

	// 3. Read the configuration file
	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; parse errors are not.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}
