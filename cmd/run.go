// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/optinreach/internal/browser"
	"github.com/xkilldash9x/optinreach/internal/config"
	"github.com/xkilldash9x/optinreach/internal/ledger"
	"github.com/xkilldash9x/optinreach/internal/notify"
	"github.com/xkilldash9x/optinreach/internal/observability"
	"github.com/xkilldash9x/optinreach/internal/orchestrator"
	"github.com/xkilldash9x/optinreach/internal/processor"
	"github.com/xkilldash9x/optinreach/internal/targets"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Processes a target list: discover signup forms and submit addresses",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their Viper keys so command-line values override
			// the config file and environment variables.
			if err := viper.BindPFlag("run.concurrency", cmd.Flags().Lookup("concurrency")); err != nil {
				return err
			}
			if err := viper.BindPFlag("run.batch_size", cmd.Flags().Lookup("batch-size")); err != nil {
				return err
			}
			if err := viper.BindPFlag("run.max_retries", cmd.Flags().Lookup("retries")); err != nil {
				return err
			}
			if err := viper.BindPFlag("run.utm_params", cmd.Flags().Lookup("utm")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.provider", cmd.Flags().Lookup("provider")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main.go (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.New(viper.GetViper())
			if err != nil {
				return err
			}

			targetsPath, _ := cmd.Flags().GetString("targets")
			credsPath, _ := cmd.Flags().GetString("credentials")

			tgts, err := targets.LoadTargets(targetsPath, cfg.Run.UTMParams)
			if err != nil {
				return err
			}
			creds, err := targets.LoadCredentials(credsPath)
			if err != nil {
				return err
			}
			rotation, err := targets.NewRotation(creds)
			if err != nil {
				return err
			}
			logger.Info("Loaded inputs",
				zap.Int("targets", len(tgts)),
				zap.Int("credentials", len(creds)),
				zap.String("provider", cfg.Browser.Provider))

			var provider browser.Provider
			switch strings.ToLower(cfg.Browser.Provider) {
			case "hosted":
				provider = browser.NewHostedProvider(cfg.Browser.Hosted, logger)
			default:
				provider = browser.NewLocalProvider(cfg.Browser, logger)
			}

			pool := browser.NewPool(cfg.Pool, provider, logger)
			defer pool.Shutdown()

			book, err := ledger.New(cfg.Ledger, logger)
			if err != nil {
				return err
			}
			defer book.Close()

			orch, err := orchestrator.New(
				cfg.Run,
				pool,
				processor.New(cfg, logger),
				book,
				notify.New(cfg.Notify, logger),
				logger,
			)
			if err != nil {
				return err
			}

			final, err := orch.Run(ctx, tgts, rotation)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			if errors.Is(err, context.Canceled) {
				logger.Warn("Run aborted by user signal; partial results flushed")
			}

			fmt.Printf("processed %d targets: %d successful, %d failed (%.1f%% success) in %.0fs\n",
				final.Processed, final.Successful, final.Failed, final.SuccessRate, final.ElapsedSecs)
			return nil
		},
	}

	runCmd.Flags().String("targets", "targets.csv", "CSV file of target sites, URL in the first column")
	runCmd.Flags().String("credentials", "credentials.csv", "CSV file of email addresses, one per row")
	runCmd.Flags().Int("concurrency", 20, "maximum concurrent targets")
	runCmd.Flags().Int("batch-size", 100, "targets per batch")
	runCmd.Flags().Int("retries", 2, "retry budget per target")
	runCmd.Flags().String("utm", "", "UTM query string appended to every target URL")
	runCmd.Flags().String("provider", "", "browser session provider: local or hosted")

	return runCmd
}
