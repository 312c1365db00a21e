package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run discovery, validation and global learning for all active restaurants",
	Long: `Runs the discovery job once, or repeatedly with --interval.

Examples:
  patternjob run
  patternjob run --lookback-days 120
  patternjob run --interval 24h`,
	RunE: runJob,
}

var (
	runInterval     time.Duration
	runLookbackDays int
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().DurationVar(&runInterval, "interval", 0, "Repeat the job at this interval until interrupted")
	runCmd.Flags().IntVar(&runLookbackDays, "lookback-days", 0, "Discovery window in days (default JOB_LOOKBACK_DAYS)")
}

func runJob(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if runLookbackDays > 0 {
		cfg.JobLookbackDays = runLookbackDays
	}
	app, err := newContainer(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if runInterval > 0 {
		if _, err := app.Job.Run(ctx); err != nil {
			log.Error().Err(err).Msg("❌ 初回ジョブの実行に失敗しました")
		}
		app.Job.Start(ctx, runInterval)
		return nil
	}

	report, err := app.Job.Run(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
