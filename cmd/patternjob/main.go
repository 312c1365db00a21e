package main

import (
	"context"
	"os"

	config "dinecast-api/configs"
	"dinecast-api/internal/container"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "patternjob",
	Short: "DineCast pattern discovery and maintenance commands",
	Long: `Runs the correlation discovery job and related maintenance tasks
against the configured stores (DATABASE_URL, QDRANT_URL, REDIS_ADDR).`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		envErr := godotenv.Load()
		cfg = config.LoadConfig()
		config.SetupLogger(cfg)
		if envErr != nil {
			log.Debug().Err(envErr).Msg(".env file not found")
		}
	},
}

var cfg *config.Config

// newContainer コマンド実行用の依存関係を構築
func newContainer(ctx context.Context) (*container.Container, error) {
	return container.New(ctx, cfg)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
