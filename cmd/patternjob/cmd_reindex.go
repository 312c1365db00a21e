package main

import (
	"context"
	"fmt"

	"dinecast-api/pkg/models"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the Qdrant similarity index from pooled (regional/global) patterns",
	RunE:  runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	if cfg.QdrantURL == "" {
		return fmt.Errorf("QDRANT_URL is not set")
	}
	app, err := newContainer(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	indexed, failed := 0, 0
	for _, scope := range []models.PatternScope{models.ScopeGlobal, models.ScopeRegional} {
		patterns, err := app.Patterns.FindByScope(ctx, scope, 0)
		if err != nil {
			return err
		}
		for _, p := range patterns {
			if err := app.Index.Upsert(ctx, p); err != nil {
				failed++
				log.Warn().Err(err).Str("pattern_id", p.ID).Msg("⚠️ インデックス登録に失敗")
				continue
			}
			indexed++
		}
	}
	log.Info().Int("indexed", indexed).Int("failed", failed).Msg("✅ パターンインデックスを再構築しました")
	fmt.Fprintf(cmd.OutOrStdout(), "indexed %d pattern(s), %d failed\n", indexed, failed)
	return nil
}
