package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dinecast-api/internal/container"

	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover correlation patterns for a single restaurant",
	Long: `Examples:
  patternjob discover --id r1 --days 90`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRestaurant(cmd, func(ctx context.Context, app *container.Container) (any, error) {
			end := time.Now().UTC()
			return app.Discovery.Discover(ctx, patternRestaurantID, end.AddDate(0, 0, -discoverDays), end)
		})
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Re-test a restaurant's active patterns against recent transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRestaurant(cmd, func(ctx context.Context, app *container.Container) (any, error) {
			return app.Validator.ValidatePatterns(ctx, patternRestaurantID)
		})
	},
}

var contributeCmd = &cobra.Command{
	Use:   "contribute",
	Short: "Merge a restaurant's proven patterns into the regional and global pools",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRestaurant(cmd, func(ctx context.Context, app *container.Container) (any, error) {
			return app.Learning.Contribute(ctx, patternRestaurantID)
		})
	},
}

var (
	patternRestaurantID string
	discoverDays        int
)

func init() {
	for _, c := range []*cobra.Command{discoverCmd, validateCmd, contributeCmd} {
		c.Flags().StringVar(&patternRestaurantID, "id", "", "Restaurant ID (required)")
		_ = c.MarkFlagRequired("id")
		rootCmd.AddCommand(c)
	}
	discoverCmd.Flags().IntVar(&discoverDays, "days", 90, "Discovery window in days")
}

// withRestaurant コンテナを構築して処理を実行し、結果をJSONで出力する
func withRestaurant(cmd *cobra.Command, fn func(ctx context.Context, app *container.Container) (any, error)) error {
	if patternRestaurantID == "" {
		return fmt.Errorf("--id must not be empty")
	}
	ctx := context.Background()
	app, err := newContainer(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := fn(ctx, app)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
