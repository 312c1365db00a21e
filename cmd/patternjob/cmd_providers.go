package main

import (
	"context"
	"encoding/json"
	"time"

	"dinecast-api/pkg/models"
	"dinecast-api/pkg/services"

	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "check-providers",
	Short: "Fetch one day of context from every configured provider",
	Long: `Prints the weather, events, games and holiday the collector sees for a
location and date, plus the seasonal-model estimate used as fallback.

Examples:
  patternjob check-providers --lat 40.71 --lon -74.0 --date 2026-07-04`,
	RunE: runCheckProviders,
}

var (
	checkLat, checkLon float64
	checkDate          string
)

func init() {
	rootCmd.AddCommand(providersCmd)
	providersCmd.Flags().Float64Var(&checkLat, "lat", 40.7128, "Latitude")
	providersCmd.Flags().Float64Var(&checkLon, "lon", -74.0060, "Longitude")
	providersCmd.Flags().StringVar(&checkDate, "date", "", "Date (YYYY-MM-DD, default yesterday)")
}

func runCheckProviders(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	date := time.Now().AddDate(0, 0, -1)
	if checkDate != "" {
		d, err := time.Parse(models.DateLayout, checkDate)
		if err != nil {
			return err
		}
		date = d
	}

	app, err := newContainer(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	lat, lon := checkLat, checkLon
	probe := &models.Restaurant{ID: "provider-check", Latitude: &lat, Longitude: &lon}
	snaps, err := app.Collector.Collect(ctx, probe, []time.Time{date})
	if err != nil {
		return err
	}
	seasonal := services.NewSeasonalWeatherModel().Estimate(lat, lon, date)

	out := map[string]any{
		"context":         snaps[date.Format(models.DateLayout)],
		"seasonal_model":  seasonal,
		"climate_band":    services.BandFor(lat).Name,
		"weather_breaker": app.Guard.State("weather").String(),
		"events_breaker":  app.Guard.State("events").String(),
		"sports_breaker":  app.Guard.State("sports").String(),
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
