package services

import (
	"context"
	"time"

	"dinecast-api/pkg/models"
)

// fakeWeather 日付ごとに固定の天気を返す
type fakeWeather struct {
	byDate  func(date time.Time) *models.WeatherSnapshot
	failing bool
}

func (f *fakeWeather) GetCurrentWeather(_ context.Context, _, _ float64) (*models.WeatherSnapshot, error) {
	return f.GetHistoricalWeather(context.Background(), 0, 0, time.Now())
}

func (f *fakeWeather) GetHistoricalWeather(_ context.Context, _, _ float64, date time.Time) (*models.WeatherSnapshot, error) {
	if f.failing {
		return nil, models.ErrProviderUnavailable
	}
	w := f.byDate(date)
	w.Date = date.Format(models.DateLayout)
	return w, nil
}

func (f *fakeWeather) GetForecast(_ context.Context, _, _ float64, start time.Time, days int) ([]models.WeatherSnapshot, error) {
	if f.failing {
		return nil, models.ErrProviderUnavailable
	}
	out := make([]models.WeatherSnapshot, 0, days)
	for i := 0; i < days; i++ {
		d := start.AddDate(0, 0, i)
		w := f.byDate(d)
		w.Date = d.Format(models.DateLayout)
		out = append(out, *w)
	}
	return out, nil
}

func testRestaurant(id string) *models.Restaurant {
	lat, lon := 40.7128, -74.0060
	return &models.Restaurant{
		ID:          id,
		Name:        "Test Bistro",
		Latitude:    &lat,
		Longitude:   &lon,
		State:       "NY",
		CuisineType: "italian",
		Active:      true,
	}
}

// dailyTransactions 各日正午に1件ずつ取引を作る
func dailyTransactions(restaurantID string, start time.Time, days int, revenue func(i int) float64) []models.Transaction {
	txs := make([]models.Transaction, 0, days)
	for i := 0; i < days; i++ {
		txs = append(txs, models.Transaction{
			RestaurantID:    restaurantID,
			TransactionDate: start.AddDate(0, 0, i).Add(12 * time.Hour),
			TotalAmount:     revenue(i),
		})
	}
	return txs
}

func floatPtr(v float64) *float64 { return &v }
