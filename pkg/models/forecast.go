package models

import "time"

// DayOfWeekStat 曜日別平均
type DayOfWeekStat struct {
	AvgRevenue      float64 `json:"avg_revenue"`
	AvgTransactions float64 `json:"avg_transactions"`
	Occurrences     int     `json:"occurrences"`
}

// Baseline 直近30日のベースライン
type Baseline struct {
	RestaurantID         string                   `json:"restaurant_id"`
	DailyAvgRevenue      float64                  `json:"daily_avg_revenue"`
	AvgTicket            float64                  `json:"avg_ticket"`
	DailyAvgTransactions float64                  `json:"daily_avg_transactions"`
	DayOfWeekPatterns    map[string]DayOfWeekStat `json:"day_of_week_patterns"`
	TrendPercent         float64                  `json:"trend_percent"`
	PeakHours            []string                 `json:"peak_hours"`
	DaysObserved         int                      `json:"days_observed"`
}

// PredictionInput 予測リクエスト
type PredictionInput struct {
	RestaurantID string           `json:"restaurant_id"`
	Date         time.Time        `json:"date"`
	Weather      *WeatherSnapshot `json:"weather,omitempty"`
	Events       []Event          `json:"events,omitempty"`
	Holiday      *Holiday         `json:"holiday,omitempty"`
	HasMajorGame bool             `json:"has_major_game"`
}

// PredictionFactor 予測に寄与した要因
type PredictionFactor struct {
	Type          string  `json:"type"`
	Description   string  `json:"description"`
	Impact        float64 `json:"impact"`
	SourcePattern string  `json:"source_pattern"`
	Scope         string  `json:"scope"`
}

// Prediction 指標ごとの予測
type Prediction struct {
	Metric         string             `json:"metric"`
	PredictedValue float64            `json:"predicted_value"`
	Confidence     float64            `json:"confidence"`
	Baseline       float64            `json:"baseline"`
	Change         float64            `json:"change"`
	Factors        []PredictionFactor `json:"factors"`
}

// DayForecast 1日分の予測
type DayForecast struct {
	Date                  string             `json:"date"`
	DayOfWeek             string             `json:"day_of_week"`
	PredictedRevenue      float64            `json:"predicted_revenue"`
	PredictedTransactions float64            `json:"predicted_transactions"`
	Confidence            float64            `json:"confidence"`
	Change                float64            `json:"change"`
	Weather               *WeatherSnapshot   `json:"weather,omitempty"`
	Holiday               *Holiday           `json:"holiday,omitempty"`
	Events                []Event            `json:"events,omitempty"`
	Factors               []PredictionFactor `json:"factors"`
}

// WeekInsights 週次予測のまとめ
type WeekInsights struct {
	BestDay             string `json:"best_day"`
	WorstDay            string `json:"worst_day"`
	WeatherImpactedDays int    `json:"weather_impacted_days"`
	Summary             string `json:"summary"`
}

// WeekForecast 7日間予測
type WeekForecast struct {
	RestaurantID      string        `json:"restaurant_id"`
	StartDate         string        `json:"start_date"`
	Days              []DayForecast `json:"days"`
	TotalRevenue      float64       `json:"total_revenue"`
	AverageConfidence float64       `json:"average_confidence"`
	Insights          WeekInsights  `json:"insights"`
	ActionItems       []string      `json:"action_items"`
	GeneratedAt       time.Time     `json:"generated_at"`
}
