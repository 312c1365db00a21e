package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"dinecast-api/pkg/models"

	"github.com/rs/zerolog/log"
)

const (
	forecastDays      = 7
	maxActionItems    = 5
	maxTrendAdjust    = 0.15
	notableChangePct  = 15.0
	decliningTrendPct = -5.0
)

// GenerateWeekForecast 今日から7日間の予測
func (s *PredictionService) GenerateWeekForecast(ctx context.Context, restaurantID string) (*models.WeekForecast, error) {
	r, err := s.restaurants.Get(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	baseline, err := s.baselines.Compute(ctx, r, now)
	if err != nil {
		return nil, err
	}
	patterns, err := s.applicablePatterns(ctx, r)
	if err != nil {
		return nil, err
	}

	loc := r.Location()
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	dates := make([]time.Time, forecastDays)
	for i := range dates {
		dates[i] = today.AddDate(0, 0, i)
	}

	contexts := map[string]*models.ContextSnapshot{}
	if s.collector != nil {
		contexts, err = s.collector.CollectForecast(ctx, r, dates)
		if err != nil {
			return nil, err
		}
	}

	wf := &models.WeekForecast{
		RestaurantID: r.ID,
		StartDate:    today.Format(models.DateLayout),
		Days:         make([]models.DayForecast, 0, forecastDays),
		ActionItems:  []string{},
		GeneratedAt:  now,
	}

	var applied []*models.Pattern
	for i, date := range dates {
		snap := contexts[date.Format(models.DateLayout)]
		day := fromSnapshot(date, snap)
		preds, used := predictDay(baseline, patterns, day)
		applied = append(applied, used...)
		wf.Days = append(wf.Days, buildDayForecast(baseline, day, snap, preds, i))
	}

	summarizeWeek(wf, baseline)
	if s.narrative != nil {
		wf.Insights.Summary = s.narrative.Summarize(ctx, wf)
	} else {
		wf.Insights.Summary = templateSummary(wf)
	}
	s.markApplied(ctx, applied)

	log.Info().Str("restaurant_id", r.ID).Float64("total_revenue", wf.TotalRevenue).
		Float64("avg_confidence", wf.AverageConfidence).Msg("📅 週間予測を生成しました")
	return wf, nil
}

// trendAdjustment 直近トレンドを日ごとに按分した補正率
func trendAdjustment(trendPercent float64, dayIndex int) float64 {
	adj := trendPercent / 100 * float64(dayIndex+1) / 15
	return clampRange(adj, -maxTrendAdjust, maxTrendAdjust)
}

func buildDayForecast(b *models.Baseline, day dayContext, snap *models.ContextSnapshot, preds []models.Prediction, dayIndex int) models.DayForecast {
	base := revenueBase(b, day.Date.Weekday())
	df := models.DayForecast{
		Date:                  day.Date.Format(models.DateLayout),
		DayOfWeek:             day.Date.Weekday().String(),
		PredictedTransactions: trafficBase(b, day.Date.Weekday()),
		Factors:               []models.PredictionFactor{},
	}
	if snap != nil {
		df.Weather = snap.Weather
		df.Holiday = snap.Holiday
		df.Events = snap.Events
	}

	for _, p := range preds {
		switch p.Metric {
		case models.MetricRevenue:
			df.PredictedRevenue = p.PredictedValue
			df.Confidence = p.Confidence
			df.Factors = append(df.Factors, p.Factors...)
		case models.MetricTraffic:
			df.PredictedTransactions = p.PredictedValue
			df.Factors = append(df.Factors, p.Factors...)
		}
	}

	if adj := trendAdjustment(b.TrendPercent, dayIndex); adj != 0 {
		df.PredictedRevenue *= 1 + adj
		df.Factors = append(df.Factors, models.PredictionFactor{
			Type:        "trend",
			Description: fmt.Sprintf("Recent sales trend %+.1f%%", b.TrendPercent),
			Impact:      round2(adj * 100),
		})
	}
	df.PredictedRevenue = round2(df.PredictedRevenue)
	df.PredictedTransactions = math.Round(df.PredictedTransactions)
	df.Change = round2(percentChange(df.PredictedRevenue, base))
	return df
}

func trafficBase(b *models.Baseline, weekday time.Weekday) float64 {
	if dow, ok := b.DayOfWeekPatterns[weekday.String()]; ok && dow.Occurrences > 0 {
		return dow.AvgTransactions
	}
	return b.DailyAvgTransactions
}

func weatherImpacted(df models.DayForecast) bool {
	for _, f := range df.Factors {
		if f.Type == string(models.FactorWeather) || f.Type == string(models.FactorMultiFactor) {
			return true
		}
	}
	return false
}

func dayLabel(df models.DayForecast) string {
	return df.DayOfWeek + " " + df.Date
}

// summarizeWeek 合計・最良/最悪日・アクション項目
func summarizeWeek(wf *models.WeekForecast, b *models.Baseline) {
	if len(wf.Days) == 0 {
		return
	}
	var confSum float64
	best, worst := 0, 0
	for i, d := range wf.Days {
		wf.TotalRevenue += d.PredictedRevenue
		confSum += d.Confidence
		if d.PredictedRevenue > wf.Days[best].PredictedRevenue {
			best = i
		}
		if d.PredictedRevenue < wf.Days[worst].PredictedRevenue {
			worst = i
		}
		if weatherImpacted(d) {
			wf.Insights.WeatherImpactedDays++
		}
	}
	wf.TotalRevenue = round2(wf.TotalRevenue)
	wf.AverageConfidence = round2(confSum / float64(len(wf.Days)))
	wf.Insights.BestDay = dayLabel(wf.Days[best])
	wf.Insights.WorstDay = dayLabel(wf.Days[worst])
	wf.ActionItems = actionItems(wf.Days, b)
}

func actionItems(days []models.DayForecast, b *models.Baseline) []string {
	items := []string{}
	add := func(format string, args ...any) {
		if len(items) < maxActionItems {
			items = append(items, fmt.Sprintf(format, args...))
		}
	}
	for _, d := range days {
		switch {
		case d.Change >= notableChangePct:
			add("Expect high traffic on %s (%+.0f%%): add staff and increase prep", dayLabel(d), d.Change)
		case d.Change <= -notableChangePct:
			add("Expect slower sales on %s (%.0f%%): trim staffing and prep", dayLabel(d), d.Change)
		}
		if d.Holiday != nil {
			add("Plan specials for %s on %s", d.Holiday.Name, dayLabel(d))
		}
		if d.Weather != nil && d.Weather.IsRaining {
			add("Rain expected on %s: promote delivery and takeout", dayLabel(d))
		}
	}
	if b.TrendPercent <= decliningTrendPct {
		add("Sales are down %.1f%% over the last 30 days: review promotions", math.Abs(b.TrendPercent))
	}
	return items
}
