package services

import (
	"fmt"
	"math"

	"dinecast-api/pkg/models"

	"gonum.org/v1/gonum/stat"
)

// 気温分析の閾値
const (
	minTemperatureDays       = 10
	minTemperatureCorr       = 0.15
	actionableCorr           = 0.5
	temperatureChangeScaling = 25.0
	minRainyDays             = 3
	minQualityDays           = 3
)

// analyzeTemperature 日次気温と売上のピアソン相関
func analyzeTemperature(in *analysisInput) *models.Pattern {
	var temps, revenue []float64
	for _, agg := range in.daily {
		if w := in.day(agg).Weather; w != nil {
			temps = append(temps, w.Temperature)
			revenue = append(revenue, agg.Revenue)
		}
	}
	if len(temps) < minTemperatureDays {
		return nil
	}
	r, ok := pearsonCorrelation(temps, revenue)
	if !ok || math.Abs(r) < minTemperatureCorr {
		return nil
	}

	threshold := math.Round(stat.Mean(temps, nil)*10) / 10
	baseline := stat.Mean(revenue, nil)
	change := round2(r * temperatureChangeScaling)
	actionable := math.Abs(r) > actionableCorr

	p := &models.Pattern{
		Type: models.FactorWeather,
		ExternalFactor: models.ExternalFactor{
			Type:      models.ExtTemperature,
			Operator:  "above",
			Threshold: &threshold,
		},
		BusinessOutcome: models.BusinessOutcome{
			Metric:   models.MetricRevenue,
			Baseline: round2(baseline),
			Change:   change,
			Value:    round2(baseline * (1 + change/100)),
		},
		Statistics: correlationStats(r, len(temps)),
		Pattern: models.PatternDescription{
			Description:   fmt.Sprintf("Daily revenue tracks temperature (r=%.2f over %d days)", r, len(temps)),
			WhenCondition: fmt.Sprintf("temperature above %.0f°F", threshold),
			ThenOutcome:   outcomeText(models.MetricRevenue, change),
			Strength:      ClassifyStrength(math.Abs(r)),
			Actionable:    actionable,
		},
	}
	if actionable {
		if r > 0 {
			p.Pattern.Recommendation = "Staff up and expand patio or cold menu offerings on warm days"
		} else {
			p.Pattern.Recommendation = "Push comfort food and delivery promotions on warm days when dine-in slows"
		}
	}
	return p
}

// analyzePrecipitation 雨の日と晴れの日の売上比較
func analyzePrecipitation(in *analysisInput) *models.Pattern {
	var values []float64
	var rainy []bool
	for _, agg := range in.daily {
		if w := in.day(agg).Weather; w != nil {
			values = append(values, agg.Revenue)
			rainy = append(rainy, w.IsRaining)
		}
	}
	g := compareGroups(values, rainy)
	if len(g.matched) < minRainyDays || len(g.others) == 0 || g.othersMean == 0 || g.changePct == 0 {
		return nil
	}

	change := round2(g.changePct)
	corr := clampRange(change/100, -1, 1)
	p := &models.Pattern{
		Type: models.FactorWeather,
		ExternalFactor: models.ExternalFactor{
			Type:      models.ExtPrecipitation,
			Condition: models.ConditionRain,
		},
		BusinessOutcome: models.BusinessOutcome{
			Metric:   models.MetricRevenue,
			Baseline: round2(g.othersMean),
			Change:   change,
			Value:    round2(g.matchedMean),
		},
		Statistics: correlationStats(corr, len(values)),
		Pattern: models.PatternDescription{
			Description:   fmt.Sprintf("Rainy days (%d) compared with dry days (%d)", len(g.matched), len(g.others)),
			WhenCondition: "it rains",
			ThenOutcome:   outcomeText(models.MetricRevenue, change),
			Strength:      ClassifyStrength(math.Abs(corr)),
			Actionable:    math.Abs(change) > 10,
		},
	}
	p.Pattern.Recommendation = rainRecommendation(change)
	return p
}

func rainRecommendation(change float64) string {
	if math.Abs(change) <= 10 {
		return ""
	}
	if change < 0 {
		return "Run delivery and takeout promotions on rainy days and trim floor staff"
	}
	return "Rain brings guests in: schedule extra servers and prep soups and hot drinks"
}

// analyzeWeatherQuality 快晴日と悪天候日の売上比較
func analyzeWeatherQuality(in *analysisInput) *models.Pattern {
	var excellent, poor []float64
	for _, agg := range in.daily {
		w := in.day(agg).Weather
		switch {
		case w == nil:
		case w.IsPerfect():
			excellent = append(excellent, agg.Revenue)
		case w.IsPoor():
			poor = append(poor, agg.Revenue)
		}
	}
	if len(excellent) < minQualityDays || len(poor) < minQualityDays {
		return nil
	}
	avgExcellent := stat.Mean(excellent, nil)
	avgPoor := stat.Mean(poor, nil)
	if avgPoor == 0 {
		return nil
	}

	change := round2(percentChange(avgExcellent, avgPoor))
	corr := clampRange(change/100, -1, 1)
	return &models.Pattern{
		Type: models.FactorWeather,
		ExternalFactor: models.ExternalFactor{
			Type:      models.ExtWeatherQuality,
			Condition: "excellent",
		},
		BusinessOutcome: models.BusinessOutcome{
			Metric:   models.MetricRevenue,
			Baseline: round2(avgPoor),
			Change:   change,
			Value:    round2(avgExcellent),
		},
		Statistics: correlationStats(corr, len(excellent)+len(poor)),
		Pattern: models.PatternDescription{
			Description:   fmt.Sprintf("Excellent-weather days (%d) compared with poor-weather days (%d)", len(excellent), len(poor)),
			WhenCondition: "weather is clear and 65-85°F",
			ThenOutcome:   outcomeText(models.MetricRevenue, change),
			Strength:      ClassifyStrength(math.Abs(corr)),
			Actionable:    math.Abs(change) > 15,
		},
	}
}
