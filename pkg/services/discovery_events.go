package services

import (
	"fmt"
	"math"

	"dinecast-api/pkg/models"
)

// イベント・スポーツ・祝日分析の閾値
const (
	minEventDays        = 3
	minEventChange      = 15.0
	eventStrength       = 0.70
	sportsStrength      = 0.75
	minHolidayTxs       = 5
	minHolidayChange    = 10.0
	majorEventCategory  = "major_event"
	majorGameNearbyCond = "major_game_nearby"
	anyHolidayCondition = "holiday"
)

// compareEventDays 該当日と非該当日の2群比較（強度は固定値）
func compareEventDays(in *analysisInput, matchedDay func(dayContext) bool, minDays int, minChange, strength float64) (groupStats, float64, bool) {
	values := make([]float64, 0, len(in.daily))
	matched := make([]bool, 0, len(in.daily))
	for _, agg := range in.daily {
		values = append(values, agg.Revenue)
		matched = append(matched, matchedDay(in.day(agg)))
	}
	g := compareGroups(values, matched)
	if len(g.matched) < minDays || len(g.others) == 0 || g.othersMean == 0 {
		return g, 0, false
	}
	if math.Abs(g.changePct) <= minChange {
		return g, 0, false
	}
	return g, strength * signOf(g.changePct), true
}

// analyzeEvents 大規模イベント日の売上比較
func analyzeEvents(in *analysisInput) *models.Pattern {
	g, corr, ok := compareEventDays(in, dayContext.hasMajorEvent, minEventDays, minEventChange, eventStrength)
	if !ok {
		return nil
	}
	change := round2(g.changePct)
	p := &models.Pattern{
		Type: models.FactorEvent,
		ExternalFactor: models.ExternalFactor{
			Type:     models.ExtLocalEvent,
			Category: majorEventCategory,
		},
		BusinessOutcome: models.BusinessOutcome{
			Metric:   models.MetricRevenue,
			Baseline: round2(g.othersMean),
			Change:   change,
			Value:    round2(g.matchedMean),
		},
		Statistics: correlationStats(corr, len(g.matched)+len(g.others)),
		Pattern: models.PatternDescription{
			Description:   fmt.Sprintf("High-impact local events on %d days", len(g.matched)),
			WhenCondition: "a high or critical impact event is nearby",
			ThenOutcome:   outcomeText(models.MetricRevenue, change),
			Strength:      ClassifyStrength(math.Abs(corr)),
			Actionable:    true,
		},
	}
	if change > 0 {
		p.Pattern.Recommendation = "Add staff and prep volume on major event days"
	} else {
		p.Pattern.Recommendation = "Expect fewer guests during major events; reduce prep and promote delivery"
	}
	return p
}

// analyzeSports 近隣の大きな試合がある日の売上比較
func analyzeSports(in *analysisInput) *models.Pattern {
	hasGame := func(d dayContext) bool { return d.HasMajorGame }
	g, corr, ok := compareEventDays(in, hasGame, minEventDays, minEventChange, sportsStrength)
	if !ok {
		return nil
	}
	change := round2(g.changePct)
	p := &models.Pattern{
		Type: models.FactorSports,
		ExternalFactor: models.ExternalFactor{
			Type:      models.ExtSportsGame,
			Condition: majorGameNearbyCond,
		},
		BusinessOutcome: models.BusinessOutcome{
			Metric:   models.MetricRevenue,
			Baseline: round2(g.othersMean),
			Change:   change,
			Value:    round2(g.matchedMean),
		},
		Statistics: correlationStats(corr, len(g.matched)+len(g.others)),
		Pattern: models.PatternDescription{
			Description:   fmt.Sprintf("Major games within %.0f miles on %d days", sportsRadiusMiles, len(g.matched)),
			WhenCondition: "a high-impact game is played nearby",
			ThenOutcome:   outcomeText(models.MetricRevenue, change),
			Strength:      ClassifyStrength(math.Abs(corr)),
			Actionable:    true,
		},
	}
	if change > 0 {
		p.Pattern.Recommendation = "Run game-day specials and schedule bar staff before kickoff"
	} else {
		p.Pattern.Recommendation = "Game days pull guests away; shorten shifts and push takeout"
	}
	return p
}

// analyzeHolidays 祝日と平日の客単価を取引単位で比較
func analyzeHolidays(in *analysisInput) *models.Pattern {
	var holidayTickets, otherTickets []float64
	for _, tx := range in.txs {
		snap := in.contexts[localDate(tx.TransactionDate, in.loc)]
		if snap != nil && snap.Holiday != nil {
			holidayTickets = append(holidayTickets, tx.TotalAmount)
		} else {
			otherTickets = append(otherTickets, tx.TotalAmount)
		}
	}
	if len(holidayTickets) < minHolidayTxs || len(otherTickets) == 0 {
		return nil
	}
	values := append(append([]float64{}, holidayTickets...), otherTickets...)
	flags := make([]bool, len(values))
	for i := range holidayTickets {
		flags[i] = true
	}
	g := compareGroups(values, flags)
	if g.othersMean == 0 || math.Abs(g.changePct) <= minHolidayChange {
		return nil
	}

	change := round2(g.changePct)
	corr := clampRange(change/100, -1, 1)
	return &models.Pattern{
		Type: models.FactorHoliday,
		ExternalFactor: models.ExternalFactor{
			Type:      models.ExtHoliday,
			Condition: anyHolidayCondition,
		},
		BusinessOutcome: models.BusinessOutcome{
			Metric:   models.MetricAvgTicket,
			Baseline: round2(g.othersMean),
			Change:   change,
			Value:    round2(g.matchedMean),
		},
		Statistics: correlationStats(corr, len(values)),
		Pattern: models.PatternDescription{
			Description:   fmt.Sprintf("Holiday transactions (%d) compared with regular transactions (%d)", len(holidayTickets), len(otherTickets)),
			WhenCondition: "the date is a holiday",
			ThenOutcome:   outcomeText(models.MetricAvgTicket, change),
			Strength:      ClassifyStrength(math.Abs(corr)),
			Actionable:    math.Abs(change) > 20,
		},
	}
}
