package services

import (
	"fmt"
	"math"
	"time"

	"dinecast-api/pkg/models"
)

// multiFactorScenario 複合条件シナリオ
type multiFactorScenario struct {
	extType        string
	factors        []string
	qualifies      func(dayContext) bool
	comparable     func(dayContext) bool
	minQualifying  int
	minComparison  int
	minChange      float64
	when           string
	recommendation [2]string
}

var multiFactorScenarios = []multiFactorScenario{
	{
		extType:       models.ExtWeekendPerfectEvent,
		factors:       []string{"weekend", "perfect_weather", "major_event"},
		qualifies:     isPerfectEventWeekend,
		comparable:    dayContext.isWeekend,
		minQualifying: 3,
		minComparison: 5,
		minChange:     25,
		when:          "a weekend has perfect weather and a major event or game",
		recommendation: [2]string{
			"Schedule full staff and open all seating on perfect event weekends",
			"Perfect event weekends pull guests elsewhere; run a destination promotion",
		},
	},
	{
		extType:       models.ExtRainyFriday,
		factors:       []string{"friday", "rain", "no_events"},
		qualifies:     isRainyFriday,
		comparable:    func(d dayContext) bool { return d.Date.Weekday() == time.Friday },
		minQualifying: 2,
		minComparison: 3,
		minChange:     15,
		when:          "it rains on a Friday with no competing events",
		recommendation: [2]string{
			"Rainy Fridays fill the dining room; add a server and comfort specials",
			"Push delivery bundles on rainy Fridays and trim the evening shift",
		},
	},
	{
		extType:       models.ExtColdMonday,
		factors:       []string{"monday", "cold"},
		qualifies:     isColdMonday,
		comparable:    func(d dayContext) bool { return d.Date.Weekday() == time.Monday },
		minQualifying: 2,
		minComparison: 3,
		minChange:     12,
		when:          "a Monday is colder than 50°F",
		recommendation: [2]string{
			"Cold Mondays run busy; prep extra soups and hot drinks",
			"Cold Mondays are slow; run a warm-up promotion and reduce prep",
		},
	},
}

// analyzeMultiFactor 複合条件ごとに該当日と同種の比較日を比べる
func analyzeMultiFactor(in *analysisInput) []*models.Pattern {
	out := make([]*models.Pattern, 0)
	for _, sc := range multiFactorScenarios {
		if p := evaluateScenario(in, sc); p != nil {
			out = append(out, p)
		}
	}
	return out
}

func evaluateScenario(in *analysisInput, sc multiFactorScenario) *models.Pattern {
	var qualifying, comparison []float64
	for _, agg := range in.daily {
		d := in.day(agg)
		if d.Weather == nil {
			continue
		}
		switch {
		case sc.qualifies(d):
			qualifying = append(qualifying, agg.Revenue)
		case sc.comparable(d):
			comparison = append(comparison, agg.Revenue)
		}
	}
	if len(qualifying) < sc.minQualifying || len(comparison) < sc.minComparison {
		return nil
	}

	values := append(append([]float64{}, qualifying...), comparison...)
	flags := make([]bool, len(values))
	for i := range qualifying {
		flags[i] = true
	}
	g := compareGroups(values, flags)
	if g.othersMean == 0 || math.Abs(g.changePct) <= sc.minChange {
		return nil
	}

	change := round2(g.changePct)
	corr := clampRange(change/100, -1, 1)
	rec := sc.recommendation[0]
	if change < 0 {
		rec = sc.recommendation[1]
	}
	return &models.Pattern{
		Type: models.FactorMultiFactor,
		ExternalFactor: models.ExternalFactor{
			Type:    sc.extType,
			Factors: append([]string(nil), sc.factors...),
		},
		BusinessOutcome: models.BusinessOutcome{
			Metric:   models.MetricRevenue,
			Baseline: round2(g.othersMean),
			Change:   change,
			Value:    round2(g.matchedMean),
		},
		Statistics: correlationStats(corr, len(values)),
		Pattern: models.PatternDescription{
			Description:    fmt.Sprintf("%d qualifying days compared with %d similar days", len(qualifying), len(comparison)),
			WhenCondition:  sc.when,
			ThenOutcome:    outcomeText(models.MetricRevenue, change),
			Strength:       ClassifyStrength(math.Abs(corr)),
			Actionable:     true,
			Recommendation: rec,
		},
	}
}
