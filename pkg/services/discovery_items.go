package services

import (
	"fmt"
	"math"
	"sort"

	"dinecast-api/pkg/models"
)

// メニュー分析の閾値
const (
	minItemSales    = 10.0
	itemBucketShare = 0.5
	maxItemPatterns = 5
)

type itemKey struct {
	category string
	name     string
}

type itemTally struct {
	key      itemKey
	buckets  map[string]float64
	total    float64
	dominant string
	share    float64
}

// analyzeMenuItemWeather 天気バケットに売上が偏るメニューを抽出
func analyzeMenuItemWeather(in *analysisInput) []*models.Pattern {
	tallies := make(map[itemKey]*itemTally)
	dayBuckets := make(map[string]int)
	daysWithWeather := 0

	for _, agg := range in.daily {
		w := in.day(agg).Weather
		if w == nil {
			continue
		}
		daysWithWeather++
		dayBuckets[weatherBucket(w)]++
	}
	if daysWithWeather == 0 {
		return nil
	}

	for _, tx := range in.txs {
		snap := in.contexts[localDate(tx.TransactionDate, in.loc)]
		if snap == nil || snap.Weather == nil {
			continue
		}
		bucket := weatherBucket(snap.Weather)
		for _, item := range tx.Items {
			k := itemKey{category: item.Category, name: item.Name}
			t, ok := tallies[k]
			if !ok {
				t = &itemTally{key: k, buckets: make(map[string]float64)}
				tallies[k] = t
			}
			t.buckets[bucket] += item.Quantity
			t.total += item.Quantity
		}
	}

	var affine []*itemTally
	for _, t := range tallies {
		if t.total < minItemSales {
			continue
		}
		for _, b := range []string{bucketHot, bucketCold, bucketRainy} {
			share := t.buckets[b] / t.total
			if share > itemBucketShare && share > t.share {
				t.dominant, t.share = b, share
			}
		}
		if t.dominant != "" {
			affine = append(affine, t)
		}
	}
	sort.Slice(affine, func(i, j int) bool {
		if affine[i].share != affine[j].share {
			return affine[i].share > affine[j].share
		}
		if affine[i].key.category != affine[j].key.category {
			return affine[i].key.category < affine[j].key.category
		}
		return affine[i].key.name < affine[j].key.name
	})
	if len(affine) > maxItemPatterns {
		affine = affine[:maxItemPatterns]
	}

	out := make([]*models.Pattern, 0, len(affine))
	for _, t := range affine {
		dayShare := float64(dayBuckets[t.dominant]) / float64(daysWithWeather)
		if dayShare == 0 {
			continue
		}
		change := round2(percentChange(t.share, dayShare))
		corr := clampRange(change/100, -1, 1)
		dailyAvg := t.total / float64(daysWithWeather)
		out = append(out, &models.Pattern{
			Type: models.FactorWeather,
			ExternalFactor: models.ExternalFactor{
				Type:         models.ExtMenuItemWeather,
				Condition:    t.dominant,
				ItemName:     t.key.name,
				ItemCategory: t.key.category,
			},
			BusinessOutcome: models.BusinessOutcome{
				Metric:   models.MetricItemSales,
				Baseline: round2(dailyAvg),
				Change:   change,
				Value:    round2(dailyAvg * (1 + change/100)),
			},
			Statistics: correlationStats(corr, int(t.total)),
			Pattern: models.PatternDescription{
				Description:    fmt.Sprintf("%.0f%% of %s sales happen on %s days", t.share*100, t.key.name, t.dominant),
				WhenCondition:  fmt.Sprintf("weather is %s", t.dominant),
				ThenOutcome:    fmt.Sprintf("%s sales %s by %.1f%%", t.key.name, changeWord(change), math.Abs(change)),
				Strength:       ClassifyStrength(math.Abs(corr)),
				Actionable:     true,
				Recommendation: fmt.Sprintf("Feature %s and raise its prep par on %s days", t.key.name, t.dominant),
			},
		})
	}
	return out
}
