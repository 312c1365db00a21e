package services

import (
	"sort"
	"time"

	"dinecast-api/pkg/models"
)

// AggregateDaily 取引を店舗現地の日付ごとに集計する
// 取引のない日は生成しない
func AggregateDaily(txs []models.Transaction, loc *time.Location) []models.DailyAggregate {
	if loc == nil {
		loc = time.UTC
	}
	byDate := make(map[string]*models.DailyAggregate)
	for _, tx := range txs {
		key := localDate(tx.TransactionDate, loc)
		agg, ok := byDate[key]
		if !ok {
			agg = &models.DailyAggregate{Date: key, ItemCounts: make(map[string]map[string]float64)}
			byDate[key] = agg
		}
		agg.Revenue += tx.TotalAmount
		agg.TransactionCount++
		for _, item := range tx.Items {
			cat := item.Category
			if cat == "" {
				cat = "uncategorized"
			}
			if agg.ItemCounts[cat] == nil {
				agg.ItemCounts[cat] = make(map[string]float64)
			}
			agg.ItemCounts[cat][item.Name] += item.Quantity
		}
	}

	out := make([]models.DailyAggregate, 0, len(byDate))
	for _, agg := range byDate {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// localDate 現地日付のキー
func localDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(models.DateLayout)
}

// parseLocalDate 日付キーを現地時刻の0時に変換
func parseLocalDate(key string, loc *time.Location) time.Time {
	t, err := time.ParseInLocation(models.DateLayout, key, loc)
	if err != nil {
		return time.Time{}
	}
	return t
}
