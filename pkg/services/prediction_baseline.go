package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"dinecast-api/pkg/models"
	"dinecast-api/pkg/repository"

	"github.com/montanaflynn/stats"
)

const (
	baselineWindowDays = 30
	peakHourCount      = 3
)

// BaselineService 直近30日の実績からベースラインを算出
type BaselineService struct {
	transactions repository.TransactionRepository
}

// NewBaselineService 新しいベースラインサービス
func NewBaselineService(transactions repository.TransactionRepository) *BaselineService {
	return &BaselineService{transactions: transactions}
}

// Compute asOf までの30日間のベースライン
func (s *BaselineService) Compute(ctx context.Context, restaurant *models.Restaurant, asOf time.Time) (*models.Baseline, error) {
	start := asOf.AddDate(0, 0, -baselineWindowDays)
	txs, err := s.transactions.ListByRange(ctx, restaurant.ID, start, asOf)
	if err != nil {
		return nil, fmt.Errorf("ベースライン用取引の取得に失敗: %w", err)
	}
	return ComputeBaseline(restaurant, txs, start, asOf), nil
}

// ComputeBaseline 取引一覧からベースラインを計算する（純粋関数）
func ComputeBaseline(restaurant *models.Restaurant, txs []models.Transaction, start, end time.Time) *models.Baseline {
	loc := restaurant.Location()
	b := &models.Baseline{
		RestaurantID:      restaurant.ID,
		DayOfWeekPatterns: make(map[string]models.DayOfWeekStat),
		PeakHours:         []string{},
	}
	daily := AggregateDaily(txs, loc)
	b.DaysObserved = len(daily)
	if len(daily) == 0 {
		return b
	}

	revenues := make([]float64, len(daily))
	counts := make([]float64, len(daily))
	var totalTx int
	for i, d := range daily {
		revenues[i] = d.Revenue
		counts[i] = float64(d.TransactionCount)
		totalTx += d.TransactionCount
	}
	totalRevenue, _ := stats.Sum(revenues)
	b.DailyAvgRevenue, _ = stats.Mean(revenues)
	b.DailyAvgTransactions, _ = stats.Mean(counts)
	if totalTx > 0 {
		b.AvgTicket = totalRevenue / float64(totalTx)
	}

	for _, d := range daily {
		wd := parseLocalDate(d.Date, loc).Weekday().String()
		st := b.DayOfWeekPatterns[wd]
		st.AvgRevenue += d.Revenue
		st.AvgTransactions += float64(d.TransactionCount)
		st.Occurrences++
		b.DayOfWeekPatterns[wd] = st
	}
	for wd, st := range b.DayOfWeekPatterns {
		st.AvgRevenue /= float64(st.Occurrences)
		st.AvgTransactions /= float64(st.Occurrences)
		b.DayOfWeekPatterns[wd] = st
	}

	b.TrendPercent = round2(revenueTrend(txs, start, end))
	b.PeakHours = peakHours(txs, loc)
	b.DailyAvgRevenue = round2(b.DailyAvgRevenue)
	b.AvgTicket = round2(b.AvgTicket)
	return b
}

// revenueTrend 期間の前半と後半の売上変化率
func revenueTrend(txs []models.Transaction, start, end time.Time) float64 {
	mid := start.Add(end.Sub(start) / 2)
	var first, second float64
	for _, tx := range txs {
		if tx.TransactionDate.Before(mid) {
			first += tx.TotalAmount
		} else {
			second += tx.TotalAmount
		}
	}
	return percentChange(second, first)
}

// peakHours 取引数の多い時間帯（同数なら早い時間）
func peakHours(txs []models.Transaction, loc *time.Location) []string {
	var byHour [24]int
	for _, tx := range txs {
		byHour[tx.TransactionDate.In(loc).Hour()]++
	}
	hours := make([]int, 0, 24)
	for h, n := range byHour {
		if n > 0 {
			hours = append(hours, h)
		}
	}
	sort.SliceStable(hours, func(i, j int) bool { return byHour[hours[i]] > byHour[hours[j]] })
	if len(hours) > peakHourCount {
		hours = hours[:peakHourCount]
	}
	out := make([]string, len(hours))
	for i, h := range hours {
		out[i] = fmt.Sprintf("%02d:00", h)
	}
	return out
}
