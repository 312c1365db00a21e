package services

import (
	"fmt"
	"testing"
	"time"

	"dinecast-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stageDay 分析入力の1日分
type stageDay struct {
	date    time.Time
	revenue float64
	weather *models.WeatherSnapshot
	events  []models.Event
	game    bool
	holiday bool
	tickets []float64
	items   []models.TransactionItem
}

var stageStart = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

// stageInput 日付未指定の日は stageStart から連続で並べる
func stageInput(days ...stageDay) *analysisInput {
	in := &analysisInput{
		restaurant: testRestaurant("r1"),
		loc:        time.UTC,
		contexts:   make(map[string]*models.ContextSnapshot),
	}
	for i, d := range days {
		date := d.date
		if date.IsZero() {
			date = stageStart.AddDate(0, 0, i)
		}
		key := date.Format(models.DateLayout)
		snap := &models.ContextSnapshot{Date: key, Weather: d.weather, Events: d.events, HasMajorGame: d.game}
		if d.holiday {
			snap.Holiday = &models.Holiday{Name: "Test Day", Date: key}
		}
		in.contexts[key] = snap

		tickets := d.tickets
		if len(tickets) == 0 {
			tickets = []float64{d.revenue}
		}
		var revenue float64
		for j, amount := range tickets {
			tx := models.Transaction{
				ID:              fmt.Sprintf("%s-%d", key, j),
				RestaurantID:    "r1",
				TransactionDate: date.Add(12 * time.Hour),
				TotalAmount:     amount,
			}
			if j == 0 {
				tx.Items = d.items
			}
			in.txs = append(in.txs, tx)
			revenue += amount
		}
		in.daily = append(in.daily, models.DailyAggregate{Date: key, Revenue: revenue, TransactionCount: len(tickets)})
	}
	return in
}

func repeatDay(n int, d stageDay) []stageDay {
	out := make([]stageDay, n)
	for i := range out {
		out[i] = d
	}
	return out
}

func concatDays(groups ...[]stageDay) []stageDay {
	var out []stageDay
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

var (
	rainyWeather   = &models.WeatherSnapshot{Temperature: 60, Condition: models.ConditionRain, IsRaining: true}
	dryWeather     = &models.WeatherSnapshot{Temperature: 70, Condition: models.ConditionCloudy}
	perfectWeather = &models.WeatherSnapshot{Temperature: 72, Condition: models.ConditionClear}
	majorEvent     = []models.Event{{Name: "Street Fair", Category: "festival", ImpactLevel: models.ImpactHigh}}
)

func TestAnalyzePrecipitation(t *testing.T) {
	tests := []struct {
		name       string
		days       []stageDay
		wantNil    bool
		wantChange float64
	}{
		{
			name:    "two rainy days are not enough",
			days:    concatDays(repeatDay(2, stageDay{revenue: 800, weather: rainyWeather}), repeatDay(5, stageDay{revenue: 1000, weather: dryWeather})),
			wantNil: true,
		},
		{
			name:       "three rainy days lower revenue",
			days:       concatDays(repeatDay(3, stageDay{revenue: 800, weather: rainyWeather}), repeatDay(5, stageDay{revenue: 1000, weather: dryWeather})),
			wantChange: -20,
		},
		{
			name:    "no dry days to compare",
			days:    repeatDay(4, stageDay{revenue: 800, weather: rainyWeather}),
			wantNil: true,
		},
		{
			name:    "days without weather are ignored",
			days:    concatDays(repeatDay(3, stageDay{revenue: 800}), repeatDay(5, stageDay{revenue: 1000, weather: dryWeather})),
			wantNil: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := analyzePrecipitation(stageInput(tt.days...))
			if tt.wantNil {
				assert.Nil(t, p)
				return
			}
			require.NotNil(t, p)
			assert.Equal(t, models.ExtPrecipitation, p.ExternalFactor.Type)
			assert.Equal(t, models.MetricRevenue, p.BusinessOutcome.Metric)
			assert.InDelta(t, tt.wantChange, p.BusinessOutcome.Change, 1e-9)
			assert.InDelta(t, tt.wantChange/100, p.Statistics.Correlation, 1e-9)
			assert.NotEmpty(t, p.Pattern.Recommendation)
		})
	}
}

func TestAnalyzeWeatherQuality(t *testing.T) {
	tests := []struct {
		name       string
		excellent  int
		poor       int
		wantNil    bool
		wantChange float64
	}{
		{name: "two excellent days", excellent: 2, poor: 3, wantNil: true},
		{name: "two poor days", excellent: 3, poor: 2, wantNil: true},
		{name: "three of each", excellent: 3, poor: 3, wantChange: 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := stageInput(concatDays(
				repeatDay(tt.excellent, stageDay{revenue: 1500, weather: perfectWeather}),
				repeatDay(tt.poor, stageDay{revenue: 1000, weather: rainyWeather}),
				repeatDay(4, stageDay{revenue: 5000, weather: dryWeather}),
			)...)
			p := analyzeWeatherQuality(in)
			if tt.wantNil {
				assert.Nil(t, p)
				return
			}
			require.NotNil(t, p)
			assert.Equal(t, models.ExtWeatherQuality, p.ExternalFactor.Type)
			assert.InDelta(t, tt.wantChange, p.BusinessOutcome.Change, 1e-9)
			assert.InDelta(t, 1000, p.BusinessOutcome.Baseline, 1e-9)
			assert.True(t, p.Pattern.Actionable)
		})
	}
}

func TestAnalyzeEventsAndSports(t *testing.T) {
	lowEvent := []models.Event{{Name: "Book Club", ImpactLevel: models.ImpactLow}}
	tests := []struct {
		name     string
		analyze  func(*analysisInput) *models.Pattern
		matched  stageDay
		count    int
		wantNil  bool
		wantCorr float64
	}{
		{name: "events lift revenue", analyze: analyzeEvents, matched: stageDay{revenue: 1200, events: majorEvent}, count: 3, wantCorr: 0.70},
		{name: "events reduce revenue", analyze: analyzeEvents, matched: stageDay{revenue: 800, events: majorEvent}, count: 3, wantCorr: -0.70},
		{name: "event change within 15 percent", analyze: analyzeEvents, matched: stageDay{revenue: 1100, events: majorEvent}, count: 3, wantNil: true},
		{name: "two event days", analyze: analyzeEvents, matched: stageDay{revenue: 1500, events: majorEvent}, count: 2, wantNil: true},
		{name: "low impact events do not count", analyze: analyzeEvents, matched: stageDay{revenue: 1500, events: lowEvent}, count: 3, wantNil: true},
		{name: "games lift revenue", analyze: analyzeSports, matched: stageDay{revenue: 1300, game: true}, count: 3, wantCorr: 0.75},
		{name: "games reduce revenue", analyze: analyzeSports, matched: stageDay{revenue: 800, game: true}, count: 3, wantCorr: -0.75},
		{name: "exactly 15 percent is not enough", analyze: analyzeSports, matched: stageDay{revenue: 1150, game: true}, count: 3, wantNil: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := stageInput(concatDays(repeatDay(tt.count, tt.matched), repeatDay(5, stageDay{revenue: 1000}))...)
			p := tt.analyze(in)
			if tt.wantNil {
				assert.Nil(t, p)
				return
			}
			require.NotNil(t, p)
			assert.InDelta(t, tt.wantCorr, p.Statistics.Correlation, 1e-9)
			assert.Equal(t, tt.count+5, p.Statistics.SampleSize)
			assert.True(t, p.Pattern.Actionable)
		})
	}
}

func TestAnalyzeHolidays(t *testing.T) {
	regular := repeatDay(5, stageDay{tickets: []float64{50, 50}})
	tests := []struct {
		name       string
		holidays   []stageDay
		wantNil    bool
		wantChange float64
	}{
		{
			name:       "five holiday transactions",
			holidays:   []stageDay{{holiday: true, tickets: []float64{60, 60, 60}}, {holiday: true, tickets: []float64{60, 60}}},
			wantChange: 20,
		},
		{
			name:     "four holiday transactions",
			holidays: []stageDay{{holiday: true, tickets: []float64{60, 60}}, {holiday: true, tickets: []float64{60, 60}}},
			wantNil:  true,
		},
		{
			name:     "change within 10 percent",
			holidays: []stageDay{{holiday: true, tickets: []float64{54, 54, 54}}, {holiday: true, tickets: []float64{54, 54}}},
			wantNil:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := analyzeHolidays(stageInput(concatDays(tt.holidays, regular)...))
			if tt.wantNil {
				assert.Nil(t, p)
				return
			}
			require.NotNil(t, p)
			assert.Equal(t, models.MetricAvgTicket, p.BusinessOutcome.Metric)
			assert.InDelta(t, tt.wantChange, p.BusinessOutcome.Change, 1e-9)
			assert.InDelta(t, 50, p.BusinessOutcome.Baseline, 1e-9)
			assert.False(t, p.Pattern.Actionable, "20 percent is not above the actionable bar")
		})
	}
}

func TestAnalyzeMenuItemWeather(t *testing.T) {
	hot := &models.WeatherSnapshot{Temperature: 88, Condition: models.ConditionClear}
	cold := &models.WeatherSnapshot{Temperature: 42, Condition: models.ConditionCloudy}

	t.Run("dominant bucket over half of sales", func(t *testing.T) {
		hotItems := []models.TransactionItem{
			{Name: "Iced Tea", Category: "drinks", Quantity: 3},
			{Name: "Bread", Category: "sides", Quantity: 2},
		}
		coldItems := []models.TransactionItem{
			{Name: "Soup", Category: "mains", Quantity: 2},
			{Name: "Bread", Category: "sides", Quantity: 2},
		}
		in := stageInput(concatDays(
			repeatDay(4, stageDay{revenue: 1000, weather: hot, items: hotItems}),
			repeatDay(4, stageDay{revenue: 1000, weather: cold, items: coldItems}),
		)...)

		patterns := analyzeMenuItemWeather(in)
		require.Len(t, patterns, 1, "bread splits evenly and soup sells fewer than 10")
		p := patterns[0]
		assert.Equal(t, models.ExtMenuItemWeather, p.ExternalFactor.Type)
		assert.Equal(t, "Iced Tea", p.ExternalFactor.ItemName)
		assert.Equal(t, "hot", p.ExternalFactor.Condition)
		assert.Equal(t, models.MetricItemSales, p.BusinessOutcome.Metric)
		assert.InDelta(t, 100, p.BusinessOutcome.Change, 1e-9)
	})

	t.Run("at most five items", func(t *testing.T) {
		var items []models.TransactionItem
		for _, name := range []string{"G", "F", "E", "D", "C", "B", "A"} {
			items = append(items, models.TransactionItem{Name: "Item " + name, Category: "drinks", Quantity: 3})
		}
		in := stageInput(concatDays(
			repeatDay(4, stageDay{revenue: 1000, weather: hot, items: items}),
			repeatDay(4, stageDay{revenue: 1000, weather: cold}),
		)...)

		patterns := analyzeMenuItemWeather(in)
		require.Len(t, patterns, 5)
		assert.Equal(t, "Item A", patterns[0].ExternalFactor.ItemName)
		assert.Equal(t, "Item E", patterns[4].ExternalFactor.ItemName)
	})
}

// weekendDays 土日だけを並べる。先頭 qualifying 日は快晴＋大規模イベント
func weekendDays(qualifying, comparison int, qualifyingRevenue float64) []stageDay {
	sat := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	var out []stageDay
	for i := 0; i < qualifying+comparison; i++ {
		d := stageDay{
			date:    sat.AddDate(0, 0, (i/2)*7+i%2),
			revenue: 1000,
			weather: &models.WeatherSnapshot{Temperature: 55, Condition: models.ConditionCloudy},
		}
		if i < qualifying {
			d.revenue = qualifyingRevenue
			d.weather = perfectWeather
			d.events = majorEvent
		}
		out = append(out, d)
	}
	return out
}

func TestPerfectEventWeekendThresholds(t *testing.T) {
	sc := multiFactorScenarios[0]
	require.Equal(t, models.ExtWeekendPerfectEvent, sc.extType)

	tests := []struct {
		name       string
		comparison int
		revenue    float64
		wantNil    bool
		wantChange float64
	}{
		{name: "four comparison weekends", comparison: 4, revenue: 2000, wantNil: true},
		{name: "five comparison weekends", comparison: 5, revenue: 2000, wantChange: 100},
		{name: "exactly 25 percent", comparison: 5, revenue: 1250, wantNil: true},
		{name: "just above 25 percent", comparison: 5, revenue: 1260, wantChange: 26},
		{name: "large drop", comparison: 6, revenue: 600, wantChange: -40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := evaluateScenario(stageInput(weekendDays(3, tt.comparison, tt.revenue)...), sc)
			if tt.wantNil {
				assert.Nil(t, p)
				return
			}
			require.NotNil(t, p)
			assert.InDelta(t, tt.wantChange, p.BusinessOutcome.Change, 1e-9)
			if tt.wantChange < 0 {
				assert.Equal(t, sc.recommendation[1], p.Pattern.Recommendation)
			} else {
				assert.Equal(t, sc.recommendation[0], p.Pattern.Recommendation)
			}
		})
	}
}
