package services

import (
	"context"
	"time"

	"dinecast-api/pkg/models"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"
)

// HolidayProvider 祝日情報の取得元
type HolidayProvider interface {
	GetHoliday(ctx context.Context, date time.Time) (*models.Holiday, error)
	GetUpcomingHolidays(ctx context.Context, n int) ([]models.Holiday, error)
}

// 外食に影響の大きい非公式の記念日
var diningOccasions = []*cal.Holiday{
	{Name: "Valentine's Day", Month: time.February, Day: 14, Func: cal.CalcDayOfMonth},
	{Name: "St. Patrick's Day", Month: time.March, Day: 17, Func: cal.CalcDayOfMonth},
	{Name: "Cinco de Mayo", Month: time.May, Day: 5, Func: cal.CalcDayOfMonth},
	{Name: "Mother's Day", Month: time.May, Weekday: time.Sunday, Offset: 2, Func: cal.CalcWeekdayOffset},
	{Name: "Father's Day", Month: time.June, Weekday: time.Sunday, Offset: 3, Func: cal.CalcWeekdayOffset},
	{Name: "Halloween", Month: time.October, Day: 31, Func: cal.CalcDayOfMonth},
	{Name: "Christmas Eve", Month: time.December, Day: 24, Func: cal.CalcDayOfMonth},
	{Name: "New Year's Eve", Month: time.December, Day: 31, Func: cal.CalcDayOfMonth},
}

// 祝日ごとの外食への影響
var diningImpact = map[string]string{
	"Valentine's Day":   models.ImpactHigh,
	"Mother's Day":      models.ImpactHigh,
	"New Year's Eve":    models.ImpactHigh,
	"St. Patrick's Day": models.ImpactMedium,
	"Cinco de Mayo":     models.ImpactMedium,
	"Father's Day":      models.ImpactMedium,
	"Halloween":         models.ImpactMedium,
	"Independence Day":  models.ImpactMedium,
	"Memorial Day":      models.ImpactMedium,
	"Labor Day":         models.ImpactMedium,
	"Thanksgiving Day":  models.ImpactNegative,
	"Christmas Day":     models.ImpactNegative,
	"Christmas Eve":     models.ImpactNegative,
	"New Year's Day":    models.ImpactLow,
}

// CalendarHolidayProvider 米国の祝日カレンダー
type CalendarHolidayProvider struct {
	calendar *cal.BusinessCalendar
	now      func() time.Time
}

// NewCalendarHolidayProvider 新しい祝日プロバイダー
func NewCalendarHolidayProvider() *CalendarHolidayProvider {
	c := cal.NewBusinessCalendar()
	c.AddHoliday(us.Holidays...)
	c.AddHoliday(diningOccasions...)
	return &CalendarHolidayProvider{calendar: c, now: time.Now}
}

// GetHoliday 指定日の祝日（なければnil）
func (p *CalendarHolidayProvider) GetHoliday(_ context.Context, date time.Time) (*models.Holiday, error) {
	return p.lookup(date), nil
}

func (p *CalendarHolidayProvider) lookup(date time.Time) *models.Holiday {
	day := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, time.UTC)
	actual, observed, h := p.calendar.IsHoliday(day)
	if (!actual && !observed) || h == nil {
		return nil
	}
	impact, ok := diningImpact[h.Name]
	if !ok {
		impact = models.ImpactLow
	}
	return &models.Holiday{
		Name:         h.Name,
		Date:         day.Format(models.DateLayout),
		DiningImpact: impact,
	}
}

// GetUpcomingHolidays 今日以降のn件の祝日
func (p *CalendarHolidayProvider) GetUpcomingHolidays(_ context.Context, n int) ([]models.Holiday, error) {
	out := make([]models.Holiday, 0, n)
	day := p.now()
	for i := 0; i < 400 && len(out) < n; i++ {
		if h := p.lookup(day.AddDate(0, 0, i)); h != nil {
			out = append(out, *h)
		}
	}
	return out, nil
}
