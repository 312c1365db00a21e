package services

import (
	"context"
	"testing"
	"time"

	"dinecast-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalendarHolidayProvider(t *testing.T) {
	p := NewCalendarHolidayProvider()
	ctx := context.Background()

	h, err := p.GetHoliday(ctx, time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "Valentine's Day", h.Name)
	assert.Equal(t, "2026-02-14", h.Date)

	h, err = p.GetHoliday(ctx, time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Contains(t, h.Name, "Independence")

	h, err = p.GetHoliday(ctx, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestUpcomingHolidays(t *testing.T) {
	p := NewCalendarHolidayProvider()
	p.now = func() time.Time { return time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC) }

	hs, err := p.GetUpcomingHolidays(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, hs, 2)
	assert.Equal(t, "Christmas Eve", hs[0].Name)
	assert.Equal(t, "2026-12-24", hs[0].Date)
	assert.Equal(t, "2026-12-25", hs[1].Date)
	for _, h := range hs {
		assert.Contains(t, []string{models.ImpactLow, models.ImpactMedium, models.ImpactHigh, models.ImpactCritical, models.ImpactNegative}, h.DiningImpact)
	}
}
