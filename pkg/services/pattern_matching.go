package services

import (
	"time"

	"dinecast-api/pkg/models"
)

// 気温バケットの境界（°F）
const (
	hotThreshold  = 80.0
	coldThreshold = 50.0
)

// 天気バケット
const (
	bucketHot    = "hot"
	bucketCold   = "cold"
	bucketRainy  = "rainy"
	bucketNormal = "normal"
)

// dayContext パターン条件の判定に使う1日分の状況
type dayContext struct {
	Date         time.Time
	Weather      *models.WeatherSnapshot
	Events       []models.Event
	HasMajorGame bool
	Holiday      *models.Holiday
}

func (d dayContext) hasMajorEvent() bool {
	for _, e := range d.Events {
		if e.IsMajor() {
			return true
		}
	}
	return false
}

func (d dayContext) isWeekend() bool {
	wd := d.Date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func fromSnapshot(date time.Time, s *models.ContextSnapshot) dayContext {
	if s == nil {
		return dayContext{Date: date}
	}
	return dayContext{Date: date, Weather: s.Weather, Events: s.Events, HasMajorGame: s.HasMajorGame, Holiday: s.Holiday}
}

// weatherBucket 気温優先で天気バケットを決める
func weatherBucket(w *models.WeatherSnapshot) string {
	switch {
	case w == nil:
		return ""
	case w.Temperature >= hotThreshold:
		return bucketHot
	case w.Temperature < coldThreshold:
		return bucketCold
	case w.IsRaining:
		return bucketRainy
	default:
		return bucketNormal
	}
}

// isPerfectEventWeekend 週末・快晴・大規模イベント/試合
func isPerfectEventWeekend(d dayContext) bool {
	return d.Weather != nil && d.isWeekend() && d.Weather.IsPerfect() && (d.hasMajorEvent() || d.HasMajorGame)
}

func isRainyFriday(d dayContext) bool {
	return d.Weather != nil && d.Date.Weekday() == time.Friday && d.Weather.IsRaining &&
		!d.hasMajorEvent() && !d.HasMajorGame
}

func isColdMonday(d dayContext) bool {
	return d.Weather != nil && d.Date.Weekday() == time.Monday && d.Weather.Temperature < coldThreshold
}

// matchesCondition パターンの条件がその日に成立するか
// 判定に必要な情報がない場合は ok=false
func matchesCondition(p *models.Pattern, d dayContext) (matched, ok bool) {
	ef := p.ExternalFactor
	switch ef.Type {
	case models.ExtTemperature:
		if d.Weather == nil || ef.Threshold == nil {
			return false, false
		}
		if ef.Operator == "below" {
			return d.Weather.Temperature < *ef.Threshold, true
		}
		return d.Weather.Temperature > *ef.Threshold, true
	case models.ExtPrecipitation:
		if d.Weather == nil {
			return false, false
		}
		return d.Weather.IsRaining, true
	case models.ExtWeatherQuality:
		if d.Weather == nil {
			return false, false
		}
		return d.Weather.IsPerfect(), true
	case models.ExtLocalEvent:
		return d.hasMajorEvent(), true
	case models.ExtSportsGame:
		return d.HasMajorGame, true
	case models.ExtHoliday:
		if ef.HolidayName != "" {
			return d.Holiday != nil && d.Holiday.Name == ef.HolidayName, true
		}
		return d.Holiday != nil, true
	case models.ExtMenuItemWeather:
		if d.Weather == nil {
			return false, false
		}
		return weatherBucket(d.Weather) == ef.Condition, true
	case models.ExtWeekendPerfectEvent:
		if d.Weather == nil {
			return false, false
		}
		return isPerfectEventWeekend(d), true
	case models.ExtRainyFriday:
		if d.Weather == nil {
			return false, false
		}
		return isRainyFriday(d), true
	case models.ExtColdMonday:
		if d.Weather == nil {
			return false, false
		}
		return isColdMonday(d), true
	}
	return false, false
}

// inComparisonPool 条件不成立日のうち比較対象とする日
func inComparisonPool(p *models.Pattern, d dayContext) bool {
	switch p.ExternalFactor.Type {
	case models.ExtWeatherQuality:
		return d.Weather != nil && d.Weather.IsPoor()
	case models.ExtWeekendPerfectEvent:
		return d.isWeekend()
	case models.ExtRainyFriday:
		return d.Date.Weekday() == time.Friday
	case models.ExtColdMonday:
		return d.Date.Weekday() == time.Monday
	}
	return true
}
