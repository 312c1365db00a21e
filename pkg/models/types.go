package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// PatternScope パターンの適用範囲
type PatternScope string

const (
	ScopeRestaurant PatternScope = "restaurant"
	ScopeRegional   PatternScope = "regional"
	ScopeGlobal     PatternScope = "global"
)

// FactorType パターンの要因カテゴリ
type FactorType string

const (
	FactorWeather     FactorType = "weather"
	FactorEvent       FactorType = "event"
	FactorHoliday     FactorType = "holiday"
	FactorSports      FactorType = "sports"
	FactorMultiFactor FactorType = "multi_factor"
)

// 外部要因の種類
const (
	ExtTemperature         = "temperature"
	ExtPrecipitation       = "precipitation"
	ExtWeatherQuality      = "weather_quality"
	ExtLocalEvent          = "local_event"
	ExtSportsGame          = "sports_game"
	ExtHoliday             = "holiday"
	ExtMenuItemWeather     = "menu_item_weather"
	ExtWeekendPerfectEvent = "weekend_perfect_weather_event"
	ExtRainyFriday         = "rainy_friday"
	ExtColdMonday          = "cold_monday"
)

// ビジネス指標
const (
	MetricRevenue   = "revenue"
	MetricAvgTicket = "avg_ticket"
	MetricItemSales = "item_sales"
	MetricTraffic   = "traffic"
)

// 強度ラベル
const (
	StrengthVeryStrong = "very_strong"
	StrengthStrong     = "strong"
	StrengthModerate   = "moderate"
	StrengthWeak       = "weak"
	StrengthVeryWeak   = "very_weak"
	StrengthNone       = "none"
)

// ExternalFactor パターンを発火させる外部条件
type ExternalFactor struct {
	Type         string   `json:"type"`
	Condition    string   `json:"condition,omitempty"`
	Operator     string   `json:"operator,omitempty"` // "above" | "below"
	Threshold    *float64 `json:"threshold,omitempty"`
	Category     string   `json:"category,omitempty"`
	ItemName     string   `json:"item_name,omitempty"`
	ItemCategory string   `json:"item_category,omitempty"`
	HolidayName  string   `json:"holiday_name,omitempty"`
	Factors      []string `json:"factors,omitempty"`
}

// Discriminator 同じ種類の外部要因を区別する文字列
func (f ExternalFactor) Discriminator() string {
	switch {
	case f.ItemName != "":
		return f.ItemCategory + "/" + f.ItemName + "/" + f.Condition
	case f.HolidayName != "":
		return f.HolidayName
	case f.Category != "":
		return f.Category
	case f.Condition != "":
		return f.Condition
	case len(f.Factors) > 0:
		return strings.Join(f.Factors, "+")
	}
	return ""
}

// BusinessOutcome パターンが予測するビジネス結果
type BusinessOutcome struct {
	Metric   string  `json:"metric"`
	Value    float64 `json:"value"`
	Change   float64 `json:"change"` // ベースラインからの変化率(%)
	Baseline float64 `json:"baseline"`
}

// Statistics パターンの統計量
type Statistics struct {
	Correlation float64 `json:"correlation"`
	PValue      float64 `json:"p_value"`
	SampleSize  int     `json:"sample_size"`
	Confidence  float64 `json:"confidence"`
	RSquared    float64 `json:"r_squared"`
}

// PatternDescription 人間向けの説明
type PatternDescription struct {
	Description    string `json:"description"`
	WhenCondition  string `json:"when_condition"`
	ThenOutcome    string `json:"then_outcome"`
	Strength       string `json:"strength"`
	Actionable     bool   `json:"actionable"`
	Recommendation string `json:"recommendation,omitempty"`
}

// Learning 学習履歴
type Learning struct {
	FirstDiscovered         time.Time `json:"first_discovered"`
	LastUpdated             time.Time `json:"last_updated"`
	DataPoints              int       `json:"data_points"`
	RestaurantsContributing int       `json:"restaurants_contributing"`
	TimesValidated          int       `json:"times_validated"`
	TimesInvalidated        int       `json:"times_invalidated"`
	Accuracy                float64   `json:"accuracy"`
	ContributorIDs          []string  `json:"contributor_ids,omitempty"`
}

// HasContributor 指定店舗が既に集約済みかどうか
func (l Learning) HasContributor(restaurantID string) bool {
	for _, id := range l.ContributorIDs {
		if id == restaurantID {
			return true
		}
	}
	return false
}

// Pattern 発見された相関パターン
type Pattern struct {
	ID                string             `json:"id"`
	Key               string             `json:"key"`
	Revision          int                `json:"revision"`
	Scope             PatternScope       `json:"scope"`
	RestaurantID      string             `json:"restaurant_id,omitempty"`
	Region            string             `json:"region,omitempty"`
	CuisineType       string             `json:"cuisine_type,omitempty"`
	Type              FactorType         `json:"type"`
	ExternalFactor    ExternalFactor     `json:"external_factor"`
	BusinessOutcome   BusinessOutcome    `json:"business_outcome"`
	Statistics        Statistics         `json:"statistics"`
	Pattern           PatternDescription `json:"pattern"`
	Learning          Learning           `json:"learning"`
	IsActive          bool               `json:"is_active"`
	Confidence        float64            `json:"confidence"`
	LastApplied       *time.Time         `json:"last_applied,omitempty"`
	TimesApplied      int                `json:"times_applied"`
	Version           int                `json:"version"`
	PreviousVersionID string             `json:"previous_version_id,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// BuildKey パターンの同一性キーを生成
func (p *Pattern) BuildKey() string {
	owner := p.RestaurantID
	if p.Scope != ScopeRestaurant {
		owner = ""
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s",
		p.Scope, owner, p.Region, p.CuisineType, p.Type, p.ExternalFactor.Type, p.ExternalFactor.Discriminator())
}

// Normalize 値域の不変条件を満たすよう値を丸める
func (p *Pattern) Normalize() {
	p.Statistics.Correlation = clamp(p.Statistics.Correlation, -1, 1)
	p.Statistics.Confidence = clamp(p.Statistics.Confidence, 0, 100)
	p.Statistics.RSquared = clamp(p.Statistics.RSquared, 0, 1)
	p.Statistics.PValue = clamp(p.Statistics.PValue, 0, 1)
	if p.Statistics.SampleSize < 1 {
		p.Statistics.SampleSize = 1
	}
	p.Confidence = clamp(p.Confidence, 0, 100)
	p.Learning.Accuracy = clamp(p.Learning.Accuracy, 0, 100)
	if p.Version < 1 {
		p.Version = 1
	}
	if p.Key == "" {
		p.Key = p.BuildKey()
	}
}

// Clone パターンのディープコピー
func (p *Pattern) Clone() *Pattern {
	c := *p
	if p.ExternalFactor.Threshold != nil {
		t := *p.ExternalFactor.Threshold
		c.ExternalFactor.Threshold = &t
	}
	if p.ExternalFactor.Factors != nil {
		c.ExternalFactor.Factors = append([]string(nil), p.ExternalFactor.Factors...)
	}
	if p.Learning.ContributorIDs != nil {
		c.Learning.ContributorIDs = append([]string(nil), p.Learning.ContributorIDs...)
	}
	if p.LastApplied != nil {
		t := *p.LastApplied
		c.LastApplied = &t
	}
	return &c
}

// PatternFilter 店舗パターン検索条件
type PatternFilter struct {
	Type          FactorType
	ActiveOnly    bool
	MinConfidence float64
}

// DiscoveryResult 発見処理の結果
type DiscoveryResult struct {
	Patterns         []*Pattern `json:"patterns"`
	NewCount         int        `json:"new_count"`
	ValidatedCount   int        `json:"validated_count"`
	InvalidatedCount int        `json:"invalidated_count"`
}

// ValidationResult 検証処理の結果
type ValidationResult struct {
	Validated   int `json:"validated"`
	Invalidated int `json:"invalidated"`
	Skipped     int `json:"skipped"`
	Deactivated int `json:"deactivated"`
	Errors      int `json:"errors"`
}

// ContributionResult グローバル学習への貢献結果
type ContributionResult struct {
	Merged  int `json:"merged"`
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// JobReport バッチジョブの実行結果
type JobReport struct {
	Processed   int           `json:"processed"`
	Errors      int           `json:"errors"`
	NewPatterns int           `json:"new_patterns"`
	Validated   int           `json:"validated"`
	Invalidated int           `json:"invalidated"`
	Contributed int           `json:"contributed"`
	Cancelled   bool          `json:"cancelled"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
