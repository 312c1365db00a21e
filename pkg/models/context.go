package models

import (
	"time"
)

// DateLayout 日付キーのフォーマット
const DateLayout = "2006-01-02"

// Restaurant 店舗メタデータ
type Restaurant struct {
	ID          string   `json:"id" db:"id"`
	Name        string   `json:"name" db:"name"`
	Latitude    *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude   *float64 `json:"longitude,omitempty" db:"longitude"`
	State       string   `json:"state,omitempty" db:"state"`
	CuisineType string   `json:"cuisine_type,omitempty" db:"cuisine_type"`
	Timezone    string   `json:"timezone,omitempty" db:"timezone"`
	Active      bool     `json:"active" db:"active"`
}

// HasLocation 緯度経度が設定されているか
func (r *Restaurant) HasLocation() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Location 店舗のタイムゾーン（不正・未設定ならUTC）
func (r *Restaurant) Location() *time.Location {
	if r.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CivilDate tの暦日（t自身のゾーンでの年月日）をlocの0時として返す
func CivilDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// TransactionItem 取引明細
type TransactionItem struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Quantity float64 `json:"quantity"`
}

// Transaction POS取引
type Transaction struct {
	ID              string            `json:"id"`
	RestaurantID    string            `json:"restaurant_id"`
	TransactionDate time.Time         `json:"transaction_date"`
	TotalAmount     float64           `json:"total_amount"`
	Items           []TransactionItem `json:"items,omitempty"`
}

// DailyAggregate 1日分の集計
type DailyAggregate struct {
	Date             string                        `json:"date"`
	Revenue          float64                       `json:"revenue"`
	TransactionCount int                           `json:"transaction_count"`
	ItemCounts       map[string]map[string]float64 `json:"item_counts"`
}

// AvgTicket 平均客単価
func (d DailyAggregate) AvgTicket() float64 {
	if d.TransactionCount == 0 {
		return 0
	}
	return d.Revenue / float64(d.TransactionCount)
}

// 気象条件
const (
	ConditionClear        = "clear"
	ConditionPartlyCloudy = "partly_cloudy"
	ConditionCloudy       = "cloudy"
	ConditionRain         = "rain"
	ConditionSnow         = "snow"
	ConditionStorm        = "storm"
)

// WeatherSnapshot 1日分の気象
type WeatherSnapshot struct {
	Date        string  `json:"date" validate:"required"`
	Temperature float64 `json:"temperature" validate:"gte=-80,lte=140"`
	Condition   string  `json:"condition" validate:"required"`
	IsRaining   bool    `json:"is_raining"`
	Humidity    float64 `json:"humidity" validate:"gte=0,lte=100"`
	Estimated   bool    `json:"estimated"`
	DataSource  string  `json:"data_source"`
}

// IsPerfect 快適な天気かどうか
func (w *WeatherSnapshot) IsPerfect() bool {
	return !w.IsRaining && w.Condition == ConditionClear &&
		w.Temperature >= 65 && w.Temperature <= 85
}

// IsPoor 悪天候かどうか
func (w *WeatherSnapshot) IsPoor() bool {
	return w.IsRaining || w.Temperature < 40 || w.Temperature > 95
}

// 影響レベル
const (
	ImpactLow      = "low"
	ImpactMedium   = "medium"
	ImpactHigh     = "high"
	ImpactCritical = "critical"
	ImpactNegative = "negative"
)

// Event 地域イベント
type Event struct {
	Name               string  `json:"name" validate:"required"`
	Category           string  `json:"category" validate:"required"`
	DistanceMiles      float64 `json:"distance_miles" validate:"gte=0"`
	ExpectedAttendance int     `json:"expected_attendance" validate:"gte=0"`
	ImpactLevel        string  `json:"impact_level" validate:"oneof=low medium high critical"`
	Date               string  `json:"date"`
}

// IsMajor 高影響イベントかどうか
func (e Event) IsMajor() bool {
	return e.ImpactLevel == ImpactHigh || e.ImpactLevel == ImpactCritical
}

// Game スポーツの試合
type Game struct {
	League      string `json:"league" validate:"required"`
	HomeTeam    string `json:"home_team" validate:"required"`
	AwayTeam    string `json:"away_team" validate:"required"`
	IsHomeGame  bool   `json:"is_home_game"`
	ImpactLevel string `json:"impact_level" validate:"oneof=low medium high critical"`
	Date        string `json:"date"`
}

// Holiday 祝日
type Holiday struct {
	Name         string `json:"name"`
	Date         string `json:"date"`
	DiningImpact string `json:"dining_impact"`
}

// ContextSnapshot 1日分の外部コンテキスト
type ContextSnapshot struct {
	Date         string           `json:"date"`
	Weather      *WeatherSnapshot `json:"weather,omitempty"`
	Events       []Event          `json:"events"`
	Games        []Game           `json:"games"`
	HasMajorGame bool             `json:"has_major_game"`
	Holiday      *Holiday         `json:"holiday,omitempty"`
	Partial      bool             `json:"partial"`
}

// ImportResult 取引インポートの結果
type ImportResult struct {
	Rows         int `json:"rows"`
	Transactions int `json:"transactions"`
	Imported     int `json:"imported"`
	Skipped      int `json:"skipped"`
}
