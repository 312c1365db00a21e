package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dinecast-api/pkg/models"

	"github.com/rs/zerolog/log"
)

// SportsProvider スポーツの試合情報の取得元
type SportsProvider interface {
	GetGamesOnDate(ctx context.Context, date time.Time, lat, lon, radiusMiles float64) ([]models.Game, error)
}

// スポーツ影響の半径
const sportsRadiusMiles = 30.0

// SportsAPIProvider スポーツAPIのHTTPクライアント
type SportsAPIProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewSportsAPIProvider baseURLが空なら常に空リストを返す
func NewSportsAPIProvider(baseURL, apiKey string) *SportsAPIProvider {
	return &SportsAPIProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// GetGamesOnDate 指定日の周辺試合
func (p *SportsAPIProvider) GetGamesOnDate(ctx context.Context, date time.Time, lat, lon, radiusMiles float64) ([]models.Game, error) {
	if p.baseURL == "" {
		return []models.Game{}, nil
	}
	params := coordParams(lat, lon)
	params.Set("date", date.Format(models.DateLayout))
	params.Set("radius", fmt.Sprintf("%.1f", radiusMiles))

	var body struct {
		Games []models.Game `json:"games"`
	}
	if err := getJSON(ctx, p.client, p.baseURL+"/games", params, p.apiKey, &body); err != nil {
		return nil, fmt.Errorf("スポーツAPIエラー: %w", err)
	}

	games := make([]models.Game, 0, len(body.Games))
	for _, g := range body.Games {
		if err := validateStruct(g); err != nil {
			log.Debug().Err(err).Str("home", g.HomeTeam).Msg("⚠️ 不正な試合データを除外")
			continue
		}
		games = append(games, g)
	}
	return games, nil
}

// hasMajorGame high/critical の試合があるか
func hasMajorGame(games []models.Game) bool {
	for _, g := range games {
		if g.ImpactLevel == models.ImpactHigh || g.ImpactLevel == models.ImpactCritical {
			return true
		}
	}
	return false
}
