package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dinecast-api/pkg/models"

	"github.com/rs/zerolog/log"
)

// EventsProvider 地域イベントの取得元
type EventsProvider interface {
	GetLocalEvents(ctx context.Context, lat, lon, radiusMiles float64, start, end time.Time) ([]models.Event, error)
	GetMajorEvents(ctx context.Context, lat, lon float64, date time.Time) ([]models.Event, error)
}

// 大規模イベントの検索半径
const majorEventRadiusMiles = 10.0

// EventsAPIProvider イベントAPIのHTTPクライアント
type EventsAPIProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewEventsAPIProvider baseURLが空なら常に空リストを返す
func NewEventsAPIProvider(baseURL, apiKey string) *EventsAPIProvider {
	return &EventsAPIProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// GetLocalEvents 期間内の周辺イベント
func (p *EventsAPIProvider) GetLocalEvents(ctx context.Context, lat, lon, radiusMiles float64, start, end time.Time) ([]models.Event, error) {
	if p.baseURL == "" {
		return []models.Event{}, nil
	}
	params := coordParams(lat, lon)
	params.Set("radius", fmt.Sprintf("%.1f", radiusMiles))
	params.Set("start", start.Format(models.DateLayout))
	params.Set("end", end.Format(models.DateLayout))

	var body struct {
		Events []models.Event `json:"events"`
	}
	if err := getJSON(ctx, p.client, p.baseURL+"/events", params, p.apiKey, &body); err != nil {
		return nil, fmt.Errorf("イベントAPIエラー: %w", err)
	}

	events := make([]models.Event, 0, len(body.Events))
	for _, e := range body.Events {
		if err := validateStruct(e); err != nil {
			log.Debug().Err(err).Str("event", e.Name).Msg("⚠️ 不正なイベントを除外")
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// GetMajorEvents 指定日の high/critical イベント
func (p *EventsAPIProvider) GetMajorEvents(ctx context.Context, lat, lon float64, date time.Time) ([]models.Event, error) {
	events, err := p.GetLocalEvents(ctx, lat, lon, majorEventRadiusMiles, date, date.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	return filterMajorEvents(events), nil
}

func filterMajorEvents(events []models.Event) []models.Event {
	major := make([]models.Event, 0, len(events))
	for _, e := range events {
		if e.IsMajor() {
			major = append(major, e)
		}
	}
	return major
}

// getJSON GETしてJSONをデコード
func getJSON(ctx context.Context, client *http.Client, endpoint string, params url.Values, apiKey string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	if apiKey != "" {
		req.Header.Set("X-API-KEY", apiKey)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
