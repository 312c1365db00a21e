package services

import (
	"context"
	"fmt"
	"strings"

	"dinecast-api/pkg/models"

	"github.com/rs/zerolog/log"
)

// ForecastSummarizer LLMによる要約生成
type ForecastSummarizer interface {
	SummarizeForecast(ctx context.Context, forecastFacts string) (string, error)
}

// NarrativeService 週次予測の説明文を作る
// LLMが使えない場合はテンプレート文にフォールバックする
type NarrativeService struct {
	llm ForecastSummarizer
}

// NewNarrativeService llmはnil可
func NewNarrativeService(llm ForecastSummarizer) *NarrativeService {
	return &NarrativeService{llm: llm}
}

// Summarize 週次予測の要約
func (n *NarrativeService) Summarize(ctx context.Context, wf *models.WeekForecast) string {
	fallback := templateSummary(wf)
	if n == nil || n.llm == nil {
		return fallback
	}
	summary, err := n.llm.SummarizeForecast(ctx, forecastFacts(wf))
	if err != nil {
		log.Warn().Err(err).Str("restaurant_id", wf.RestaurantID).Msg("⚠️ AI要約に失敗したためテンプレートを使用します")
		return fallback
	}
	return summary
}

func templateSummary(wf *models.WeekForecast) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Projected revenue for the week is $%.0f at %.0f%% average confidence.", wf.TotalRevenue, wf.AverageConfidence)
	if wf.Insights.BestDay != "" {
		fmt.Fprintf(&b, " %s looks strongest and %s weakest.", wf.Insights.BestDay, wf.Insights.WorstDay)
	}
	if wf.Insights.WeatherImpactedDays > 0 {
		fmt.Fprintf(&b, " Weather shifts the outlook on %d day(s).", wf.Insights.WeatherImpactedDays)
	}
	return b.String()
}

func forecastFacts(wf *models.WeekForecast) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Week starting %s. Total projected revenue $%.0f, average confidence %.0f%%.\n",
		wf.StartDate, wf.TotalRevenue, wf.AverageConfidence)
	for _, d := range wf.Days {
		fmt.Fprintf(&b, "- %s %s: $%.0f (%+.1f%% vs baseline)", d.DayOfWeek, d.Date, d.PredictedRevenue, d.Change)
		for _, f := range d.Factors {
			fmt.Fprintf(&b, "; %s", f.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}
