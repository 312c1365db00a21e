package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 発見ジョブとプロバイダーのメトリクス
type Metrics struct {
	PatternsDiscovered *prometheus.CounterVec
	PatternsValidated  *prometheus.CounterVec
	PatternsPooled     *prometheus.CounterVec
	ProviderFailures   *prometheus.CounterVec
	WeatherFallbacks   prometheus.Counter
	JobErrors          prometheus.Counter
	JobDuration        prometheus.Histogram
	RestaurantDuration prometheus.Histogram
}

// NewMetrics メトリクスを作成し、regが非nilなら登録する
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PatternsDiscovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dinecast_patterns_discovered_total",
			Help: "Patterns emitted by discovery, by factor type and outcome (new, validated, invalidated)",
		}, []string{"type", "outcome"}),
		PatternsValidated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dinecast_pattern_validations_total",
			Help: "Pattern re-test results, by result",
		}, []string{"result"}),
		PatternsPooled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dinecast_patterns_pooled_total",
			Help: "Restaurant patterns folded into pooled scopes",
		}, []string{"scope", "action"}),
		ProviderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dinecast_provider_failures_total",
			Help: "Failed context provider calls",
		}, []string{"provider"}),
		WeatherFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dinecast_weather_fallbacks_total",
			Help: "Days whose weather came from the seasonal model",
		}),
		JobErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dinecast_job_restaurant_errors_total",
			Help: "Restaurants that failed during the discovery job",
		}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dinecast_job_duration_seconds",
			Help:    "Discovery job duration",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		RestaurantDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dinecast_job_restaurant_duration_seconds",
			Help:    "Per-restaurant processing duration",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.PatternsDiscovered, m.PatternsValidated, m.PatternsPooled,
			m.ProviderFailures, m.WeatherFallbacks, m.JobErrors, m.JobDuration, m.RestaurantDuration)
	}
	return m
}
