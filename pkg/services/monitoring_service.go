package services

import (
	"sort"
	"strings"
	"sync"
	"time"

	"dinecast-api/pkg/models"

	"github.com/gin-gonic/gin"
)

const (
	maxLogEntries   = 5000
	maxJobHistory   = 50
	maxRecentErrors = 10
)

// LogEntry は単一のリクエストログを表します。
type LogEntry struct {
	Timestamp    time.Time     `json:"timestamp"`
	Path         string        `json:"path"`
	Method       string        `json:"method"`
	StatusCode   int           `json:"status_code"`
	ResponseTime time.Duration `json:"response_time"`
}

// MonitoringService はAPIリクエストとジョブ実行の履歴を保持します。
type MonitoringService struct {
	logs []LogEntry
	jobs []models.JobReport
	mu   sync.RWMutex
	now  func() time.Time
}

// NewMonitoringService は新しいMonitoringServiceを生成します。
func NewMonitoringService() *MonitoringService {
	return &MonitoringService{
		logs: make([]LogEntry, 0),
		jobs: make([]models.JobReport, 0),
		now:  time.Now,
	}
}

// LogRequest はリクエストを記録します。古いものから破棄します。
func (s *MonitoringService) LogRequest(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogEntries {
		s.logs = s.logs[len(s.logs)-maxLogEntries:]
	}
}

// RecordJob ジョブ実行結果を記録
func (s *MonitoringService) RecordJob(report models.JobReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, report)
	if len(s.jobs) > maxJobHistory {
		s.jobs = s.jobs[len(s.jobs)-maxJobHistory:]
	}
}

// JobFilter ジョブ履歴の絞り込み。PeriodHours が0なら保持分すべて
type JobFilter struct {
	PeriodHours int
	FailedOnly  bool
	Limit       int
}

// JobSummary 期間内のジョブ実行の集計
type JobSummary struct {
	Runs        int `json:"runs"`
	Failed      int `json:"failed"`
	Cancelled   int `json:"cancelled"`
	Processed   int `json:"processed"`
	NewPatterns int `json:"new_patterns"`
	Contributed int `json:"contributed"`
}

// JobHistory 新しい順のジョブ履歴と期間内の集計
func (s *MonitoringService) JobHistory(f JobFilter) ([]models.JobReport, JobSummary) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var since time.Time
	if f.PeriodHours > 0 {
		since = s.now().UTC().Add(-time.Duration(f.PeriodHours) * time.Hour)
	}
	return s.jobsLocked(since, f.FailedOnly, f.Limit)
}

// jobsLocked 呼び出し側が読み取りロックを保持していること
func (s *MonitoringService) jobsLocked(since time.Time, failedOnly bool, limit int) ([]models.JobReport, JobSummary) {
	var sum JobSummary
	out := make([]models.JobReport, 0, len(s.jobs))
	for i := len(s.jobs) - 1; i >= 0; i-- {
		j := s.jobs[i]
		if !since.IsZero() && j.StartedAt.Before(since) {
			continue
		}
		sum.Runs++
		sum.Processed += j.Processed
		sum.NewPatterns += j.NewPatterns
		sum.Contributed += j.Contributed
		if j.Errors > 0 {
			sum.Failed++
		}
		if j.Cancelled {
			sum.Cancelled++
		}
		if failedOnly && j.Errors == 0 {
			continue
		}
		if limit > 0 && len(out) >= limit {
			continue
		}
		out = append(out, j)
	}
	return out, sum
}

// LoggingMiddleware はリクエスト情報を記録するGinミドルウェアです。
func (s *MonitoringService) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// 管理・監視系は除外
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if strings.HasPrefix(path, "/api/v1/admin") || strings.HasPrefix(path, "/api/v1/monitoring") || path == "/metrics" {
			return
		}

		s.LogRequest(LogEntry{
			Timestamp:    start,
			Path:         path,
			Method:       c.Request.Method,
			StatusCode:   c.Writer.Status(),
			ResponseTime: time.Since(start),
		})
	}
}

// HourlyCount 時間帯ごとのリクエスト数
type HourlyCount struct {
	Time     string `json:"time"`
	Requests int    `json:"requests"`
}

// EndpointLatency エンドポイントごとの平均応答時間
type EndpointLatency struct {
	Endpoint       string `json:"endpoint"`
	ResponseTimeMs int64  `json:"response_time_ms"`
}

// DashboardData はダッシュボードに表示するための集計済みデータです。
type DashboardData struct {
	RequestsOverTime []HourlyCount      `json:"requests_over_time"`
	Endpoints        map[string]int     `json:"endpoints"`
	StatusCodes      map[string]int     `json:"status_codes"`
	AvgResponseTimes []EndpointLatency  `json:"avg_response_times"`
	RecentErrors     []LogEntry         `json:"recent_errors"`
	RecentJobs       []models.JobReport `json:"recent_jobs"`
	Jobs             JobSummary         `json:"jobs"`
}

// GetDashboardData は指定された期間（時間）のログを集計します。
func (s *MonitoringService) GetDashboardData(periodHours int) DashboardData {
	if periodHours <= 0 {
		periodHours = 24
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now().UTC()
	since := now.Add(-time.Duration(periodHours) * time.Hour)

	filtered := make([]LogEntry, 0)
	for _, e := range s.logs {
		if e.Timestamp.After(since) {
			filtered = append(filtered, e)
		}
	}

	// 時間帯バケットを過去から現在の順に用意
	overTime := make([]HourlyCount, periodHours)
	index := make(map[string]int, periodHours)
	for i := 0; i < periodHours; i++ {
		t := now.Add(-time.Duration(periodHours-1-i) * time.Hour).Truncate(time.Hour)
		overTime[i] = HourlyCount{Time: t.Format("15:00")}
		index[t.Format(time.RFC3339)] = i
	}

	endpoints := make(map[string]int)
	statusCodes := map[string]int{"2xx": 0, "4xx": 0, "5xx": 0}
	latencySum := make(map[string]time.Duration)
	for _, e := range filtered {
		if i, ok := index[e.Timestamp.UTC().Truncate(time.Hour).Format(time.RFC3339)]; ok {
			overTime[i].Requests++
		}
		endpoints[e.Path]++
		latencySum[e.Path] += e.ResponseTime
		switch {
		case e.StatusCode >= 500:
			statusCodes["5xx"]++
		case e.StatusCode >= 400:
			statusCodes["4xx"]++
		case e.StatusCode >= 200 && e.StatusCode < 300:
			statusCodes["2xx"]++
		}
	}

	latencies := make([]EndpointLatency, 0, len(latencySum))
	for path, total := range latencySum {
		latencies = append(latencies, EndpointLatency{
			Endpoint:       path,
			ResponseTimeMs: total.Milliseconds() / int64(endpoints[path]),
		})
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i].Endpoint < latencies[j].Endpoint })

	recentErrors := make([]LogEntry, 0)
	for i := len(filtered) - 1; i >= 0 && len(recentErrors) < maxRecentErrors; i-- {
		if filtered[i].StatusCode >= 500 {
			recentErrors = append(recentErrors, filtered[i])
		}
	}

	jobs, jobSummary := s.jobsLocked(since, false, 0)

	return DashboardData{
		RequestsOverTime: overTime,
		Endpoints:        endpoints,
		StatusCodes:      statusCodes,
		AvgResponseTimes: latencies,
		RecentErrors:     recentErrors,
		RecentJobs:       jobs,
		Jobs:             jobSummary,
	}
}
