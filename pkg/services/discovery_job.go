package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"dinecast-api/pkg/models"
	"dinecast-api/pkg/repository"

	"github.com/rs/zerolog/log"
)

// JobRecorder ジョブ結果の記録先
type JobRecorder interface {
	RecordJob(report models.JobReport)
}

// DiscoveryJob 全アクティブ店舗に対して発見・検証・グローバル学習を順に実行する
type DiscoveryJob struct {
	restaurants  repository.RestaurantRepository
	discovery    *DiscoveryService
	validator    *ValidatorService
	learning     *GlobalLearningService
	metrics      *Metrics
	lookbackDays int
	recorder     JobRecorder
	now          func() time.Time

	running atomic.Bool
	mu      sync.RWMutex
	last    *models.JobReport
}

// NewDiscoveryJob 新しいジョブ
func NewDiscoveryJob(restaurants repository.RestaurantRepository, discovery *DiscoveryService, validator *ValidatorService,
	learning *GlobalLearningService, metrics *Metrics, lookbackDays int) *DiscoveryJob {
	if lookbackDays <= 0 {
		lookbackDays = 90
	}
	return &DiscoveryJob{
		restaurants:  restaurants,
		discovery:    discovery,
		validator:    validator,
		learning:     learning,
		metrics:      metrics,
		lookbackDays: lookbackDays,
		now:          time.Now,
	}
}

// WithRecorder 実行結果の記録先を設定
func (j *DiscoveryJob) WithRecorder(r JobRecorder) *DiscoveryJob {
	j.recorder = r
	return j
}

// LastReport 直近の実行結果（未実行ならnil）
func (j *DiscoveryJob) LastReport() *models.JobReport {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.last == nil {
		return nil
	}
	r := *j.last
	return &r
}

// Running 実行中かどうか
func (j *DiscoveryJob) Running() bool {
	return j.running.Load()
}

// Run 1回分のバッチを実行する
// 店舗ごとの失敗はエラー数に加算して続行し、キャンセルは店舗の間で確認する
func (j *DiscoveryJob) Run(ctx context.Context) (*models.JobReport, error) {
	if !j.running.CompareAndSwap(false, true) {
		return nil, models.ErrJobRunning
	}
	defer j.running.Store(false)

	report := &models.JobReport{StartedAt: j.now()}
	restaurants, err := j.restaurants.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	log.Info().Int("restaurants", len(restaurants)).Msg("🚀 パターン発見ジョブを開始します")

	for _, r := range restaurants {
		if ctx.Err() != nil {
			report.Cancelled = true
			log.Warn().Int("processed", report.Processed).Msg("⏹️ ジョブがキャンセルされました")
			break
		}
		if err := j.processRestaurant(ctx, r, report); err != nil {
			report.Errors++
			if j.metrics != nil {
				j.metrics.JobErrors.Inc()
			}
			log.Error().Err(err).Str("restaurant_id", r.ID).Msg("❌ 店舗の処理に失敗しました（続行します）")
			continue
		}
		report.Processed++
	}

	report.Duration = time.Since(report.StartedAt)
	if j.metrics != nil {
		j.metrics.JobDuration.Observe(report.Duration.Seconds())
	}
	j.mu.Lock()
	j.last = report
	j.mu.Unlock()
	if j.recorder != nil {
		j.recorder.RecordJob(*report)
	}

	log.Info().Int("processed", report.Processed).Int("errors", report.Errors).
		Int("new_patterns", report.NewPatterns).Dur("duration", report.Duration).
		Msg("✅ パターン発見ジョブが完了しました")
	return report, nil
}

func (j *DiscoveryJob) processRestaurant(ctx context.Context, r *models.Restaurant, report *models.JobReport) error {
	start := time.Now()
	defer func() {
		if j.metrics != nil {
			j.metrics.RestaurantDuration.Observe(time.Since(start).Seconds())
		}
	}()

	end := j.now()
	res, err := j.discovery.Discover(ctx, r.ID, end.AddDate(0, 0, -j.lookbackDays), end)
	if err != nil {
		return err
	}
	report.NewPatterns += res.NewCount

	if j.validator != nil {
		vr, err := j.validator.ValidatePatterns(ctx, r.ID)
		if err != nil {
			return err
		}
		report.Validated += vr.Validated
		report.Invalidated += vr.Invalidated
	}

	if j.learning != nil {
		cr, err := j.learning.Contribute(ctx, r.ID)
		if err != nil {
			return err
		}
		report.Contributed += cr.Merged + cr.Created
	}
	return nil
}

// Start interval ごとにジョブを実行する。ctx がキャンセルされるまでブロックする
func (j *DiscoveryJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Info().Dur("interval", interval).Msg("⏱️ 定期パターン発見ジョブを起動しました")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Run(ctx); err != nil {
				log.Error().Err(err).Msg("❌ 定期ジョブの実行に失敗しました")
			}
		}
	}
}
