package learning

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/advisor/internal/adapters/config"
	"github.com/selivandex/advisor/pkg/logger"
	"github.com/selivandex/advisor/pkg/metrics"
	"github.com/selivandex/advisor/pkg/models"
)

// RecommendationSource serves settled recommendations and accepts their
// processed stamps
type RecommendationSource interface {
	UnprocessedWithOutcome(ctx context.Context, limit int) ([]models.Recommendation, error)
	MarkProcessed(ctx context.Context, id string, correct *bool) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Ledger applies weight updates for referenced evidence records
type Ledger interface {
	Apply(ctx context.Context, recordID string, correct bool) error
	AverageAccuracy(ctx context.Context, since time.Time) (float64, int, error)
	DeleteStale(ctx context.Context) (int64, error)
}

// InsightStore appends extracted insights
type InsightStore interface {
	Insert(ctx context.Context, ins *models.Insight) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Embedder vectorizes extracted insight text
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// ReportStore persists per-run cycle reports and the batch cursor
type ReportStore interface {
	InsertReport(ctx context.Context, report *models.CycleReport) error
	AdvanceCursor(ctx context.Context, recommendationID string) error
}

// Lock is the advisory lock guarding single-writer runs
type Lock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Notifier receives finished cycle reports; nil disables notifications
type Notifier interface {
	NotifyCycleReport(report *models.CycleReport)
}

// Cycle is the periodic learning worker. Each run drains one batch of
// settled recommendations: judges them, adjusts evidence weights, extracts
// insights from large moves, and stamps every item processed.
type Cycle struct {
	cfg      config.LearningConfig
	recs     RecommendationSource
	ledger   Ledger
	insights InsightStore
	embedder Embedder
	reports  ReportStore
	lock     Lock
	buffer   metrics.Buffer
	notifier Notifier
	now      func() time.Time
}

// NewCycle creates new learning cycle worker
func NewCycle(
	cfg config.LearningConfig,
	recs RecommendationSource,
	ledger Ledger,
	insights InsightStore,
	embedder Embedder,
	reports ReportStore,
	lock Lock,
	buffer metrics.Buffer,
	notifier Notifier,
) *Cycle {
	return &Cycle{
		cfg:      cfg,
		recs:     recs,
		ledger:   ledger,
		insights: insights,
		embedder: embedder,
		reports:  reports,
		lock:     lock,
		buffer:   buffer,
		notifier: notifier,
		now:      time.Now,
	}
}

// Name implements worker.Worker
func (c *Cycle) Name() string {
	return "learning_cycle"
}

// Run executes one learning cycle under the advisory lock. A run that finds
// the lock held elsewhere exits without error; the next tick retries.
func (c *Cycle) Run(ctx context.Context) error {
	acquired, err := c.lock.TryAcquire(ctx)
	if err != nil {
		return fmt.Errorf("learning lock: %w", err)
	}
	if !acquired {
		logger.Debug("Learning cycle skipped, lock held elsewhere")
		return nil
	}
	defer c.lock.Release(ctx)

	started := c.now()

	accuracyBefore, _, err := c.ledger.AverageAccuracy(ctx, time.Time{})
	if err != nil {
		return fmt.Errorf("failed to read pre-cycle accuracy: %w", err)
	}

	batch, err := c.recs.UnprocessedWithOutcome(ctx, c.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to load cycle batch: %w", err)
	}

	report := &models.CycleReport{
		StartedAt:      started,
		AccuracyBefore: accuracyBefore,
	}

	var lastStamped string
	for i := range batch {
		result := c.processItem(ctx, &batch[i], report)
		switch result.Status {
		case models.ItemProcessed:
			report.Processed++
			lastStamped = result.RecommendationID
		case models.ItemSkipped:
			report.Skipped++
			lastStamped = result.RecommendationID
		case models.ItemFailed:
			report.Failed++
			logger.Error("Cycle item failed",
				zap.String("recommendation_id", result.RecommendationID),
				zap.Error(result.Err))
		}
	}

	if lastStamped != "" {
		if err := c.reports.AdvanceCursor(ctx, lastStamped); err != nil {
			logger.Warn("Cursor advance failed",
				zap.String("recommendation_id", lastStamped),
				zap.Error(err))
		}
	}

	accuracyAfter, _, err := c.ledger.AverageAccuracy(ctx, time.Time{})
	if err != nil {
		return fmt.Errorf("failed to read post-cycle accuracy: %w", err)
	}
	report.AccuracyAfter = accuracyAfter
	report.Duration = c.now().Sub(started)

	c.cleanup(ctx)

	if err := c.reports.InsertReport(ctx, report); err != nil {
		return fmt.Errorf("failed to persist cycle report: %w", err)
	}

	logger.Info("Learning cycle finished",
		zap.Int("processed", report.Processed),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int("weights_updated", report.WeightsUpdated),
		zap.Int("insights_extracted", report.InsightsExtracted),
		zap.Duration("duration", report.Duration))

	if c.buffer != nil {
		c.buffer.Add(&metrics.LearningCycleMetric{
			Timestamp:         started,
			Processed:         report.Processed,
			Skipped:           report.Skipped,
			Failed:            report.Failed,
			WeightsUpdated:    report.WeightsUpdated,
			InsightsExtracted: report.InsightsExtracted,
			AccuracyBefore:    report.AccuracyBefore,
			AccuracyAfter:     report.AccuracyAfter,
			DurationMs:        report.Duration.Milliseconds(),
		})
	}

	if c.notifier != nil {
		c.notifier.NotifyCycleReport(report)
	}

	return nil
}

// processItem handles one settled recommendation. The processed stamp goes
// last: a crash mid-item leaves the stamp unset and the item is picked up
// again by the next run, which the advisory lock keeps serial.
func (c *Cycle) processItem(ctx context.Context, rec *models.Recommendation, report *models.CycleReport) models.ItemResult {
	correct := judgeCorrect(rec.Decision, rec.Outcome)

	if correct != nil {
		for _, ev := range rec.Evidence {
			if err := c.ledger.Apply(ctx, ev.RecordID, *correct); err != nil {
				return models.ItemResult{
					RecommendationID: rec.ID,
					Status:           models.ItemFailed,
					Err:              err,
				}
			}
			report.WeightsUpdated++
		}

		if c.shouldExtract(rec) {
			if err := c.extractInsight(ctx, rec); err != nil {
				logger.Warn("Insight extraction failed",
					zap.String("recommendation_id", rec.ID),
					zap.Error(err))
			} else {
				report.InsightsExtracted++
			}
		}
	}

	if err := c.recs.MarkProcessed(ctx, rec.ID, correct); err != nil {
		return models.ItemResult{
			RecommendationID: rec.ID,
			Status:           models.ItemFailed,
			Err:              err,
		}
	}

	status := models.ItemProcessed
	if correct == nil {
		status = models.ItemSkipped
	}
	return models.ItemResult{RecommendationID: rec.ID, Status: status}
}

// judgeCorrect compares a decision against its realized outcome. TAKE is
// right when the trade made money, PASS when it would not have. MONITOR
// takes no position and gets no verdict.
func judgeCorrect(decision models.Decision, outcome *models.Outcome) *bool {
	if outcome == nil {
		return nil
	}

	profitable := outcome.RealizedPnL.IsPositive()

	var correct bool
	switch decision {
	case models.DecisionTake:
		correct = profitable
	case models.DecisionPass:
		correct = !profitable
	default:
		return nil
	}
	return &correct
}

// shouldExtract limits insight extraction to moves large enough to teach
// something
func (c *Cycle) shouldExtract(rec *models.Recommendation) bool {
	threshold := models.NewDecimal(c.cfg.InsightPnLThreshold)
	return rec.Outcome.RealizedPnL.Abs().GreaterThanOrEqual(threshold)
}

// extractInsight turns a large settled move into a stored lesson
func (c *Cycle) extractInsight(ctx context.Context, rec *models.Recommendation) error {
	kind := models.KindFailurePattern
	if rec.Outcome.RealizedPnL.IsPositive() {
		kind = models.KindSuccessPattern
	}

	text := fmt.Sprintf(
		"%s on %s (%s) closed %s with pnl %s in %s regime at confidence %.0f",
		rec.Decision,
		rec.Symbol,
		rec.Strategy,
		rec.Outcome.Result,
		rec.Outcome.RealizedPnL.StringFixed(2),
		rec.Regime,
		rec.Confidence,
	)

	embedding, err := c.embedder.Generate(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed insight text: %w", err)
	}

	ins := &models.Insight{
		Kind:      kind,
		Symbol:    rec.Symbol,
		Strategy:  rec.Strategy,
		Text:      text,
		Embedding: embedding,
		Meta:      models.NewOutcomeMeta(kind, rec.Decision, rec.Outcome.Result, rec.Outcome.RealizedPnL),
		Regime:    rec.Regime,
	}

	if err := c.insights.Insert(ctx, ins); err != nil {
		return fmt.Errorf("failed to store insight: %w", err)
	}

	logger.Info("Insight extracted",
		zap.String("kind", string(kind)),
		zap.String("symbol", rec.Symbol),
		zap.String("insight_id", ins.ID))

	return nil
}

// cleanup enforces the retention window. Failures here are logged, never
// fatal to the cycle.
func (c *Cycle) cleanup(ctx context.Context) {
	cutoff := c.now().AddDate(0, 0, -c.cfg.RetentionDays)

	if n, err := c.insights.DeleteOlderThan(ctx, cutoff); err != nil {
		logger.Warn("Insight retention cleanup failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("Insights expired", zap.Int64("count", n))
	}

	if n, err := c.recs.DeleteOlderThan(ctx, cutoff); err != nil {
		logger.Warn("Recommendation retention cleanup failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("Recommendations expired", zap.Int64("count", n))
	}

	if n, err := c.ledger.DeleteStale(ctx); err != nil {
		logger.Warn("Ledger cleanup failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("Orphaned weights removed", zap.Int64("count", n))
	}
}
