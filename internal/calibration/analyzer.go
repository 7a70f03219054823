package calibration

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

// Factor bounds. A single bad run can never swing confidence by more than
// half in either direction.
const (
	MinAdjustmentFactor = 0.5
	MaxAdjustmentFactor = 1.5
)

// SampleSource supplies settled recommendations for analysis
type SampleSource interface {
	ProcessedSamples(ctx context.Context, since time.Time) ([]models.ConfidenceSample, error)
}

// Store persists calibration runs and serves the latest one
type Store interface {
	InsertRun(ctx context.Context, records []models.CalibrationRecord) error
	Latest(ctx context.Context) ([]models.CalibrationRecord, error)
}

// Lock is the advisory lock guarding single-writer runs
type Lock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Notifier receives drift alerts; nil disables them
type Notifier interface {
	NotifyCalibrationDrift(records []models.CalibrationRecord)
}

// Analyzer periodically compares predicted confidence against realized
// accuracy per band and publishes adjustment factors for the generator
type Analyzer struct {
	cfg      config.CalibrationConfig
	samples  SampleSource
	store    Store
	lock     Lock
	buffer   metrics.Buffer
	notifier Notifier
	now      func() time.Time
}

// NewAnalyzer creates new calibration analyzer
func NewAnalyzer(
	cfg config.CalibrationConfig,
	samples SampleSource,
	store Store,
	lock Lock,
	buffer metrics.Buffer,
	notifier Notifier,
) *Analyzer {
	return &Analyzer{
		cfg:      cfg,
		samples:  samples,
		store:    store,
		lock:     lock,
		buffer:   buffer,
		notifier: notifier,
		now:      time.Now,
	}
}

// Name implements worker.Worker
func (a *Analyzer) Name() string {
	return "calibration_analyzer"
}

// Run executes one calibration pass under the advisory lock
func (a *Analyzer) Run(ctx context.Context) error {
	acquired, err := a.lock.TryAcquire(ctx)
	if err != nil {
		return fmt.Errorf("calibration lock: %w", err)
	}
	if !acquired {
		logger.Debug("Calibration run skipped, lock held elsewhere")
		return nil
	}
	defer a.lock.Release(ctx)

	samples, err := a.samples.ProcessedSamples(ctx, time.Time{})
	if err != nil {
		return fmt.Errorf("failed to load calibration samples: %w", err)
	}

	prior, err := a.store.Latest(ctx)
	if err != nil {
		return fmt.Errorf("failed to load prior calibration: %w", err)
	}

	records := a.Compute(samples, prior)
	if err := a.store.InsertRun(ctx, records); err != nil {
		return fmt.Errorf("failed to persist calibration run: %w", err)
	}

	for i := range records {
		rec := &records[i]
		logger.Info("Calibration band computed",
			zap.String("band", rec.Band),
			zap.Float64("expected", rec.ExpectedAccuracy),
			zap.Float64("observed", rec.ObservedAccuracy),
			zap.Float64("factor", rec.AdjustmentFactor),
			zap.Int("samples", rec.SampleCount))

		if a.buffer != nil {
			a.buffer.Add(&metrics.CalibrationRunMetric{
				Timestamp:        rec.ComputedAt,
				Band:             rec.Band,
				ExpectedAccuracy: rec.ExpectedAccuracy,
				ObservedAccuracy: rec.ObservedAccuracy,
				AdjustmentFactor: rec.AdjustmentFactor,
				SampleCount:      rec.SampleCount,
				Retained:         rec.SampleCount < a.cfg.MinSampleCount,
			})
		}
	}

	if a.notifier != nil {
		a.notifier.NotifyCalibrationDrift(records)
	}

	return nil
}

// Compute partitions settled samples into the configured confidence bands and
// derives a new adjustment factor per band. MONITOR decisions carry no
// correctness verdict and never enter a denominator. Bands below the sample
// minimum keep their prior factor; a noisy handful of trades must not swing
// future confidence.
func (a *Analyzer) Compute(samples []models.ConfidenceSample, prior []models.CalibrationRecord) []models.CalibrationRecord {
	computedAt := a.now()
	bounds := a.cfg.BandBounds

	records := make([]models.CalibrationRecord, 0, len(bounds)-1)
	for i := 0; i < len(bounds)-1; i++ {
		rec := models.CalibrationRecord{
			Band:             fmt.Sprintf("%g-%g", bounds[i], bounds[i+1]),
			LowerBound:       bounds[i],
			UpperBound:       bounds[i+1],
			ExpectedAccuracy: (bounds[i] + bounds[i+1]) / 2,
			ComputedAt:       computedAt,
		}

		var total, correct int
		for _, s := range samples {
			if s.Correct == nil || !rec.Contains(s.Confidence) {
				continue
			}
			total++
			if *s.Correct {
				correct++
			}
		}
		rec.SampleCount = total

		if total < a.cfg.MinSampleCount {
			rec.AdjustmentFactor = priorFactor(prior, rec.Band)
			if total > 0 {
				rec.ObservedAccuracy = 100 * float64(correct) / float64(total)
				rec.CalibrationError = rec.ObservedAccuracy - rec.ExpectedAccuracy
			}
			records = append(records, rec)
			continue
		}

		rec.ObservedAccuracy = 100 * float64(correct) / float64(total)
		rec.CalibrationError = rec.ObservedAccuracy - rec.ExpectedAccuracy
		rec.AdjustmentFactor = clampFactor(1 + rec.CalibrationError/100)
		records = append(records, rec)
	}

	return records
}

// priorFactor looks up the band's factor from the previous run, defaulting
// to neutral when the band has never had enough data
func priorFactor(prior []models.CalibrationRecord, band string) float64 {
	for i := range prior {
		if prior[i].Band == band {
			return prior[i].AdjustmentFactor
		}
	}
	return 1.0
}

func clampFactor(f float64) float64 {
	if f < MinAdjustmentFactor {
		return MinAdjustmentFactor
	}
	if f > MaxAdjustmentFactor {
		return MaxAdjustmentFactor
	}
	return f
}
