package calibration

import (
	"math"
	"testing"
	"time"

	"github.com/selivandex/advisor/internal/adapters/config"
	"github.com/selivandex/advisor/pkg/models"
)

func testCfg() config.CalibrationConfig {
	return config.CalibrationConfig{
		Interval:       24 * time.Hour,
		BandBounds:     []float64{0, 50, 70, 85, 100},
		MinSampleCount: 20,
	}
}

func newAnalyzer(cfg config.CalibrationConfig) *Analyzer {
	a := NewAnalyzer(cfg, nil, nil, nil, nil, nil)
	a.now = func() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }
	return a
}

func boolPtr(b bool) *bool { return &b }

func sampleSet(confidence float64, total, correct int) []models.ConfidenceSample {
	samples := make([]models.ConfidenceSample, 0, total)
	for i := 0; i < total; i++ {
		samples = append(samples, models.ConfidenceSample{
			Confidence: confidence,
			Decision:   models.DecisionTake,
			Correct:    boolPtr(i < correct),
		})
	}
	return samples
}

func findBand(t *testing.T, records []models.CalibrationRecord, band string) *models.CalibrationRecord {
	t.Helper()
	for i := range records {
		if records[i].Band == band {
			return &records[i]
		}
	}
	t.Fatalf("band %s not found", band)
	return nil
}

func TestCompute(t *testing.T) {
	t.Run("worked example 70-85 band", func(t *testing.T) {
		// 40 samples at confidence 75, 28 correct: observed 70%,
		// expected 77.5%, factor 1 + (70-77.5)/100 = 0.925
		a := newAnalyzer(testCfg())
		records := a.Compute(sampleSet(75, 40, 28), nil)

		band := findBand(t, records, "70-85")
		if band.SampleCount != 40 {
			t.Errorf("expected 40 samples, got %d", band.SampleCount)
		}
		if math.Abs(band.ExpectedAccuracy-77.5) > 1e-9 {
			t.Errorf("expected accuracy 77.5, got %v", band.ExpectedAccuracy)
		}
		if math.Abs(band.ObservedAccuracy-70.0) > 1e-9 {
			t.Errorf("observed accuracy 70, got %v", band.ObservedAccuracy)
		}
		if math.Abs(band.AdjustmentFactor-0.925) > 1e-9 {
			t.Errorf("expected factor 0.925, got %v", band.AdjustmentFactor)
		}
	})

	t.Run("under-sampled band retains prior factor", func(t *testing.T) {
		a := newAnalyzer(testCfg())
		prior := []models.CalibrationRecord{
			{Band: "70-85", AdjustmentFactor: 0.925},
		}
		records := a.Compute(sampleSet(75, 5, 1), prior)

		band := findBand(t, records, "70-85")
		if band.AdjustmentFactor != 0.925 {
			t.Errorf("expected prior factor 0.925 retained, got %v", band.AdjustmentFactor)
		}
		if band.SampleCount != 5 {
			t.Errorf("expected 5 samples, got %d", band.SampleCount)
		}
	})

	t.Run("under-sampled band without prior defaults to neutral", func(t *testing.T) {
		a := newAnalyzer(testCfg())
		records := a.Compute(sampleSet(75, 5, 5), nil)

		band := findBand(t, records, "70-85")
		if band.AdjustmentFactor != 1.0 {
			t.Errorf("expected neutral factor, got %v", band.AdjustmentFactor)
		}
	})

	t.Run("factor clamps at bounds", func(t *testing.T) {
		cfg := testCfg()
		cfg.BandBounds = []float64{0, 100}
		cfg.MinSampleCount = 10
		a := newAnalyzer(cfg)

		// expected 50, observed 0: raw factor 0.5 exactly at the floor
		records := a.Compute(sampleSet(40, 30, 0), nil)
		band := findBand(t, records, "0-100")
		if band.AdjustmentFactor < MinAdjustmentFactor {
			t.Errorf("factor below floor: %v", band.AdjustmentFactor)
		}

		// expected 50, observed 100: factor 1.5 at the ceiling
		records = a.Compute(sampleSet(40, 30, 30), nil)
		band = findBand(t, records, "0-100")
		if band.AdjustmentFactor > MaxAdjustmentFactor {
			t.Errorf("factor above ceiling: %v", band.AdjustmentFactor)
		}
	})

	t.Run("monitor decisions are excluded", func(t *testing.T) {
		a := newAnalyzer(testCfg())
		samples := sampleSet(75, 25, 20)
		for i := 0; i < 50; i++ {
			samples = append(samples, models.ConfidenceSample{
				Confidence: 75,
				Decision:   models.DecisionMonitor,
				Correct:    nil,
			})
		}

		records := a.Compute(samples, nil)
		band := findBand(t, records, "70-85")
		if band.SampleCount != 25 {
			t.Errorf("expected 25 samples with MONITOR excluded, got %d", band.SampleCount)
		}
	})

	t.Run("top band includes confidence 100", func(t *testing.T) {
		a := newAnalyzer(testCfg())
		records := a.Compute(sampleSet(100, 25, 25), nil)

		band := findBand(t, records, "85-100")
		if band.SampleCount != 25 {
			t.Errorf("expected 25 samples in top band, got %d", band.SampleCount)
		}
	})

	t.Run("band boundary belongs to the upper band", func(t *testing.T) {
		a := newAnalyzer(testCfg())
		records := a.Compute(sampleSet(70, 25, 25), nil)

		if got := findBand(t, records, "70-85").SampleCount; got != 25 {
			t.Errorf("expected samples at 70 in the 70-85 band, got %d", got)
		}
		if got := findBand(t, records, "50-70").SampleCount; got != 0 {
			t.Errorf("expected no samples in the 50-70 band, got %d", got)
		}
	})

	t.Run("every configured band is emitted", func(t *testing.T) {
		a := newAnalyzer(testCfg())
		records := a.Compute(nil, nil)
		if len(records) != 4 {
			t.Fatalf("expected 4 bands, got %d", len(records))
		}
	})
}
