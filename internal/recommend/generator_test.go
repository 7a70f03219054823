package recommend

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/selivandex/advisor/internal/adapters/config"
	"github.com/selivandex/advisor/internal/retrieval"
	"github.com/selivandex/advisor/pkg/models"
)

type fakeEvidence struct {
	evidence []models.Evidence
	err      error
}

func (f *fakeEvidence) Retrieve(ctx context.Context, q retrieval.Query, k int) ([]models.Evidence, error) {
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.evidence) {
		return f.evidence[:k], nil
	}
	return f.evidence, nil
}

type fakeCalibration struct {
	records []models.CalibrationRecord
}

func (f *fakeCalibration) Latest(ctx context.Context) ([]models.CalibrationRecord, error) {
	return f.records, nil
}

type fakeRecorder struct {
	inserted []*models.Recommendation
}

func (f *fakeRecorder) Insert(ctx context.Context, rec *models.Recommendation) error {
	f.inserted = append(f.inserted, rec)
	return nil
}

func testCfg() config.RecommendConfig {
	return config.RecommendConfig{
		TakeThreshold:    0.25,
		PassThreshold:    -0.25,
		TopEvidenceLines: 3,
		EvidenceK:        10,
	}
}

func ev(kind models.InsightKind, score float64, text string) models.Evidence {
	return models.Evidence{
		RecordID:    "r-" + text,
		Kind:        kind,
		Text:        text,
		RerankScore: score,
	}
}

func candidate() models.Candidate {
	return models.Candidate{
		CandidateID: "c1",
		Symbol:      "BTC/USDT",
		Strategy:    "breakout",
		Embedding:   []float32{1, 0},
		Preference:  0.5,
	}
}

func regime() models.Regime {
	return models.Regime{Volatility: models.VolatilityNormal, Trend: models.TrendBull}
}

func TestGenerate(t *testing.T) {
	t.Run("no evidence yields MONITOR at zero confidence", func(t *testing.T) {
		recorder := &fakeRecorder{}
		g := NewGenerator(testCfg(), &fakeEvidence{}, &fakeCalibration{}, recorder, nil)

		rec, err := g.Generate(context.Background(), candidate(), regime())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Decision != models.DecisionMonitor {
			t.Errorf("expected MONITOR, got %s", rec.Decision)
		}
		if rec.Confidence != 0 {
			t.Errorf("expected confidence 0, got %v", rec.Confidence)
		}
		if len(recorder.inserted) != 1 {
			t.Errorf("expected recommendation persisted, got %d inserts", len(recorder.inserted))
		}
	})

	t.Run("retrieval failure degrades to MONITOR at zero confidence", func(t *testing.T) {
		recorder := &fakeRecorder{}
		src := &fakeEvidence{err: errors.New("index unavailable")}
		g := NewGenerator(testCfg(), src, &fakeCalibration{}, recorder, nil)

		rec, err := g.Generate(context.Background(), candidate(), regime())
		if err != nil {
			t.Fatalf("expected degraded recommendation, got error: %v", err)
		}
		if rec.Decision != models.DecisionMonitor {
			t.Errorf("expected MONITOR, got %s", rec.Decision)
		}
		if rec.Confidence != 0 {
			t.Errorf("expected confidence 0, got %v", rec.Confidence)
		}
		if len(rec.Evidence) != 0 {
			t.Errorf("expected no evidence on degraded path, got %d", len(rec.Evidence))
		}
		if len(recorder.inserted) != 1 {
			t.Errorf("expected degraded recommendation persisted, got %d inserts", len(recorder.inserted))
		}
	})

	t.Run("uniform success evidence yields TAKE", func(t *testing.T) {
		src := &fakeEvidence{evidence: []models.Evidence{
			ev(models.KindSuccessPattern, 0.8, "a"),
			ev(models.KindSuccessPattern, 0.7, "b"),
		}}
		g := NewGenerator(testCfg(), src, &fakeCalibration{}, &fakeRecorder{}, nil)

		rec, err := g.Generate(context.Background(), candidate(), regime())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Decision != models.DecisionTake {
			t.Errorf("expected TAKE, got %s", rec.Decision)
		}
		// signal 1.0, mean score 0.75, raw confidence 75
		if math.Abs(rec.Confidence-75.0) > 1e-9 {
			t.Errorf("expected confidence 75, got %v", rec.Confidence)
		}
	})

	t.Run("uniform failure evidence yields PASS", func(t *testing.T) {
		src := &fakeEvidence{evidence: []models.Evidence{
			ev(models.KindFailurePattern, 0.9, "a"),
			ev(models.KindFailurePattern, 0.6, "b"),
		}}
		g := NewGenerator(testCfg(), src, &fakeCalibration{}, &fakeRecorder{}, nil)

		rec, err := g.Generate(context.Background(), candidate(), regime())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Decision != models.DecisionPass {
			t.Errorf("expected PASS, got %s", rec.Decision)
		}
	})

	t.Run("balanced evidence yields MONITOR", func(t *testing.T) {
		src := &fakeEvidence{evidence: []models.Evidence{
			ev(models.KindSuccessPattern, 0.7, "a"),
			ev(models.KindFailurePattern, 0.7, "b"),
		}}
		g := NewGenerator(testCfg(), src, &fakeCalibration{}, &fakeRecorder{}, nil)

		rec, err := g.Generate(context.Background(), candidate(), regime())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Decision != models.DecisionMonitor {
			t.Errorf("expected MONITOR, got %s", rec.Decision)
		}
	})

	t.Run("directionless evidence yields MONITOR", func(t *testing.T) {
		src := &fakeEvidence{evidence: []models.Evidence{
			ev(models.KindRegimeChange, 0.9, "a"),
			ev(models.KindPatternBreak, 0.8, "b"),
		}}
		g := NewGenerator(testCfg(), src, &fakeCalibration{}, &fakeRecorder{}, nil)

		rec, err := g.Generate(context.Background(), candidate(), regime())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Decision != models.DecisionMonitor {
			t.Errorf("expected MONITOR, got %s", rec.Decision)
		}
	})

	t.Run("calibration factor scales confidence", func(t *testing.T) {
		src := &fakeEvidence{evidence: []models.Evidence{
			ev(models.KindSuccessPattern, 0.8, "a"),
			ev(models.KindSuccessPattern, 0.7, "b"),
		}}
		cal := &fakeCalibration{records: []models.CalibrationRecord{
			{Band: "70-85", LowerBound: 70, UpperBound: 85, AdjustmentFactor: 0.9},
		}}
		g := NewGenerator(testCfg(), src, cal, &fakeRecorder{}, nil)

		rec, err := g.Generate(context.Background(), candidate(), regime())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// raw 75 falls in the 70-85 band, scaled by 0.9
		if math.Abs(rec.Confidence-67.5) > 1e-9 {
			t.Errorf("expected confidence 67.5, got %v", rec.Confidence)
		}
	})

	t.Run("calibrated confidence clamps at 100", func(t *testing.T) {
		src := &fakeEvidence{evidence: []models.Evidence{
			ev(models.KindSuccessPattern, 1.0, "a"),
		}}
		cal := &fakeCalibration{records: []models.CalibrationRecord{
			{Band: "85-100", LowerBound: 85, UpperBound: 100, AdjustmentFactor: 1.5},
		}}
		g := NewGenerator(testCfg(), src, cal, &fakeRecorder{}, nil)

		rec, err := g.Generate(context.Background(), candidate(), regime())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Confidence != 100 {
			t.Errorf("expected confidence clamped to 100, got %v", rec.Confidence)
		}
	})

	t.Run("reasoning lists top evidence", func(t *testing.T) {
		src := &fakeEvidence{evidence: []models.Evidence{
			ev(models.KindSuccessPattern, 0.9, "momentum held on volume spike"),
			ev(models.KindSuccessPattern, 0.8, "pullbacks to the mean recovered"),
			ev(models.KindSuccessPattern, 0.7, "third line"),
			ev(models.KindSuccessPattern, 0.6, "fourth line should be omitted"),
		}}
		g := NewGenerator(testCfg(), src, &fakeCalibration{}, &fakeRecorder{}, nil)

		rec, err := g.Generate(context.Background(), candidate(), regime())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(rec.Reasoning, "momentum held on volume spike") {
			t.Errorf("reasoning missing top evidence: %q", rec.Reasoning)
		}
		if strings.Contains(rec.Reasoning, "fourth line should be omitted") {
			t.Errorf("reasoning includes evidence beyond the top lines: %q", rec.Reasoning)
		}
	})
}
