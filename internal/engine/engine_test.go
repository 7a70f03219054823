package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/selivandex/advisor/pkg/models"
)

type fakeClassifier struct {
	regime models.Regime
	err    error
	calls  int
}

func (f *fakeClassifier) Classify(ctx context.Context, in models.MarketSnapshot) (*models.RegimeSnapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.RegimeSnapshot{Regime: f.regime}, nil
}

type fakeGenerator struct {
	lastRegime models.Regime
	calls      int
}

func (f *fakeGenerator) Generate(ctx context.Context, candidate models.Candidate, regime models.Regime) (*models.Recommendation, error) {
	f.calls++
	f.lastRegime = regime
	return &models.Recommendation{
		ID:          "rec1",
		CandidateID: candidate.CandidateID,
		Decision:    models.DecisionTake,
		Regime:      regime,
	}, nil
}

type fakeStats struct {
	since time.Time
}

func (f *fakeStats) Stats(ctx context.Context, since time.Time) (*models.LearningStats, error) {
	f.since = since
	return &models.LearningStats{CyclesRun: 3}, nil
}

func vol(f float64) *float64 { return &f }

func validCandidate() models.Candidate {
	return models.Candidate{
		CandidateID: "c1",
		Symbol:      "BTC/USDT",
		Embedding:   []float32{1, 0},
		Preference:  0.5,
	}
}

func marketSnapshot() models.MarketSnapshot {
	return models.MarketSnapshot{
		Timestamp:       time.Now(),
		VolatilityIndex: vol(20),
		Trend:           vol(0.7),
		RiskAppetite:    0.6,
	}
}

func TestGenerateRecommendation(t *testing.T) {
	bull := models.Regime{Volatility: models.VolatilityNormal, Trend: models.TrendBull}

	t.Run("classified regime flows into the generator", func(t *testing.T) {
		classifier := &fakeClassifier{regime: bull}
		generator := &fakeGenerator{}
		e := New(classifier, generator, nil, nil, nil)

		rec, err := e.GenerateRecommendation(context.Background(), validCandidate(), marketSnapshot())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.CandidateID != "c1" {
			t.Errorf("unexpected candidate id %s", rec.CandidateID)
		}
		if !generator.lastRegime.Equal(bull) {
			t.Errorf("expected regime %s passed through, got %s", bull, generator.lastRegime)
		}
	})

	t.Run("missing candidate id", func(t *testing.T) {
		e := New(&fakeClassifier{}, &fakeGenerator{}, nil, nil, nil)

		c := validCandidate()
		c.CandidateID = ""
		_, err := e.GenerateRecommendation(context.Background(), c, marketSnapshot())
		if !errors.Is(err, ErrMissingCandidateID) {
			t.Errorf("expected ErrMissingCandidateID, got %v", err)
		}
	})

	t.Run("missing embedding", func(t *testing.T) {
		e := New(&fakeClassifier{}, &fakeGenerator{}, nil, nil, nil)

		c := validCandidate()
		c.Embedding = nil
		_, err := e.GenerateRecommendation(context.Background(), c, marketSnapshot())
		if !errors.Is(err, ErrMissingEmbedding) {
			t.Errorf("expected ErrMissingEmbedding, got %v", err)
		}
	})

	t.Run("out of range preference", func(t *testing.T) {
		e := New(&fakeClassifier{}, &fakeGenerator{}, nil, nil, nil)

		c := validCandidate()
		c.Preference = 1.5
		_, err := e.GenerateRecommendation(context.Background(), c, marketSnapshot())
		if !errors.Is(err, ErrInvalidPreference) {
			t.Errorf("expected ErrInvalidPreference, got %v", err)
		}
	})

	t.Run("validation happens before classification", func(t *testing.T) {
		classifier := &fakeClassifier{}
		e := New(classifier, &fakeGenerator{}, nil, nil, nil)

		c := validCandidate()
		c.CandidateID = ""
		_, _ = e.GenerateRecommendation(context.Background(), c, marketSnapshot())
		if classifier.calls != 0 {
			t.Errorf("expected no classification on invalid input, got %d calls", classifier.calls)
		}
	})

	t.Run("classifier failure surfaces", func(t *testing.T) {
		classifier := &fakeClassifier{err: errors.New("no prior regime")}
		generator := &fakeGenerator{}
		e := New(classifier, generator, nil, nil, nil)

		_, err := e.GenerateRecommendation(context.Background(), validCandidate(), marketSnapshot())
		if err == nil {
			t.Fatal("expected error from classifier")
		}
		if generator.calls != 0 {
			t.Errorf("expected no generation after classifier failure, got %d calls", generator.calls)
		}
	})
}

func TestLearningStats(t *testing.T) {
	t.Run("window converts to since", func(t *testing.T) {
		stats := &fakeStats{}
		e := New(nil, nil, nil, nil, stats)
		now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		e.now = func() time.Time { return now }

		got, err := e.LearningStats(context.Background(), 24*time.Hour)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.CyclesRun != 3 {
			t.Errorf("unexpected stats %+v", got)
		}
		want := now.Add(-24 * time.Hour)
		if !stats.since.Equal(want) {
			t.Errorf("expected since %v, got %v", want, stats.since)
		}
	})

	t.Run("non-positive window rejected", func(t *testing.T) {
		e := New(nil, nil, nil, nil, &fakeStats{})
		if _, err := e.LearningStats(context.Background(), 0); err == nil {
			t.Fatal("expected error for zero window")
		}
	})
}
