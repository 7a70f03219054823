package retrieval

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/selivandex/advisor/internal/adapters/config"
	"github.com/selivandex/advisor/pkg/models"
)

type memStore struct {
	rows     []models.Insight
	failures int
	calls    int
}

func (s *memStore) Candidates(ctx context.Context, symbol string, limit int) ([]models.Insight, error) {
	s.calls++
	if s.failures > 0 {
		s.failures--
		return nil, fmt.Errorf("transient store error")
	}
	if limit < len(s.rows) {
		return s.rows[:limit], nil
	}
	return s.rows, nil
}

type memWeights struct {
	weights map[string]models.LearningWeightRecord
}

func (w *memWeights) GetWeights(ctx context.Context, ids []string) (map[string]models.LearningWeightRecord, error) {
	out := make(map[string]models.LearningWeightRecord)
	for _, id := range ids {
		if rec, ok := w.weights[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

func testConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		SemanticWeight:      0.4,
		RecencyWeight:       0.2,
		SuccessWeight:       0.2,
		RegimeWeight:        0.1,
		PreferenceWeight:    0.1,
		HalfLifeDays:        90,
		RegimePartialCredit: 0.3,
		OverSampleFactor:    3,
		MaxScanRows:         1000,
		QueryTimeout:        5 * time.Second,
		RetryBackoff:        time.Millisecond,
		DefaultPreference:   0.5,
	}
}

func insightAt(id string, embedding []float32, createdAt time.Time) models.Insight {
	return models.Insight{
		ID:        id,
		Kind:      models.KindSuccessPattern,
		Symbol:    "BTC/USDT",
		Text:      "breakouts above resistance followed through",
		Embedding: embedding,
		Regime:    models.Regime{Volatility: models.VolatilityNormal, Trend: models.TrendBull},
		CreatedAt: createdAt,
	}
}

func TestCosineSimilarity(t *testing.T) {
	t.Run("identical vectors score one", func(t *testing.T) {
		v := []float32{0.3, 0.5, 0.2}
		if got := CosineSimilarity(v, v); math.Abs(got-1.0) > 1e-9 {
			t.Errorf("expected 1.0, got %v", got)
		}
	})

	t.Run("opposite vectors score zero", func(t *testing.T) {
		a := []float32{1, 0}
		b := []float32{-1, 0}
		if got := CosineSimilarity(a, b); math.Abs(got) > 1e-9 {
			t.Errorf("expected 0, got %v", got)
		}
	})

	t.Run("orthogonal vectors score half", func(t *testing.T) {
		a := []float32{1, 0}
		b := []float32{0, 1}
		if got := CosineSimilarity(a, b); math.Abs(got-0.5) > 1e-9 {
			t.Errorf("expected 0.5, got %v", got)
		}
	})

	t.Run("length mismatch scores zero", func(t *testing.T) {
		if got := CosineSimilarity([]float32{1, 0}, []float32{1}); got != 0 {
			t.Errorf("expected 0, got %v", got)
		}
	})
}

func TestRetrieve(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	regime := models.Regime{Volatility: models.VolatilityNormal, Trend: models.TrendBull}

	t.Run("identical embedding ranks first with full semantic score", func(t *testing.T) {
		query := []float32{0.6, 0.8, 0}
		store := &memStore{rows: []models.Insight{
			insightAt("far", []float32{0, 0.1, 0.9}, now.Add(-24*time.Hour)),
			insightAt("exact", query, now.Add(-24*time.Hour)),
			insightAt("near", []float32{0.5, 0.8, 0.1}, now.Add(-24*time.Hour)),
		}}

		r := NewRetriever(testConfig(), store, &memWeights{}, nil)
		r.now = func() time.Time { return now }

		got, err := r.Retrieve(context.Background(), Query{
			Embedding: query, Symbol: "BTC/USDT", Regime: regime, Preference: 0.5,
		}, 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 results, got %d", len(got))
		}
		if got[0].RecordID != "exact" {
			t.Errorf("expected exact match first, got %s", got[0].RecordID)
		}
		if math.Abs(got[0].Breakdown.Semantic-1.0) > 1e-9 {
			t.Errorf("expected semantic 1.0, got %v", got[0].Breakdown.Semantic)
		}
	})

	t.Run("empty store yields empty result", func(t *testing.T) {
		r := NewRetriever(testConfig(), &memStore{}, &memWeights{}, nil)
		r.now = func() time.Time { return now }

		got, err := r.Retrieve(context.Background(), Query{
			Embedding: []float32{1, 0}, Regime: regime, Preference: 0.5,
		}, 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected empty result, got %d", len(got))
		}
	})

	t.Run("higher success weight outranks equal semantics", func(t *testing.T) {
		emb := []float32{1, 0}
		store := &memStore{rows: []models.Insight{
			insightAt("plain", emb, now.Add(-24*time.Hour)),
			insightAt("proven", emb, now.Add(-24*time.Hour)),
		}}
		weights := &memWeights{weights: map[string]models.LearningWeightRecord{
			"proven": {RecordID: "proven", SuccessWeight: 2.0, TimesReferenced: 10, CorrectCount: 10},
		}}

		r := NewRetriever(testConfig(), store, weights, nil)
		r.now = func() time.Time { return now }

		got, err := r.Retrieve(context.Background(), Query{
			Embedding: emb, Regime: regime, Preference: 0.5,
		}, 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got[0].RecordID != "proven" {
			t.Errorf("expected proven record first, got %s", got[0].RecordID)
		}
	})

	t.Run("ties break toward the fresher record", func(t *testing.T) {
		emb := []float32{1, 0}
		cfg := testConfig()
		cfg.RecencyWeight = 0
		cfg.SemanticWeight = 0.6

		store := &memStore{rows: []models.Insight{
			insightAt("old", emb, now.Add(-90*24*time.Hour)),
			insightAt("fresh", emb, now.Add(-time.Hour)),
		}}

		r := NewRetriever(cfg, store, &memWeights{}, nil)
		r.now = func() time.Time { return now }

		got, err := r.Retrieve(context.Background(), Query{
			Embedding: emb, Regime: regime, Preference: 0.5,
		}, 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got[0].RecordID != "fresh" {
			t.Errorf("expected fresh record first, got %s", got[0].RecordID)
		}
	})

	t.Run("retries once after transient store failure", func(t *testing.T) {
		emb := []float32{1, 0}
		store := &memStore{
			rows:     []models.Insight{insightAt("a", emb, now.Add(-time.Hour))},
			failures: 1,
		}

		r := NewRetriever(testConfig(), store, &memWeights{}, nil)
		r.now = func() time.Time { return now }

		got, err := r.Retrieve(context.Background(), Query{
			Embedding: emb, Regime: regime, Preference: 0.5,
		}, 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 result, got %d", len(got))
		}
		if store.calls != 2 {
			t.Errorf("expected 2 store calls, got %d", store.calls)
		}
	})

	t.Run("persistent store failure errors for the caller to degrade", func(t *testing.T) {
		store := &memStore{failures: 2}
		r := NewRetriever(testConfig(), store, &memWeights{}, nil)
		r.now = func() time.Time { return now }

		got, err := r.Retrieve(context.Background(), Query{
			Embedding: []float32{1, 0}, Regime: regime, Preference: 0.5,
		}, 1)
		if err == nil {
			t.Fatal("expected error after failed retry")
		}
		if len(got) != 0 {
			t.Errorf("expected no results alongside the error, got %d", len(got))
		}
	})

	t.Run("result capped at k", func(t *testing.T) {
		emb := []float32{1, 0}
		var rows []models.Insight
		for i := 0; i < 20; i++ {
			rows = append(rows, insightAt(fmt.Sprintf("i%d", i), emb, now.Add(-time.Duration(i)*time.Hour)))
		}

		r := NewRetriever(testConfig(), &memStore{rows: rows}, &memWeights{}, nil)
		r.now = func() time.Time { return now }

		got, err := r.Retrieve(context.Background(), Query{
			Embedding: emb, Regime: regime, Preference: 0.5,
		}, 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 5 {
			t.Errorf("expected 5 results, got %d", len(got))
		}
	})
}

func TestRegimeScore(t *testing.T) {
	current := models.Regime{Volatility: models.VolatilityNormal, Trend: models.TrendBull}

	t.Run("exact match", func(t *testing.T) {
		if got := regimeScore(current, current, 0.3); got != 1.0 {
			t.Errorf("expected 1.0, got %v", got)
		}
	})

	t.Run("partial match", func(t *testing.T) {
		partial := models.Regime{Volatility: models.VolatilityNormal, Trend: models.TrendBear}
		if got := regimeScore(partial, current, 0.3); got != 0.3 {
			t.Errorf("expected 0.3, got %v", got)
		}
	})

	t.Run("full mismatch still earns partial credit", func(t *testing.T) {
		other := models.Regime{Volatility: models.VolatilityExtreme, Trend: models.TrendBear}
		if got := regimeScore(other, current, 0.3); got != 0.3 {
			t.Errorf("expected 0.3, got %v", got)
		}
	})
}

func TestSuccessScore(t *testing.T) {
	cases := []struct {
		weight float64
		want   float64
	}{
		{1.0, 0.2},
		{5.0, 1.0},
		{0.1, 0.02},
		{2.5, 0.5},
	}

	for _, tc := range cases {
		if got := successScore(tc.weight); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("weight %v: expected %v, got %v", tc.weight, tc.want, got)
		}
	}
}
