package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/advisor/internal/adapters/config"
	"github.com/selivandex/advisor/pkg/logger"
	"github.com/selivandex/advisor/pkg/metrics"
	"github.com/selivandex/advisor/pkg/models"
)

// Store supplies candidate rows for the over-sampling pass
type Store interface {
	Candidates(ctx context.Context, symbol string, limit int) ([]models.Insight, error)
}

// WeightSource supplies ledger weights for reranking
type WeightSource interface {
	GetWeights(ctx context.Context, recordIDs []string) (map[string]models.LearningWeightRecord, error)
}

// Query is one retrieval request
type Query struct {
	Embedding  []float32
	Symbol     string
	Regime     models.Regime
	Preference float64
}

// Retriever runs the two-stage hybrid retrieval: over-sample by semantic
// similarity, then rerank the sample with the full five-signal score.
type Retriever struct {
	cfg     config.RetrievalConfig
	store   Store
	weights WeightSource
	buffer  metrics.Buffer
	now     func() time.Time
}

// NewRetriever creates new hybrid retriever. buffer may be nil when the
// metrics sink is disabled.
func NewRetriever(cfg config.RetrievalConfig, store Store, weights WeightSource, buffer metrics.Buffer) *Retriever {
	return &Retriever{
		cfg:     cfg,
		store:   store,
		weights: weights,
		buffer:  buffer,
		now:     time.Now,
	}
}

// Retrieve returns the top k evidence records for the query, reranked and
// carrying their full score breakdown. An empty store yields an empty slice,
// not an error.
func (r *Retriever) Retrieve(ctx context.Context, q Query, k int) ([]models.Evidence, error) {
	if k < 1 {
		return nil, fmt.Errorf("retrieval k must be at least 1, got %d", k)
	}

	started := r.now()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
	defer cancel()

	rows, degraded, err := r.fetchCandidates(ctx, q.Symbol)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		r.emit(q, k, nil, degraded, started)
		return []models.Evidence{}, nil
	}

	sampled := r.overSample(rows, q.Embedding, k)

	ids := make([]string, len(sampled))
	for i, s := range sampled {
		ids[i] = s.insight.ID
	}
	weights, err := r.weights.GetWeights(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load rerank weights: %w", err)
	}

	evidence := r.rerank(sampled, weights, q, k)
	r.emit(q, k, evidence, degraded, started)
	return evidence, nil
}

// fetchCandidates reads the scan window, retrying once after a transient
// failure. The degraded flag marks results produced on the retry path.
func (r *Retriever) fetchCandidates(ctx context.Context, symbol string) ([]models.Insight, bool, error) {
	rows, err := r.store.Candidates(ctx, symbol, r.cfg.MaxScanRows)
	if err == nil {
		return rows, false, nil
	}

	logger.Warn("Retrieval scan failed, retrying once",
		zap.String("symbol", symbol),
		zap.Error(err))

	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("retrieval scan failed: %w", err)
	case <-time.After(r.cfg.RetryBackoff):
	}

	rows, retryErr := r.store.Candidates(ctx, symbol, r.cfg.MaxScanRows)
	if retryErr != nil {
		return nil, false, fmt.Errorf("retrieval scan failed after retry: %w", retryErr)
	}
	return rows, true, nil
}

type scored struct {
	insight  models.Insight
	semantic float64
}

// overSample keeps the k * OverSampleFactor most semantically similar rows
func (r *Retriever) overSample(rows []models.Insight, embedding []float32, k int) []scored {
	sampled := make([]scored, 0, len(rows))
	for _, row := range rows {
		sampled = append(sampled, scored{
			insight:  row,
			semantic: CosineSimilarity(embedding, row.Embedding),
		})
	}

	sort.SliceStable(sampled, func(i, j int) bool {
		return sampled[i].semantic > sampled[j].semantic
	})

	m := k * r.cfg.OverSampleFactor
	if m < len(sampled) {
		sampled = sampled[:m]
	}
	return sampled
}

// rerank applies the five-signal weighted score and returns the top k
func (r *Retriever) rerank(sampled []scored, weights map[string]models.LearningWeightRecord, q Query, k int) []models.Evidence {
	now := r.now()

	evidence := make([]models.Evidence, 0, len(sampled))
	recency := make(map[string]float64, len(sampled))
	for _, s := range sampled {
		weight := models.DefaultSuccessWeight
		if rec, ok := weights[s.insight.ID]; ok {
			weight = rec.SuccessWeight
		}

		breakdown := models.ScoreBreakdown{
			Semantic:    s.semantic,
			Recency:     recencyScore(s.insight.CreatedAt, now, r.cfg.HalfLifeDays),
			Success:     successScore(weight),
			RegimeMatch: regimeScore(s.insight.Regime, q.Regime, r.cfg.RegimePartialCredit),
			Preference:  preferenceScore(&s.insight, q.Preference, r.cfg.DefaultPreference),
		}

		score := r.cfg.SemanticWeight*breakdown.Semantic +
			r.cfg.RecencyWeight*breakdown.Recency +
			r.cfg.SuccessWeight*breakdown.Success +
			r.cfg.RegimeWeight*breakdown.RegimeMatch +
			r.cfg.PreferenceWeight*breakdown.Preference

		recency[s.insight.ID] = breakdown.Recency
		evidence = append(evidence, models.Evidence{
			RecordID:    s.insight.ID,
			Kind:        s.insight.Kind,
			Text:        s.insight.Text,
			RerankScore: score,
			Breakdown:   breakdown,
		})
	}

	// ties go to the fresher record
	sort.SliceStable(evidence, func(i, j int) bool {
		if evidence[i].RerankScore != evidence[j].RerankScore {
			return evidence[i].RerankScore > evidence[j].RerankScore
		}
		return recency[evidence[i].RecordID] > recency[evidence[j].RecordID]
	})

	if k < len(evidence) {
		evidence = evidence[:k]
	}
	return evidence
}

func (r *Retriever) emit(q Query, k int, evidence []models.Evidence, degraded bool, started time.Time) {
	if r.buffer == nil {
		return
	}

	topScore := 0.0
	if len(evidence) > 0 {
		topScore = evidence[0].RerankScore
	}

	r.buffer.Add(&metrics.RetrievalMetric{
		Timestamp:     started,
		Subject:       q.Symbol,
		Requested:     k,
		Returned:      len(evidence),
		TopScore:      topScore,
		Degraded:      degraded,
		ExecutionTime: r.now().Sub(started),
	})
}
