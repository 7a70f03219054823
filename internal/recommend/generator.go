package recommend

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/selivandex/advisor/internal/adapters/config"
	"github.com/selivandex/advisor/internal/retrieval"
	"github.com/selivandex/advisor/pkg/logger"
	"github.com/selivandex/advisor/pkg/metrics"
	"github.com/selivandex/advisor/pkg/models"
)

// EvidenceSource retrieves reranked evidence for a candidate
type EvidenceSource interface {
	Retrieve(ctx context.Context, q retrieval.Query, k int) ([]models.Evidence, error)
}

// CalibrationSource supplies the latest per-band adjustment factors.
// An empty result means no calibration run has completed yet; raw confidence
// passes through unchanged.
type CalibrationSource interface {
	Latest(ctx context.Context) ([]models.CalibrationRecord, error)
}

// Recorder persists generated recommendations
type Recorder interface {
	Insert(ctx context.Context, rec *models.Recommendation) error
}

// Generator turns a trade candidate plus current regime into a persisted
// recommendation backed by retrieved evidence
type Generator struct {
	cfg         config.RecommendConfig
	evidence    EvidenceSource
	calibration CalibrationSource
	recorder    Recorder
	buffer      metrics.Buffer
	now         func() time.Time
}

// NewGenerator creates new recommendation generator
func NewGenerator(
	cfg config.RecommendConfig,
	evidence EvidenceSource,
	calibration CalibrationSource,
	recorder Recorder,
	buffer metrics.Buffer,
) *Generator {
	return &Generator{
		cfg:         cfg,
		evidence:    evidence,
		calibration: calibration,
		recorder:    recorder,
		buffer:      buffer,
		now:         time.Now,
	}
}

// Generate produces and persists a recommendation for the candidate.
// With no evidence on file the verdict is MONITOR at zero confidence, which
// is a valid answer rather than an error. Retrieval failures that survive the
// retriever's retry degrade the same way instead of propagating.
func (g *Generator) Generate(ctx context.Context, candidate models.Candidate, regime models.Regime) (*models.Recommendation, error) {
	evidence, err := g.evidence.Retrieve(ctx, retrieval.Query{
		Embedding:  candidate.Embedding,
		Symbol:     candidate.Symbol,
		Regime:     regime,
		Preference: candidate.Preference,
	}, g.cfg.EvidenceK)
	degraded := err != nil
	if degraded {
		logger.Error("Evidence retrieval failed, degrading to MONITOR",
			zap.String("candidate_id", candidate.CandidateID),
			zap.Error(err))
		evidence = nil
	}

	rec := &models.Recommendation{
		ID:          uuid.NewString(),
		CandidateID: candidate.CandidateID,
		Symbol:      candidate.Symbol,
		Strategy:    candidate.Strategy,
		Evidence:    evidence,
		Regime:      regime,
		CreatedAt:   g.now(),
	}

	switch {
	case degraded:
		rec.Decision = models.DecisionMonitor
		rec.Confidence = 0
		rec.Reasoning = "Evidence retrieval unavailable; monitoring until the index recovers."
	case len(evidence) == 0:
		rec.Decision = models.DecisionMonitor
		rec.Confidence = 0
		rec.Reasoning = "No prior evidence on file for this candidate; monitoring."
	default:
		signal, meanScore := directionalSignal(evidence)
		rec.Decision = g.decide(signal)

		raw := 100 * math.Abs(signal) * meanScore
		rec.Confidence = g.calibrate(ctx, raw)
		rec.Reasoning = g.reasoning(rec.Decision, signal, evidence)
	}

	if err := g.recorder.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to persist recommendation %s: %w", rec.ID, err)
	}

	logger.Info("Generated recommendation",
		zap.String("candidate_id", candidate.CandidateID),
		zap.String("decision", string(rec.Decision)),
		zap.Float64("confidence", rec.Confidence),
		zap.Int("evidence", len(evidence)))

	if g.buffer != nil {
		g.buffer.Add(&metrics.RecommendationMetric{
			Timestamp:     rec.CreatedAt,
			CandidateID:   rec.CandidateID,
			Decision:      string(rec.Decision),
			Confidence:    rec.Confidence,
			EvidenceCount: len(evidence),
			Regime:        regime.String(),
		})
	}

	return rec, nil
}

// directionalSignal aggregates evidence into a signed signal in [-1,1]:
// the rerank-score-weighted mean of per-record directions. The second return
// is the plain mean rerank score.
func directionalSignal(evidence []models.Evidence) (float64, float64) {
	var weighted, totalScore float64
	for _, ev := range evidence {
		weighted += float64(ev.Kind.Direction()) * ev.RerankScore
		totalScore += ev.RerankScore
	}
	if totalScore == 0 {
		return 0, 0
	}
	return weighted / totalScore, totalScore / float64(len(evidence))
}

func (g *Generator) decide(signal float64) models.Decision {
	switch {
	case signal >= g.cfg.TakeThreshold:
		return models.DecisionTake
	case signal <= g.cfg.PassThreshold:
		return models.DecisionPass
	default:
		return models.DecisionMonitor
	}
}

// calibrate multiplies raw confidence by the adjustment factor of the band
// the raw value falls into, then clamps to [0,100]. Missing calibration data
// leaves the raw value as-is.
func (g *Generator) calibrate(ctx context.Context, raw float64) float64 {
	records, err := g.calibration.Latest(ctx)
	if err != nil {
		logger.Warn("Calibration lookup failed, using raw confidence", zap.Error(err))
		return clampConfidence(raw)
	}

	for i := range records {
		if records[i].Contains(raw) {
			return clampConfidence(raw * records[i].AdjustmentFactor)
		}
	}
	return clampConfidence(raw)
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// reasoning enumerates the strongest evidence lines behind the verdict
func (g *Generator) reasoning(decision models.Decision, signal float64, evidence []models.Evidence) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (signal %+.2f) based on %d evidence records:\n", decision, signal, len(evidence))

	n := g.cfg.TopEvidenceLines
	if n > len(evidence) {
		n = len(evidence)
	}
	for i := 0; i < n; i++ {
		ev := evidence[i]
		fmt.Fprintf(&b, "- [%s, score %.3f] %s\n", ev.Kind, ev.RerankScore, ev.Text)
	}
	return b.String()
}
