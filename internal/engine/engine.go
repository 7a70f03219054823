package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/selivandex/advisor/pkg/models"
)

// Input validation errors. Callers branch on these to distinguish bad input
// from infrastructure failures.
var (
	ErrMissingCandidateID = errors.New("candidate_id is required")
	ErrMissingEmbedding   = errors.New("candidate embedding is required")
	ErrInvalidPreference  = errors.New("preference must be in [0,1]")
)

// Classifier labels the current market conditions
type Classifier interface {
	Classify(ctx context.Context, in models.MarketSnapshot) (*models.RegimeSnapshot, error)
}

// Generator produces recommendations from candidates
type Generator interface {
	Generate(ctx context.Context, candidate models.Candidate, regime models.Regime) (*models.Recommendation, error)
}

// OutcomeRecorder accepts settled trade outcomes
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, outcome models.TradeOutcome) error
}

// CalibrationSource serves the latest calibration run
type CalibrationSource interface {
	Latest(ctx context.Context) ([]models.CalibrationRecord, error)
}

// StatsSource aggregates learning history over a window
type StatsSource interface {
	Stats(ctx context.Context, since time.Time) (*models.LearningStats, error)
}

// Engine is the public face of the advisor: candidates in, recommendations
// out, outcomes back in. Learning itself runs in the background workers; the
// engine only exposes their results.
type Engine struct {
	classifier  Classifier
	generator   Generator
	recorder    OutcomeRecorder
	calibration CalibrationSource
	stats       StatsSource
	now         func() time.Time
}

// New creates the engine facade
func New(
	classifier Classifier,
	generator Generator,
	recorder OutcomeRecorder,
	calibration CalibrationSource,
	stats StatsSource,
) *Engine {
	return &Engine{
		classifier:  classifier,
		generator:   generator,
		recorder:    recorder,
		calibration: calibration,
		stats:       stats,
		now:         time.Now,
	}
}

// GenerateRecommendation classifies current conditions and produces a
// persisted recommendation for the candidate
func (e *Engine) GenerateRecommendation(ctx context.Context, candidate models.Candidate, market models.MarketSnapshot) (*models.Recommendation, error) {
	if err := validateCandidate(&candidate); err != nil {
		return nil, err
	}

	snapshot, err := e.classifier.Classify(ctx, market)
	if err != nil {
		return nil, fmt.Errorf("regime classification failed: %w", err)
	}

	return e.generator.Generate(ctx, candidate, snapshot.Regime)
}

// RecordOutcome attaches a closed-trade outcome to its recommendation
func (e *Engine) RecordOutcome(ctx context.Context, outcome models.TradeOutcome) error {
	return e.recorder.RecordOutcome(ctx, outcome)
}

// CalibrationReport returns the latest per-band calibration records. Empty
// until the first analyzer run completes.
func (e *Engine) CalibrationReport(ctx context.Context) ([]models.CalibrationRecord, error) {
	return e.calibration.Latest(ctx)
}

// LearningStats summarizes learning activity over the trailing window
func (e *Engine) LearningStats(ctx context.Context, window time.Duration) (*models.LearningStats, error) {
	if window <= 0 {
		return nil, fmt.Errorf("stats window must be positive, got %v", window)
	}
	return e.stats.Stats(ctx, e.now().Add(-window))
}

func validateCandidate(c *models.Candidate) error {
	if c.CandidateID == "" {
		return ErrMissingCandidateID
	}
	if len(c.Embedding) == 0 {
		return ErrMissingEmbedding
	}
	if c.Preference < 0 || c.Preference > 1 {
		return ErrInvalidPreference
	}
	return nil
}
