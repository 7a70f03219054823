package learning

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/selivandex/advisor/pkg/logger"
	"github.com/selivandex/advisor/pkg/models"
)

// OutcomeSink attaches closed-trade outcomes to stored recommendations
type OutcomeSink interface {
	AttachOutcome(ctx context.Context, outcome models.TradeOutcome) (bool, error)
}

// ErrUnknownCandidate is returned when an outcome references a candidate the
// engine never produced a recommendation for
var ErrUnknownCandidate = errors.New("no open recommendation for candidate")

// Recorder accepts trade outcomes from the outcome feed. Attaching is the
// only thing that happens synchronously; all learning waits for the next
// cycle run.
type Recorder struct {
	sink OutcomeSink
}

// NewRecorder creates new outcome recorder
func NewRecorder(sink OutcomeSink) *Recorder {
	return &Recorder{sink: sink}
}

// RecordOutcome validates and attaches one closed-trade outcome
func (r *Recorder) RecordOutcome(ctx context.Context, outcome models.TradeOutcome) error {
	if outcome.CandidateID == "" {
		return fmt.Errorf("outcome missing candidate_id")
	}
	switch outcome.Result {
	case models.ResultWin, models.ResultLoss, models.ResultBreakEven, models.ResultNotTaken:
	default:
		return fmt.Errorf("unknown outcome result %q", outcome.Result)
	}
	if outcome.ClosedAt.IsZero() {
		return fmt.Errorf("outcome missing closed_at")
	}

	matched, err := r.sink.AttachOutcome(ctx, outcome)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	if !matched {
		return fmt.Errorf("%w: %s", ErrUnknownCandidate, outcome.CandidateID)
	}

	logger.Info("Outcome recorded",
		zap.String("candidate_id", outcome.CandidateID),
		zap.String("result", string(outcome.Result)),
		zap.String("pnl", outcome.RealizedPnL.String()))

	return nil
}
