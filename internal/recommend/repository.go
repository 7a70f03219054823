package recommend

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/selivandex/advisor/pkg/models"
)

// Repository persists recommendations and their attached outcomes
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new recommendation repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Insert stores a freshly generated recommendation. Evidence is stored as a
// value copy; later weight updates never alter it.
func (r *Repository) Insert(ctx context.Context, rec *models.Recommendation) error {
	evidence, err := json.Marshal(rec.Evidence)
	if err != nil {
		return fmt.Errorf("failed to marshal evidence: %w", err)
	}

	query := `
		INSERT INTO recommendations (
			id, candidate_id, symbol, strategy, decision, confidence,
			reasoning, evidence, volatility_regime, trend_regime, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(
		ctx, query,
		rec.ID,
		rec.CandidateID,
		rec.Symbol,
		rec.Strategy,
		rec.Decision,
		rec.Confidence,
		rec.Reasoning,
		evidence,
		rec.Regime.Volatility,
		rec.Regime.Trend,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert recommendation %s: %w", rec.ID, err)
	}

	return nil
}

// AttachOutcome records a closed trade against the most recent recommendation
// for its candidate. Returns false when no open recommendation matches, which
// callers treat as an unknown candidate.
func (r *Repository) AttachOutcome(ctx context.Context, outcome models.TradeOutcome) (bool, error) {
	query := `
		UPDATE recommendations SET
			result = $2,
			realized_pnl = $3,
			closed_at = $4
		WHERE id = (
			SELECT id FROM recommendations
			WHERE candidate_id = $1 AND result IS NULL
			ORDER BY created_at DESC
			LIMIT 1
		)
	`

	res, err := r.db.ExecContext(ctx, query,
		outcome.CandidateID,
		outcome.Result,
		outcome.RealizedPnL,
		outcome.ClosedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to attach outcome for candidate %s: %w", outcome.CandidateID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// UnprocessedWithOutcome returns recommendations whose trades have closed but
// which the learning cycle has not consumed yet, oldest close first
func (r *Repository) UnprocessedWithOutcome(ctx context.Context, limit int) ([]models.Recommendation, error) {
	query := `
		SELECT id, candidate_id, symbol, strategy, decision, confidence,
		       reasoning, evidence, volatility_regime, trend_regime, created_at,
		       result, realized_pnl, closed_at
		FROM recommendations
		WHERE result IS NOT NULL AND processed_at IS NULL
		ORDER BY closed_at ASC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unprocessed recommendations: %w", err)
	}
	defer rows.Close()

	var recs []models.Recommendation
	for rows.Next() {
		var rec models.Recommendation
		var evidence []byte
		var outcome models.Outcome

		err := rows.Scan(
			&rec.ID,
			&rec.CandidateID,
			&rec.Symbol,
			&rec.Strategy,
			&rec.Decision,
			&rec.Confidence,
			&rec.Reasoning,
			&evidence,
			&rec.Regime.Volatility,
			&rec.Regime.Trend,
			&rec.CreatedAt,
			&outcome.Result,
			&outcome.RealizedPnL,
			&outcome.ClosedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}

		if err := json.Unmarshal(evidence, &rec.Evidence); err != nil {
			return nil, fmt.Errorf("recommendation %s: %w", rec.ID, err)
		}
		rec.Outcome = &outcome

		recs = append(recs, rec)
	}

	return recs, rows.Err()
}

// MarkProcessed stamps a recommendation as consumed by the learning cycle.
// correct stays nil for MONITOR decisions.
func (r *Repository) MarkProcessed(ctx context.Context, id string, correct *bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recommendations SET correct = $2, processed_at = NOW()
		WHERE id = $1 AND processed_at IS NULL
	`, id, correct)
	if err != nil {
		return fmt.Errorf("failed to mark recommendation %s processed: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("recommendation %s already processed", id)
	}
	return nil
}

// ProcessedSamples returns settled recommendations reduced to calibration
// input, restricted to those processed since the given time
func (r *Repository) ProcessedSamples(ctx context.Context, since time.Time) ([]models.ConfidenceSample, error) {
	query := `
		SELECT confidence, decision, correct
		FROM recommendations
		WHERE processed_at IS NOT NULL AND processed_at >= $1
	`

	var samples []models.ConfidenceSample
	if err := r.db.SelectContext(ctx, &samples, query, since); err != nil {
		return nil, fmt.Errorf("failed to query calibration samples: %w", err)
	}
	return samples, nil
}

// CountProcessedSince returns how many recommendations the learning cycle
// consumed in the window
func (r *Repository) CountProcessedSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM recommendations
		WHERE processed_at IS NOT NULL AND processed_at >= $1
	`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count processed recommendations: %w", err)
	}
	return count, nil
}

// Get returns one recommendation by id, outcome included when present
func (r *Repository) Get(ctx context.Context, id string) (*models.Recommendation, error) {
	query := `
		SELECT id, candidate_id, symbol, strategy, decision, confidence,
		       reasoning, evidence, volatility_regime, trend_regime, created_at,
		       result, realized_pnl, correct, closed_at, processed_at
		FROM recommendations
		WHERE id = $1
	`

	var rec models.Recommendation
	var evidence []byte
	var result sql.NullString
	var pnl sql.NullString
	var correct sql.NullBool
	var closedAt, processedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&rec.CandidateID,
		&rec.Symbol,
		&rec.Strategy,
		&rec.Decision,
		&rec.Confidence,
		&rec.Reasoning,
		&evidence,
		&rec.Regime.Volatility,
		&rec.Regime.Trend,
		&rec.CreatedAt,
		&result,
		&pnl,
		&correct,
		&closedAt,
		&processedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendation %s: %w", id, err)
	}

	if err := json.Unmarshal(evidence, &rec.Evidence); err != nil {
		return nil, fmt.Errorf("recommendation %s: %w", rec.ID, err)
	}

	if result.Valid {
		outcome := &models.Outcome{
			Result:   models.OutcomeResult(result.String),
			ClosedAt: closedAt.Time,
		}
		if pnl.Valid {
			parsed, err := decimal.NewFromString(pnl.String)
			if err != nil {
				return nil, fmt.Errorf("recommendation %s: invalid pnl: %w", rec.ID, err)
			}
			outcome.RealizedPnL = parsed
		}
		if correct.Valid {
			outcome.Correct = &correct.Bool
		}
		if processedAt.Valid {
			outcome.ProcessedAt = &processedAt.Time
		}
		rec.Outcome = outcome
	}

	return &rec, nil
}

// DeleteOlderThan removes processed recommendations past the retention window
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM recommendations
		WHERE processed_at IS NOT NULL AND processed_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old recommendations: %w", err)
	}
	return res.RowsAffected()
}
