package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/selivandex/advisor/pkg/models"
)

// Repository maintains per-record success weights and their usage counters.
// Apply is the only mutation path and runs as a single upsert so that a
// crashed cycle never leaves a half-updated row.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new ledger repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Apply adjusts the weight for one evidence record after a settled outcome.
// Correct predictions step the weight up, incorrect ones step it down, both
// clamped to [0.1, 5.0]. All three counters move in the same statement, which
// keeps correct_count + incorrect_count == times_referenced.
func (r *Repository) Apply(ctx context.Context, recordID string, correct bool) error {
	step := models.WeightStep
	correctInc, incorrectInc := 1, 0
	if !correct {
		step = -models.WeightStep
		correctInc, incorrectInc = 0, 1
	}

	query := `
		INSERT INTO learning_weights (
			record_id, success_weight, times_referenced, correct_count, incorrect_count, updated_at
		) VALUES ($1, LEAST($4, GREATEST($3, $5 + $2)), 1, $6, $7, NOW())
		ON CONFLICT (record_id) DO UPDATE SET
			success_weight   = LEAST($4, GREATEST($3, learning_weights.success_weight + $2)),
			times_referenced = learning_weights.times_referenced + 1,
			correct_count    = learning_weights.correct_count + $6,
			incorrect_count  = learning_weights.incorrect_count + $7,
			updated_at       = NOW()
	`

	_, err := r.db.ExecContext(
		ctx, query,
		recordID,
		step,
		models.MinSuccessWeight,
		models.MaxSuccessWeight,
		models.DefaultSuccessWeight,
		correctInc,
		incorrectInc,
	)
	if err != nil {
		return fmt.Errorf("failed to apply weight update for record %s: %w", recordID, err)
	}

	return nil
}

// GetWeights returns ledger rows for the given record ids. Records with no
// row yet are simply absent; callers fall back to the default weight.
func (r *Repository) GetWeights(ctx context.Context, recordIDs []string) (map[string]models.LearningWeightRecord, error) {
	weights := make(map[string]models.LearningWeightRecord, len(recordIDs))
	if len(recordIDs) == 0 {
		return weights, nil
	}

	query := `
		SELECT record_id, success_weight, times_referenced, correct_count, incorrect_count, updated_at
		FROM learning_weights
		WHERE record_id = ANY($1)
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(recordIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query learning weights: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec models.LearningWeightRecord
		if err := rows.Scan(
			&rec.RecordID,
			&rec.SuccessWeight,
			&rec.TimesReferenced,
			&rec.CorrectCount,
			&rec.IncorrectCount,
			&rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan learning weight: %w", err)
		}
		weights[rec.RecordID] = rec
	}

	return weights, rows.Err()
}

// AverageAccuracy returns the mean per-record accuracy across ledger rows
// updated since the given time, plus the number of rows considered
func (r *Repository) AverageAccuracy(ctx context.Context, since time.Time) (float64, int, error) {
	query := `
		SELECT
			COALESCE(AVG(correct_count::float8 / times_referenced), 0),
			COUNT(*)
		FROM learning_weights
		WHERE updated_at >= $1 AND times_referenced > 0
	`

	var avg float64
	var count int
	if err := r.db.QueryRowContext(ctx, query, since).Scan(&avg, &count); err != nil {
		return 0, 0, fmt.Errorf("failed to compute average accuracy: %w", err)
	}
	return avg, count, nil
}

// DeleteStale removes ledger rows whose insight was deleted by retention
func (r *Repository) DeleteStale(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM learning_weights lw
		WHERE NOT EXISTS (SELECT 1 FROM insights i WHERE i.id = lw.record_id)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale weights: %w", err)
	}
	return res.RowsAffected()
}
