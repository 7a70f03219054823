package calibration

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/selivandex/advisor/pkg/models"
)

// Repository persists calibration runs. Each run writes a full set of band
// rows sharing one computed_at stamp; Latest serves the most recent set.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new calibration repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// InsertRun stores all band records of one analyzer run in a transaction
func (r *Repository) InsertRun(ctx context.Context, records []models.CalibrationRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin calibration tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO calibration_records (
			band, lower_bound, upper_bound, expected_accuracy,
			observed_accuracy, calibration_error, adjustment_factor,
			sample_count, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	for i := range records {
		rec := &records[i]
		_, err := tx.ExecContext(ctx, query,
			rec.Band,
			rec.LowerBound,
			rec.UpperBound,
			rec.ExpectedAccuracy,
			rec.ObservedAccuracy,
			rec.CalibrationError,
			rec.AdjustmentFactor,
			rec.SampleCount,
			rec.ComputedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert calibration band %s: %w", rec.Band, err)
		}
	}

	return tx.Commit()
}

// Latest returns the band records of the most recent run, ordered by lower
// bound. An empty result means no run has completed yet.
func (r *Repository) Latest(ctx context.Context) ([]models.CalibrationRecord, error) {
	query := `
		SELECT band, lower_bound, upper_bound, expected_accuracy,
		       observed_accuracy, calibration_error, adjustment_factor,
		       sample_count, computed_at
		FROM calibration_records
		WHERE computed_at = (SELECT MAX(computed_at) FROM calibration_records)
		ORDER BY lower_bound ASC
	`

	var records []models.CalibrationRecord
	if err := r.db.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("failed to query latest calibration: %w", err)
	}
	return records, nil
}
