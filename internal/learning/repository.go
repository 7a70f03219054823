package learning

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/selivandex/advisor/pkg/models"
)

// Repository persists cycle reports. The report history doubles as the
// source for learning stats, so stats survive restarts without a separate
// metrics store.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new learning repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// InsertReport stores one finished cycle run
func (r *Repository) InsertReport(ctx context.Context, report *models.CycleReport) error {
	query := `
		INSERT INTO cycle_reports (
			started_at, duration_ms, processed, skipped, failed,
			weights_updated, insights_extracted, accuracy_before, accuracy_after
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		report.StartedAt,
		report.Duration.Milliseconds(),
		report.Processed,
		report.Skipped,
		report.Failed,
		report.WeightsUpdated,
		report.InsightsExtracted,
		report.AccuracyBefore,
		report.AccuracyAfter,
	).Scan(&report.ID)

	if err != nil {
		return fmt.Errorf("failed to insert cycle report: %w", err)
	}
	return nil
}

// AdvanceCursor appends a cursor row marking the last recommendation a cycle
// run stamped, so an operator can see how far batches have progressed
func (r *Repository) AdvanceCursor(ctx context.Context, recommendationID string) error {
	query := `INSERT INTO cycle_cursor (recommendation_id, advanced_at) VALUES ($1, NOW())`

	if _, err := r.db.ExecContext(ctx, query, recommendationID); err != nil {
		return fmt.Errorf("failed to advance cycle cursor: %w", err)
	}
	return nil
}

// Stats aggregates cycle history over a window
func (r *Repository) Stats(ctx context.Context, since time.Time) (*models.LearningStats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(processed + skipped), 0),
			COALESCE(SUM(insights_extracted), 0),
			COALESCE(AVG(accuracy_after - accuracy_before), 0)
		FROM cycle_reports
		WHERE started_at >= $1
	`

	var stats models.LearningStats
	err := r.db.QueryRowContext(ctx, query, since).Scan(
		&stats.CyclesRun,
		&stats.TradesProcessed,
		&stats.InsightsExtracted,
		&stats.AvgAccuracyImprovement,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query learning stats: %w", err)
	}
	return &stats, nil
}
