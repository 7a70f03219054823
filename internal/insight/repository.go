package insight

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/selivandex/advisor/pkg/models"
)

// Repository is the append-only insight store. Insights are immutable once
// written; only the learning cycle inserts rows.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new insight repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Insert appends a new insight. The id is assigned here when empty.
func (r *Repository) Insert(ctx context.Context, ins *models.Insight) error {
	if ins.ID == "" {
		ins.ID = uuid.NewString()
	}

	meta, err := ins.MarshalMeta()
	if err != nil {
		return err
	}

	query := `
		INSERT INTO insights (
			id, kind, symbol, strategy, text, embedding, meta,
			volatility_regime, trend_regime
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err = r.db.QueryRowContext(
		ctx, query,
		ins.ID,
		ins.Kind,
		ins.Symbol,
		ins.Strategy,
		ins.Text,
		pq.Array(ins.Embedding),
		meta,
		ins.Regime.Volatility,
		ins.Regime.Trend,
	).Scan(&ins.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert insight %s: %w", ins.ID, err)
	}

	return nil
}

// Candidates returns the most recent insights for the retriever's
// over-sampling pass. An empty subject matches everything; otherwise rows
// are limited to the subject's symbol plus unsubjected rows.
func (r *Repository) Candidates(ctx context.Context, symbol string, limit int) ([]models.Insight, error) {
	query := `
		SELECT id, kind, symbol, strategy, text, embedding, meta,
		       volatility_regime, trend_regime, created_at
		FROM insights
		WHERE ($1 = '' OR symbol = $1 OR symbol = '')
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query insights: %w", err)
	}
	defer rows.Close()

	var insights []models.Insight
	for rows.Next() {
		var ins models.Insight
		var embedding pq.Float32Array
		var meta []byte

		err := rows.Scan(
			&ins.ID,
			&ins.Kind,
			&ins.Symbol,
			&ins.Strategy,
			&ins.Text,
			&embedding,
			&meta,
			&ins.Regime.Volatility,
			&ins.Regime.Trend,
			&ins.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan insight: %w", err)
		}

		ins.Embedding = make([]float32, len(embedding))
		copy(ins.Embedding, embedding)

		if err := ins.UnmarshalMeta(meta); err != nil {
			return nil, fmt.Errorf("insight %s: %w", ins.ID, err)
		}

		insights = append(insights, ins)
	}

	return insights, rows.Err()
}

// DeleteOlderThan removes insights past the retention window
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM insights WHERE created_at < $1`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old insights: %w", err)
	}
	return res.RowsAffected()
}

// CountSince returns the number of insights created in the window
func (r *Repository) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM insights WHERE created_at >= $1`, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count insights: %w", err)
	}
	return count, nil
}
