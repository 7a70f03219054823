package regime

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/selivandex/advisor/pkg/models"
)

// Repository persists the append-only regime time series
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new regime snapshot repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Insert appends a snapshot to the time series
func (r *Repository) Insert(ctx context.Context, snapshot *models.RegimeSnapshot) error {
	query := `
		INSERT INTO regime_snapshots (
			ts, volatility_index, trend, volatility_regime, trend_regime, risk_appetite, stale
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := r.db.QueryRowContext(
		ctx, query,
		snapshot.Timestamp,
		snapshot.VolatilityIndex,
		snapshot.Trend,
		snapshot.Regime.Volatility,
		snapshot.Regime.Trend,
		snapshot.RiskAppetite,
		snapshot.Stale,
	).Scan(&snapshot.ID)

	if err != nil {
		return fmt.Errorf("failed to insert regime snapshot: %w", err)
	}

	return nil
}

// Latest returns the most recent snapshot, or nil when the series is empty
func (r *Repository) Latest(ctx context.Context) (*models.RegimeSnapshot, error) {
	query := `
		SELECT id, ts, volatility_index, trend, volatility_regime, trend_regime, risk_appetite, stale
		FROM regime_snapshots
		ORDER BY ts DESC
		LIMIT 1
	`

	var s models.RegimeSnapshot
	err := r.db.QueryRowContext(ctx, query).Scan(
		&s.ID,
		&s.Timestamp,
		&s.VolatilityIndex,
		&s.Trend,
		&s.Regime.Volatility,
		&s.Regime.Trend,
		&s.RiskAppetite,
		&s.Stale,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest regime snapshot: %w", err)
	}

	return &s, nil
}
