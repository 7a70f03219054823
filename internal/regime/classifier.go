package regime

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/advisor/internal/adapters/config"
	"github.com/selivandex/advisor/pkg/logger"
	"github.com/selivandex/advisor/pkg/models"
)

// SnapshotStore is the regime time series the classifier appends to
type SnapshotStore interface {
	Insert(ctx context.Context, snapshot *models.RegimeSnapshot) error
	Latest(ctx context.Context) (*models.RegimeSnapshot, error)
}

// Classifier maps market indicator snapshots to a discrete regime tuple.
// Classification is pure thresholding; the only side effect is appending
// to the regime time series.
type Classifier struct {
	cfg   *config.RegimeConfig
	store SnapshotStore
}

// NewClassifier creates new regime classifier
func NewClassifier(cfg *config.RegimeConfig, store SnapshotStore) *Classifier {
	return &Classifier{cfg: cfg, store: store}
}

// Classify turns a market snapshot into a regime snapshot and appends it to
// the time series. Missing inputs reuse the most recent prior snapshot's
// labels with Stale=true instead of failing, so retrieval degrades rather
// than blocks.
func (c *Classifier) Classify(ctx context.Context, in models.MarketSnapshot) (*models.RegimeSnapshot, error) {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var snapshot models.RegimeSnapshot

	if in.VolatilityIndex == nil || in.Trend == nil {
		prior, err := c.store.Latest(ctx)
		if err != nil {
			return nil, fmt.Errorf("market snapshot incomplete and prior regime lookup failed: %w", err)
		}
		if prior == nil {
			return nil, fmt.Errorf("market snapshot incomplete and no prior regime available")
		}

		snapshot = models.RegimeSnapshot{
			Timestamp:       ts,
			VolatilityIndex: prior.VolatilityIndex,
			Trend:           prior.Trend,
			Regime:          prior.Regime,
			RiskAppetite:    clamp01(in.RiskAppetite),
			Stale:           true,
		}

		logger.Warn("market snapshot incomplete, reusing prior regime",
			zap.String("regime", prior.Regime.String()),
			zap.Time("ts", ts),
		)
	} else {
		snapshot = models.RegimeSnapshot{
			Timestamp:       ts,
			VolatilityIndex: *in.VolatilityIndex,
			Trend:           *in.Trend,
			Regime: models.Regime{
				Volatility: c.classifyVolatility(*in.VolatilityIndex),
				Trend:      c.classifyTrend(*in.Trend),
			},
			RiskAppetite: clamp01(in.RiskAppetite),
		}
	}

	if err := c.store.Insert(ctx, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to append regime snapshot: %w", err)
	}

	logger.Debug("regime classified",
		zap.String("regime", snapshot.Regime.String()),
		zap.Float64("volatility_index", snapshot.VolatilityIndex),
		zap.Float64("trend", snapshot.Trend),
		zap.Bool("stale", snapshot.Stale),
	)

	return &snapshot, nil
}

// classifyVolatility buckets the volatility index by the fixed cutoffs
func (c *Classifier) classifyVolatility(index float64) models.VolatilityRegime {
	switch {
	case index < c.cfg.VolLowMax:
		return models.VolatilityLow
	case index < c.cfg.VolNormalMax:
		return models.VolatilityNormal
	case index < c.cfg.VolHighMax:
		return models.VolatilityHigh
	default:
		return models.VolatilityExtreme
	}
}

// classifyTrend buckets the signed trend magnitude
func (c *Classifier) classifyTrend(trend float64) models.TrendRegime {
	switch {
	case trend >= c.cfg.TrendBullMin:
		return models.TrendBull
	case trend <= c.cfg.TrendBearMax:
		return models.TrendBear
	default:
		return models.TrendNeutral
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
