package regime

import (
	"context"
	"testing"
	"time"

	"github.com/selivandex/advisor/internal/adapters/config"
	"github.com/selivandex/advisor/pkg/models"
)

// memStore is an in-memory SnapshotStore for tests
type memStore struct {
	snapshots []models.RegimeSnapshot
}

func (m *memStore) Insert(ctx context.Context, s *models.RegimeSnapshot) error {
	m.snapshots = append(m.snapshots, *s)
	return nil
}

func (m *memStore) Latest(ctx context.Context) (*models.RegimeSnapshot, error) {
	if len(m.snapshots) == 0 {
		return nil, nil
	}
	s := m.snapshots[len(m.snapshots)-1]
	return &s, nil
}

func testConfig() *config.RegimeConfig {
	return &config.RegimeConfig{
		VolLowMax:    15.0,
		VolNormalMax: 25.0,
		VolHighMax:   35.0,
		TrendBullMin: 0.5,
		TrendBearMax: -0.5,
	}
}

func fptr(v float64) *float64 { return &v }

func TestClassifier_Thresholds(t *testing.T) {
	tests := []struct {
		name       string
		volIndex   float64
		trend      float64
		wantVol    models.VolatilityRegime
		wantTrend  models.TrendRegime
	}{
		{"low vol bull", 10.0, 1.2, models.VolatilityLow, models.TrendBull},
		{"normal vol neutral", 20.0, 0.1, models.VolatilityNormal, models.TrendNeutral},
		{"high vol bear", 30.0, -0.8, models.VolatilityHigh, models.TrendBear},
		{"extreme vol", 40.0, 0.0, models.VolatilityExtreme, models.TrendNeutral},
		{"boundary: low/normal cutoff goes normal", 15.0, 0.0, models.VolatilityNormal, models.TrendNeutral},
		{"boundary: bull cutoff inclusive", 10.0, 0.5, models.VolatilityLow, models.TrendBull},
		{"boundary: bear cutoff inclusive", 10.0, -0.5, models.VolatilityLow, models.TrendBear},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memStore{}
			c := NewClassifier(testConfig(), store)

			snap, err := c.Classify(context.Background(), models.MarketSnapshot{
				Timestamp:       time.Now(),
				VolatilityIndex: fptr(tt.volIndex),
				Trend:           fptr(tt.trend),
				RiskAppetite:    0.5,
			})
			if err != nil {
				t.Fatalf("Classify failed: %v", err)
			}

			if snap.Regime.Volatility != tt.wantVol {
				t.Errorf("volatility regime = %s, want %s", snap.Regime.Volatility, tt.wantVol)
			}
			if snap.Regime.Trend != tt.wantTrend {
				t.Errorf("trend regime = %s, want %s", snap.Regime.Trend, tt.wantTrend)
			}
			if snap.Stale {
				t.Error("complete snapshot should not be stale")
			}
			if len(store.snapshots) != 1 {
				t.Errorf("expected 1 appended snapshot, got %d", len(store.snapshots))
			}
		})
	}
}

func TestClassifier_RiskAppetiteClamped(t *testing.T) {
	store := &memStore{}
	c := NewClassifier(testConfig(), store)

	snap, err := c.Classify(context.Background(), models.MarketSnapshot{
		VolatilityIndex: fptr(20.0),
		Trend:           fptr(0.0),
		RiskAppetite:    1.7,
	})
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if snap.RiskAppetite != 1.0 {
		t.Errorf("risk appetite = %.2f, want clamped 1.0", snap.RiskAppetite)
	}

	snap, err = c.Classify(context.Background(), models.MarketSnapshot{
		VolatilityIndex: fptr(20.0),
		Trend:           fptr(0.0),
		RiskAppetite:    -0.3,
	})
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if snap.RiskAppetite != 0.0 {
		t.Errorf("risk appetite = %.2f, want clamped 0.0", snap.RiskAppetite)
	}
}

func TestClassifier_MissingInputsReusePrior(t *testing.T) {
	store := &memStore{}
	c := NewClassifier(testConfig(), store)

	// Seed a complete snapshot
	_, err := c.Classify(context.Background(), models.MarketSnapshot{
		VolatilityIndex: fptr(30.0),
		Trend:           fptr(-1.0),
		RiskAppetite:    0.4,
	})
	if err != nil {
		t.Fatalf("seed Classify failed: %v", err)
	}

	// Incomplete snapshot falls back to prior labels, flagged stale
	snap, err := c.Classify(context.Background(), models.MarketSnapshot{
		RiskAppetite: 0.6,
	})
	if err != nil {
		t.Fatalf("Classify with missing inputs failed: %v", err)
	}

	if !snap.Stale {
		t.Error("expected stale flag for incomplete snapshot")
	}
	if snap.Regime.Volatility != models.VolatilityHigh || snap.Regime.Trend != models.TrendBear {
		t.Errorf("expected prior regime high/bear, got %s", snap.Regime)
	}
}

func TestClassifier_MissingInputsNoPrior(t *testing.T) {
	store := &memStore{}
	c := NewClassifier(testConfig(), store)

	_, err := c.Classify(context.Background(), models.MarketSnapshot{RiskAppetite: 0.5})
	if err == nil {
		t.Fatal("expected error when inputs missing and no prior snapshot exists")
	}
}
