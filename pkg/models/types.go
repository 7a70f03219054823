package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NewDecimal creates decimal from float64
func NewDecimal(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}

// Decision represents the engine's verdict on a trade candidate
type Decision string

const (
	DecisionTake    Decision = "TAKE"
	DecisionPass    Decision = "PASS"
	DecisionMonitor Decision = "MONITOR"
)

// OutcomeResult represents the realized result of a closed trade
type OutcomeResult string

const (
	ResultWin       OutcomeResult = "WIN"
	ResultLoss      OutcomeResult = "LOSS"
	ResultBreakEven OutcomeResult = "BREAK_EVEN"
	ResultNotTaken  OutcomeResult = "NOT_TAKEN"
)

// VolatilityRegime classifies the volatility index level
type VolatilityRegime string

const (
	VolatilityLow     VolatilityRegime = "low"
	VolatilityNormal  VolatilityRegime = "normal"
	VolatilityHigh    VolatilityRegime = "high"
	VolatilityExtreme VolatilityRegime = "extreme"
)

// TrendRegime classifies the broad-index trend direction
type TrendRegime string

const (
	TrendBull    TrendRegime = "bull"
	TrendBear    TrendRegime = "bear"
	TrendNeutral TrendRegime = "neutral"
)

// Regime is the discrete market-condition tuple evidence is tagged with
type Regime struct {
	Volatility VolatilityRegime `json:"volatility" db:"volatility_regime"`
	Trend      TrendRegime      `json:"trend" db:"trend_regime"`
}

// Equal reports whether two regime tuples match exactly
func (r Regime) Equal(other Regime) bool {
	return r.Volatility == other.Volatility && r.Trend == other.Trend
}

// String returns "volatility/trend" for logging
func (r Regime) String() string {
	return string(r.Volatility) + "/" + string(r.Trend)
}

// MarketSnapshot is the raw market feed input to the regime classifier.
// Nil fields mean the upstream feed did not supply the value.
type MarketSnapshot struct {
	Timestamp       time.Time `json:"timestamp"`
	VolatilityIndex *float64  `json:"volatility_index"`
	Trend           *float64  `json:"trend"` // signed magnitude, positive = up
	RiskAppetite    float64   `json:"risk_appetite"`
}

// RegimeSnapshot is a classified point of the regime time series
type RegimeSnapshot struct {
	ID              int64     `json:"id" db:"id"`
	Timestamp       time.Time `json:"timestamp" db:"ts"`
	VolatilityIndex float64   `json:"volatility_index" db:"volatility_index"`
	Trend           float64   `json:"trend" db:"trend"`
	Regime          Regime    `json:"regime"`
	RiskAppetite    float64   `json:"risk_appetite" db:"risk_appetite"`
	Stale           bool      `json:"stale" db:"stale"`
}

// Candidate is a trade candidate supplied by the external candidate generator
type Candidate struct {
	CandidateID string    `json:"candidate_id"`
	Symbol      string    `json:"symbol"`
	Strategy    string    `json:"strategy"`
	Embedding   []float32 `json:"embedding"`
	Preference  float64   `json:"preference"` // caller hint in [0,1], 0.5 = neutral
}

// TradeOutcome is delivered by the external trade outcome feed once a trade closes
type TradeOutcome struct {
	CandidateID string          `json:"candidate_id"`
	Result      OutcomeResult   `json:"result"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	ClosedAt    time.Time       `json:"closed_at"`
}

// Profitable reports whether the realized result made money
func (o TradeOutcome) Profitable() bool {
	return o.RealizedPnL.IsPositive()
}
