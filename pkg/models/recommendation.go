package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScoreBreakdown is the per-signal contribution behind a rerank score
type ScoreBreakdown struct {
	Semantic    float64 `json:"semantic"`
	Recency     float64 `json:"recency"`
	Success     float64 `json:"success"`
	RegimeMatch float64 `json:"regime_match"`
	Preference  float64 `json:"preference"`
}

// Evidence is a reranked retrieval hit. Recommendations store value copies
// of these scores at creation time; nothing here references live store rows.
type Evidence struct {
	RecordID    string         `json:"record_id"`
	Kind        InsightKind    `json:"kind"`
	Text        string         `json:"text"`
	RerankScore float64        `json:"rerank_score"`
	Breakdown   ScoreBreakdown `json:"breakdown"`
}

// Outcome is the realized result attached to a recommendation once the
// underlying trade closes. Correct is nil for MONITOR decisions, which are
// judged neither correct nor incorrect.
type Outcome struct {
	Result      OutcomeResult   `json:"result" db:"result"`
	RealizedPnL decimal.Decimal `json:"realized_pnl" db:"realized_pnl"`
	Correct     *bool           `json:"correct" db:"correct"`
	ClosedAt    time.Time       `json:"closed_at" db:"closed_at"`
	ProcessedAt *time.Time      `json:"processed_at" db:"processed_at"`
}

// Recommendation is the engine's verdict on a candidate together with the
// evidence that produced it
type Recommendation struct {
	ID          string     `json:"id" db:"id"`
	CandidateID string     `json:"candidate_id" db:"candidate_id"`
	Symbol      string     `json:"symbol" db:"symbol"`
	Strategy    string     `json:"strategy" db:"strategy"`
	Decision    Decision   `json:"decision" db:"decision"`
	Confidence  float64    `json:"confidence" db:"confidence"` // [0,100], calibration applied
	Reasoning   string     `json:"reasoning" db:"reasoning"`
	Evidence    []Evidence `json:"evidence"`
	Regime      Regime     `json:"regime"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	Outcome     *Outcome   `json:"outcome,omitempty"`
}

// Processed reports whether the learning cycle already consumed this
// recommendation. Processed recommendations are never reprocessed.
func (r *Recommendation) Processed() bool {
	return r.Outcome != nil && r.Outcome.ProcessedAt != nil
}
