package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// InsightKind identifies what an extracted insight describes
type InsightKind string

const (
	KindSuccessPattern InsightKind = "success_pattern"
	KindFailurePattern InsightKind = "failure_pattern"
	KindRegimeChange   InsightKind = "regime_change"
	KindPatternBreak   InsightKind = "pattern_break"
)

// InsightMeta is the kind-specific payload of an insight. Each kind carries
// only the fields relevant to it, so downstream logic can switch exhaustively
// instead of digging through an open-ended key/value bag.
type InsightMeta interface {
	MetaKind() InsightKind
}

// OutcomeMeta accompanies success_pattern and failure_pattern insights
type OutcomeMeta struct {
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	Decision    Decision        `json:"decision"`
	Result      OutcomeResult   `json:"result"`
	kind        InsightKind
}

func (m OutcomeMeta) MetaKind() InsightKind { return m.kind }

// NewOutcomeMeta builds meta for a success or failure pattern
func NewOutcomeMeta(kind InsightKind, decision Decision, result OutcomeResult, pnl decimal.Decimal) OutcomeMeta {
	return OutcomeMeta{RealizedPnL: pnl, Decision: decision, Result: result, kind: kind}
}

// RegimeChangeMeta accompanies regime_change insights
type RegimeChangeMeta struct {
	From                 Regime  `json:"from"`
	To                   Regime  `json:"to"`
	VolatilityIndexDelta float64 `json:"volatility_index_delta"`
}

func (m RegimeChangeMeta) MetaKind() InsightKind { return KindRegimeChange }

// PatternBreakMeta accompanies pattern_break insights
type PatternBreakMeta struct {
	Expected string `json:"expected"`
	Observed string `json:"observed"`
}

func (m PatternBreakMeta) MetaKind() InsightKind { return KindPatternBreak }

// Insight is an extracted textual lesson, immutable once written.
// Only the learning cycle creates insights.
type Insight struct {
	ID        string      `json:"id" db:"id"`
	Kind      InsightKind `json:"kind" db:"kind"`
	Symbol    string      `json:"symbol" db:"symbol"`     // optional subject
	Strategy  string      `json:"strategy" db:"strategy"` // optional subject
	Text      string      `json:"text" db:"text"`
	Embedding []float32   `json:"embedding"`
	Meta      InsightMeta `json:"meta"`
	Regime    Regime      `json:"regime"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// MarshalMeta serializes the kind-specific meta for storage
func (i *Insight) MarshalMeta() ([]byte, error) {
	if i.Meta == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(i.Meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal insight meta: %w", err)
	}
	return data, nil
}

// UnmarshalMeta restores the kind-specific meta from storage
func (i *Insight) UnmarshalMeta(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	switch i.Kind {
	case KindSuccessPattern, KindFailurePattern:
		var m OutcomeMeta
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("failed to unmarshal outcome meta: %w", err)
		}
		m.kind = i.Kind
		i.Meta = m
	case KindRegimeChange:
		var m RegimeChangeMeta
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("failed to unmarshal regime change meta: %w", err)
		}
		i.Meta = m
	case KindPatternBreak:
		var m PatternBreakMeta
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("failed to unmarshal pattern break meta: %w", err)
		}
		i.Meta = m
	default:
		return fmt.Errorf("unknown insight kind %q", i.Kind)
	}
	return nil
}

// Direction maps an insight kind to the trade direction it implies:
// +1 for evidence of success, -1 for evidence of failure, 0 for contextual
// insights that carry no direction.
func (k InsightKind) Direction() int {
	switch k {
	case KindSuccessPattern:
		return 1
	case KindFailurePattern:
		return -1
	default:
		return 0
	}
}

// Direction reports the direction implied by this insight's kind
func (i *Insight) Direction() int {
	return i.Kind.Direction()
}
