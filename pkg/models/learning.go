package models

import (
	"time"
)

// Success weight bounds. Consecutive correct/incorrect updates clamp here
// no matter how long the streak runs.
const (
	MinSuccessWeight     = 0.1
	MaxSuccessWeight     = 5.0
	DefaultSuccessWeight = 1.0
	WeightStep           = 0.1
)

// LearningWeightRecord is the per-evidence-record learning state.
// Invariant: CorrectCount + IncorrectCount == TimesReferenced.
type LearningWeightRecord struct {
	RecordID        string    `json:"record_id" db:"record_id"`
	SuccessWeight   float64   `json:"success_weight" db:"success_weight"`
	TimesReferenced int       `json:"times_referenced" db:"times_referenced"`
	CorrectCount    int       `json:"correct_count" db:"correct_count"`
	IncorrectCount  int       `json:"incorrect_count" db:"incorrect_count"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Accuracy returns correct/referenced; ok is false when the record has
// never been referenced.
func (r *LearningWeightRecord) Accuracy() (float64, bool) {
	if r.TimesReferenced == 0 {
		return 0, false
	}
	return float64(r.CorrectCount) / float64(r.TimesReferenced), true
}

// ClampWeight bounds a success weight into [MinSuccessWeight, MaxSuccessWeight]
func ClampWeight(w float64) float64 {
	if w < MinSuccessWeight {
		return MinSuccessWeight
	}
	if w > MaxSuccessWeight {
		return MaxSuccessWeight
	}
	return w
}

// CalibrationRecord compares predicted vs realized accuracy for one
// confidence band. Accuracies are on the [0,100] percent scale.
type CalibrationRecord struct {
	Band             string    `json:"band" db:"band"`
	LowerBound       float64   `json:"lower_bound" db:"lower_bound"`
	UpperBound       float64   `json:"upper_bound" db:"upper_bound"`
	ExpectedAccuracy float64   `json:"expected_accuracy" db:"expected_accuracy"`
	ObservedAccuracy float64   `json:"observed_accuracy" db:"observed_accuracy"`
	CalibrationError float64   `json:"calibration_error" db:"calibration_error"`
	AdjustmentFactor float64   `json:"adjustment_factor" db:"adjustment_factor"`
	SampleCount      int       `json:"sample_count" db:"sample_count"`
	ComputedAt       time.Time `json:"computed_at" db:"computed_at"`
}

// Contains reports whether a confidence value falls into this band.
// Bands are inclusive of the lower bound and exclusive of the upper, except
// the top band which also includes its upper bound.
func (c *CalibrationRecord) Contains(confidence float64) bool {
	if confidence >= c.LowerBound && confidence < c.UpperBound {
		return true
	}
	return confidence == c.UpperBound && c.UpperBound >= 100
}

// ConfidenceSample is one settled recommendation reduced to what calibration
// needs. Correct is nil for MONITOR decisions, which never enter any band's
// denominator.
type ConfidenceSample struct {
	Confidence float64  `db:"confidence"`
	Decision   Decision `db:"decision"`
	Correct    *bool    `db:"correct"`
}

// ItemStatus classifies one item of a learning cycle batch
type ItemStatus string

const (
	ItemProcessed ItemStatus = "processed"
	ItemSkipped   ItemStatus = "skipped"
	ItemFailed    ItemStatus = "failed"
)

// ItemResult is the explicit per-item outcome of a batch run; failures are
// collected here instead of aborting the loop
type ItemResult struct {
	RecommendationID string
	Status           ItemStatus
	Err              error
}

// CycleReport aggregates one learning cycle run
type CycleReport struct {
	ID                int64         `json:"id" db:"id"`
	StartedAt         time.Time     `json:"started_at" db:"started_at"`
	Duration          time.Duration `json:"duration"`
	Processed         int           `json:"processed" db:"processed"`
	Skipped           int           `json:"skipped" db:"skipped"`
	Failed            int           `json:"failed" db:"failed"`
	WeightsUpdated    int           `json:"weights_updated" db:"weights_updated"`
	InsightsExtracted int           `json:"insights_extracted" db:"insights_extracted"`
	AccuracyBefore    float64       `json:"accuracy_before" db:"accuracy_before"`
	AccuracyAfter     float64       `json:"accuracy_after" db:"accuracy_after"`
}

// LearningStats summarizes engine learning over a window for external dashboards
type LearningStats struct {
	InsightsExtracted      int     `json:"insights_extracted"`
	CyclesRun              int     `json:"cycles_run"`
	TradesProcessed        int     `json:"trades_processed"`
	AvgAccuracyImprovement float64 `json:"avg_accuracy_improvement"`
}
