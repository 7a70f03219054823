package metrics

import "time"

// LearningCycleMetric records one learning cycle run for ClickHouse
type LearningCycleMetric struct {
	Timestamp         time.Time
	Processed         int
	Skipped           int
	Failed            int
	WeightsUpdated    int
	InsightsExtracted int
	AccuracyBefore    float64
	AccuracyAfter     float64
	DurationMs        int64
}

func (m *LearningCycleMetric) TableName() string {
	return "learning_cycle_metrics"
}

func (m *LearningCycleMetric) Values() []interface{} {
	return []interface{}{
		m.Timestamp,
		m.Processed,
		m.Skipped,
		m.Failed,
		m.WeightsUpdated,
		m.InsightsExtracted,
		m.AccuracyBefore,
		m.AccuracyAfter,
		m.DurationMs,
	}
}

// RetrievalMetric records one hybrid retrieval query
type RetrievalMetric struct {
	Timestamp     time.Time
	Subject       string
	Requested     int
	Returned      int
	TopScore      float64
	Degraded      bool
	ExecutionTime time.Duration
}

func (m *RetrievalMetric) TableName() string {
	return "retrieval_metrics"
}

func (m *RetrievalMetric) Values() []interface{} {
	return []interface{}{
		m.Timestamp,
		m.Subject,
		m.Requested,
		m.Returned,
		m.TopScore,
		m.Degraded,
		m.ExecutionTime.Milliseconds(),
	}
}

// CalibrationRunMetric records one calibration analyzer run per band
type CalibrationRunMetric struct {
	Timestamp        time.Time
	Band             string
	ExpectedAccuracy float64
	ObservedAccuracy float64
	AdjustmentFactor float64
	SampleCount      int
	Retained         bool // true when the prior factor was kept (under-sampled band)
}

func (m *CalibrationRunMetric) TableName() string {
	return "calibration_run_metrics"
}

func (m *CalibrationRunMetric) Values() []interface{} {
	return []interface{}{
		m.Timestamp,
		m.Band,
		m.ExpectedAccuracy,
		m.ObservedAccuracy,
		m.AdjustmentFactor,
		m.SampleCount,
		m.Retained,
	}
}

// RecommendationMetric records one generated recommendation
type RecommendationMetric struct {
	Timestamp     time.Time
	CandidateID   string
	Decision      string
	Confidence    float64
	EvidenceCount int
	Regime        string
}

func (m *RecommendationMetric) TableName() string {
	return "recommendation_metrics"
}

func (m *RecommendationMetric) Values() []interface{} {
	return []interface{}{
		m.Timestamp,
		m.CandidateID,
		m.Decision,
		m.Confidence,
		m.EvidenceCount,
		m.Regime,
	}
}
