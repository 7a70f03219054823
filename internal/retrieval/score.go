package retrieval

import (
	"math"
	"time"

	"github.com/selivandex/advisor/pkg/models"
)

// CosineSimilarity returns the cosine of the angle between two embeddings,
// remapped from [-1,1] to [0,1] so it composes with the other rerank signals.
// Mismatched or zero-magnitude vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return (cos + 1) / 2
}

// recencyScore decays exponentially with age: 1.0 at creation, 1/e after one
// half-life worth of days.
func recencyScore(createdAt, now time.Time, halfLifeDays float64) float64 {
	ageDays := now.Sub(createdAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-ageDays / halfLifeDays)
}

// successScore normalizes a ledger weight onto [0,1]
func successScore(weight float64) float64 {
	return models.ClampWeight(weight) / models.MaxSuccessWeight
}

// regimeScore gives full credit for an exact regime match and partial credit
// otherwise. Evidence from a different regime still carries some signal, so
// the floor is partial credit rather than zero.
func regimeScore(evidence, current models.Regime, partialCredit float64) float64 {
	if evidence.Equal(current) {
		return 1.0
	}
	return partialCredit
}

// preferenceScore expresses the caller's hint relative to what the evidence
// argues for. Evidence of success carries the hint as-is, evidence of failure
// carries its complement, directionless evidence falls back to neutral.
func preferenceScore(ins *models.Insight, preference, neutral float64) float64 {
	switch ins.Direction() {
	case 1:
		return preference
	case -1:
		return 1 - preference
	default:
		return neutral
	}
}
