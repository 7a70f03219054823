package ledger

import "github.com/selivandex/advisor/pkg/models"

// NextWeight returns the weight after one settled outcome. This is the same
// transition Apply performs in SQL; keeping it here lets cycle code report
// the post-update weight without a second round trip.
func NextWeight(current float64, correct bool) float64 {
	if correct {
		return models.ClampWeight(current + models.WeightStep)
	}
	return models.ClampWeight(current - models.WeightStep)
}
