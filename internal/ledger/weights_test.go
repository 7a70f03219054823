package ledger

import (
	"math"
	"testing"

	"github.com/selivandex/advisor/pkg/models"
)

func TestNextWeight(t *testing.T) {
	t.Run("correct steps up", func(t *testing.T) {
		got := NextWeight(1.0, true)
		if math.Abs(got-1.1) > 1e-9 {
			t.Errorf("expected 1.1, got %v", got)
		}
	})

	t.Run("incorrect steps down", func(t *testing.T) {
		got := NextWeight(1.0, false)
		if math.Abs(got-0.9) > 1e-9 {
			t.Errorf("expected 0.9, got %v", got)
		}
	})

	t.Run("clamps at upper bound", func(t *testing.T) {
		got := NextWeight(models.MaxSuccessWeight, true)
		if got != models.MaxSuccessWeight {
			t.Errorf("expected %v, got %v", models.MaxSuccessWeight, got)
		}
	})

	t.Run("clamps at lower bound", func(t *testing.T) {
		got := NextWeight(models.MinSuccessWeight, false)
		if got != models.MinSuccessWeight {
			t.Errorf("expected %v, got %v", models.MinSuccessWeight, got)
		}
	})

	t.Run("five correct from default", func(t *testing.T) {
		w := models.DefaultSuccessWeight
		for i := 0; i < 5; i++ {
			w = NextWeight(w, true)
		}
		if math.Abs(w-1.5) > 1e-9 {
			t.Errorf("expected 1.5 after five correct outcomes, got %v", w)
		}
	})
}

func TestWeightRecordAccuracy(t *testing.T) {
	t.Run("all correct", func(t *testing.T) {
		rec := models.LearningWeightRecord{TimesReferenced: 5, CorrectCount: 5}
		acc, ok := rec.Accuracy()
		if !ok {
			t.Fatal("expected accuracy to be defined")
		}
		if acc != 1.0 {
			t.Errorf("expected 1.0, got %v", acc)
		}
	})

	t.Run("mixed", func(t *testing.T) {
		rec := models.LearningWeightRecord{TimesReferenced: 4, CorrectCount: 3, IncorrectCount: 1}
		acc, ok := rec.Accuracy()
		if !ok {
			t.Fatal("expected accuracy to be defined")
		}
		if math.Abs(acc-0.75) > 1e-9 {
			t.Errorf("expected 0.75, got %v", acc)
		}
	})

	t.Run("no settled outcomes", func(t *testing.T) {
		rec := models.LearningWeightRecord{}
		if _, ok := rec.Accuracy(); ok {
			t.Error("expected accuracy to be undefined with no outcomes")
		}
	})
}
