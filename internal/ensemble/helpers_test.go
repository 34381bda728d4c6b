package ensemble

import "github.com/opensource-finance/kestrel/internal/domain"

func predictionSet(values ...float64) domain.ModelPredictions {
	preds := make(domain.ModelPredictions, len(values))
	for i, v := range values {
		preds[i] = domain.ModelPrediction{Name: string(rune('A' + i)), Probability: v}
	}
	return preds
}
