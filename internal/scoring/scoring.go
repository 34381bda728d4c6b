// Package scoring computes the deterministic base fraud probability of a feature vector.
package scoring

import (
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Probability bounds shared by the scorer and the ensemble.
const (
	MinProbability = 0.01
	MaxProbability = 0.99
)

// newUserHistory is the transaction count below which history risk applies.
const newUserHistory = 20

// Breakdown holds the partial risks summed into the base score.
type Breakdown struct {
	Amount      float64 `json:"amount"`
	CrossBorder float64 `json:"cross_border"`
	Time        float64 `json:"time"`
	Balance     float64 `json:"balance"`
	History     float64 `json:"history"`
	Type        float64 `json:"type"`
}

// Total returns the unclamped sum of the partial risks.
func (b Breakdown) Total() float64 {
	return b.Amount + b.CrossBorder + b.Time + b.Balance + b.History + b.Type
}

// Explain computes each partial risk for fv.
func Explain(fv domain.FeatureVector) Breakdown {
	return Breakdown{
		Amount:      math.Min(fv.AmountLog/10, 1),
		CrossBorder: domain.Flag(fv.IsCrossBorder) * 0.3,
		Time:        domain.Flag(fv.IsNight)*0.2 + domain.Flag(fv.IsWeekend)*0.1,
		Balance:     math.Min(fv.BalanceRatioOrigin*2, 0.4),
		History:     math.Max(0, float64(newUserHistory-fv.UserTransactionCount)/newUserHistory*0.3),
		Type:        domain.Flag(fv.TypeCashOut)*0.2 + domain.Flag(fv.TypeTransfer)*0.1,
	}
}

// BaseScore returns the pre-ensemble fraud probability in [MinProbability, MaxProbability].
func BaseScore(fv domain.FeatureVector) float64 {
	return Clamp(Explain(fv).Total())
}

// Clamp bounds p to [MinProbability, MaxProbability]. NaN is returned unchanged.
func Clamp(p float64) float64 {
	if p < MinProbability {
		return MinProbability
	}
	if p > MaxProbability {
		return MaxProbability
	}
	return p
}
