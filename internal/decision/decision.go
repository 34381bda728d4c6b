// Package decision maps a final fraud probability to a verdict, risk score,
// risk factors and recommendation.
package decision

import (
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Indicators evaluates risk heuristics against a feature vector.
// *rules.Engine satisfies it.
type Indicators interface {
	Evaluate(fv domain.FeatureVector) []string
}

// Tier is one recommendation band. A probability strictly above Above selects it.
type Tier struct {
	Above          float64
	Recommendation string
}

// Policy holds the decision thresholds.
type Policy struct {
	// FraudThreshold flags a transaction when the probability is strictly above it
	FraudThreshold float64

	// Tiers are checked in order; the first match wins
	Tiers []Tier

	// Fallback applies when no tier matches
	Fallback string

	indicators Indicators
}

// NewPolicy creates a policy with the default thresholds.
func NewPolicy(indicators Indicators) *Policy {
	return &Policy{
		FraudThreshold: 0.5,
		Tiers: []Tier{
			{Above: 0.8, Recommendation: domain.RecommendBlock},
			{Above: 0.6, Recommendation: domain.RecommendVerify},
			{Above: 0.4, Recommendation: domain.RecommendMonitor},
		},
		Fallback:   domain.RecommendProcess,
		indicators: indicators,
	}
}

// Decision is the outcome of applying the policy.
type Decision struct {
	IsFraud        bool
	RiskScore      int
	RiskFactors    []string
	Recommendation string
}

// Decide applies the policy to probability p and the features it was derived from.
func (p *Policy) Decide(prob float64, fv domain.FeatureVector) Decision {
	d := Decision{
		IsFraud:        prob > p.FraudThreshold,
		RiskScore:      RiskScore(prob),
		Recommendation: p.Recommend(prob),
		RiskFactors:    []string{},
	}
	if p.indicators != nil {
		if factors := p.indicators.Evaluate(fv); factors != nil {
			d.RiskFactors = factors
		}
	}
	return d
}

// Recommend returns the recommendation of the highest tier prob falls in.
func (p *Policy) Recommend(prob float64) string {
	for _, t := range p.Tiers {
		if prob > t.Above {
			return t.Recommendation
		}
	}
	return p.Fallback
}

// RiskScore rescales a probability to an integer in [0, 100], rounding half away from zero.
func RiskScore(prob float64) int {
	s := int(math.Round(prob * 100))
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// ShouldAlert reports whether a result should raise an alert.
func ShouldAlert(r *domain.FraudDetectionResult) bool {
	return r != nil && r.IsFraudPredicted
}
