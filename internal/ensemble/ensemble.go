// Package ensemble simulates a weighted committee of fraud models around a base probability.
//
// Each member perturbs the base estimate with bounded symmetric noise of its own
// amplitude. The final probability is the weighted blend of the perturbed
// predictions and confidence falls as the members disagree.
package ensemble

import (
	"errors"
	"fmt"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// weightTolerance bounds the accepted drift of the weight sum from 1.
const weightTolerance = 1e-9

// DefaultUncertaintyAmplitude is the width of the shared jitter applied before member noise.
const DefaultUncertaintyAmplitude = 0.1

var (
	ErrNoMembers     = errors.New("ensemble has no members")
	ErrDuplicateName = errors.New("duplicate member name")
	ErrBadWeight     = errors.New("member weight must be in (0, 1]")
	ErrWeightSum     = errors.New("member weights must sum to 1")
	ErrBadAmplitude  = errors.New("noise amplitude must be finite and non-negative")
)

// Member is one simulated model.
type Member struct {
	Name           string  `json:"name"`
	NoiseAmplitude float64 `json:"noise_amplitude"`
	Weight         float64 `json:"weight"`
}

// FullProfile returns the eight-model committee.
func FullProfile() []Member {
	return []Member{
		{Name: "Random Forest", NoiseAmplitude: 0.10, Weight: 0.20},
		{Name: "Gradient Boosting", NoiseAmplitude: 0.08, Weight: 0.18},
		{Name: "Logistic Regression", NoiseAmplitude: 0.12, Weight: 0.15},
		{Name: "SVM", NoiseAmplitude: 0.15, Weight: 0.12},
		{Name: "Decision Tree", NoiseAmplitude: 0.20, Weight: 0.10},
		{Name: "AdaBoost", NoiseAmplitude: 0.18, Weight: 0.10},
		{Name: "Naive Bayes", NoiseAmplitude: 0.25, Weight: 0.08},
		{Name: "K-Nearest Neighbors", NoiseAmplitude: 0.30, Weight: 0.07},
	}
}

// CompactProfile returns the four-model committee used for lightweight batch scoring.
func CompactProfile() []Member {
	return []Member{
		{Name: "Random Forest", NoiseAmplitude: 0.10, Weight: 0.30},
		{Name: "Gradient Boosting", NoiseAmplitude: 0.08, Weight: 0.25},
		{Name: "Logistic Regression", NoiseAmplitude: 0.12, Weight: 0.25},
		{Name: "SVM", NoiseAmplitude: 0.15, Weight: 0.20},
	}
}

// Profile resolves a named member set.
func Profile(name string) ([]Member, error) {
	switch name {
	case "", domain.ProfileFull:
		return FullProfile(), nil
	case domain.ProfileCompact:
		return CompactProfile(), nil
	}
	return nil, fmt.Errorf("unknown ensemble profile %q", name)
}

// Outcome is the result of one simulation.
type Outcome struct {
	Probability float64
	Confidence  float64
	Predictions domain.ModelPredictions
}

// Simulator runs a validated member set.
type Simulator struct {
	members     []Member
	uncertainty float64
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithUncertainty sets the shared jitter amplitude. Zero disables it.
func WithUncertainty(amplitude float64) Option {
	return func(s *Simulator) {
		s.uncertainty = amplitude
	}
}

// New validates members and returns a simulator over a private copy of them.
func New(members []Member, opts ...Option) (*Simulator, error) {
	if len(members) == 0 {
		return nil, ErrNoMembers
	}

	seen := make(map[string]bool, len(members))
	sum := 0.0
	for _, m := range members {
		if seen[m.Name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, m.Name)
		}
		seen[m.Name] = true

		if !(m.Weight > 0 && m.Weight <= 1) {
			return nil, fmt.Errorf("%w: %s has %v", ErrBadWeight, m.Name, m.Weight)
		}
		if m.NoiseAmplitude < 0 || math.IsNaN(m.NoiseAmplitude) || math.IsInf(m.NoiseAmplitude, 0) {
			return nil, fmt.Errorf("%w: %s has %v", ErrBadAmplitude, m.Name, m.NoiseAmplitude)
		}
		sum += m.Weight
	}
	if math.Abs(sum-1) > weightTolerance {
		return nil, fmt.Errorf("%w: got %v", ErrWeightSum, sum)
	}

	s := &Simulator{
		members:     append([]Member(nil), members...),
		uncertainty: DefaultUncertaintyAmplitude,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.uncertainty < 0 || math.IsNaN(s.uncertainty) || math.IsInf(s.uncertainty, 0) {
		return nil, fmt.Errorf("uncertainty: %w", ErrBadAmplitude)
	}
	return s, nil
}

// Members returns a copy of the configured members in order.
func (s *Simulator) Members() []Member {
	return append([]Member(nil), s.members...)
}

// Uncertainty returns the shared jitter amplitude.
func (s *Simulator) Uncertainty() float64 {
	return s.uncertainty
}

// Draws is the number of samples Simulate consumes from its source.
func (s *Simulator) Draws() int {
	if s.uncertainty > 0 {
		return len(s.members) + 1
	}
	return len(s.members)
}

// Simulate perturbs base once per member and blends the predictions by weight.
// All randomness comes from src.
func (s *Simulator) Simulate(base float64, src Source) Outcome {
	p := scoring.Clamp(base)
	if s.uncertainty > 0 {
		p = scoring.Clamp(p + jitter(src, s.uncertainty))
	}

	preds := make(domain.ModelPredictions, len(s.members))
	final := 0.0
	for i, m := range s.members {
		v := scoring.Clamp(p + jitter(src, m.NoiseAmplitude))
		preds[i] = domain.ModelPrediction{Name: m.Name, Probability: v}
		final += m.Weight * v
	}

	return Outcome{
		Probability: final,
		Confidence:  Confidence(preds),
		Predictions: preds,
	}
}

// Confidence is max(0.5, 1 - 2*stddev) over the population of predictions.
func Confidence(preds domain.ModelPredictions) float64 {
	if len(preds) == 0 {
		return 0.5
	}
	mean := 0.0
	for _, p := range preds {
		mean += p.Probability
	}
	mean /= float64(len(preds))

	variance := 0.0
	for _, p := range preds {
		d := p.Probability - mean
		variance += d * d
	}
	variance /= float64(len(preds))

	return math.Max(0.5, 1-2*math.Sqrt(variance))
}

func jitter(src Source, amplitude float64) float64 {
	return (src.Float64() - 0.5) * amplitude
}
