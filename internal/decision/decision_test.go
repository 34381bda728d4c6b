package decision

import (
	"reflect"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
)

type fixedIndicators []string

func (f fixedIndicators) Evaluate(domain.FeatureVector) []string { return f }

func TestDecide(t *testing.T) {
	policy := NewPolicy(fixedIndicators{"A", "B"})

	t.Run("FraudBoundary", func(t *testing.T) {
		if policy.Decide(0.5, domain.FeatureVector{}).IsFraud {
			t.Error("probability 0.5 must not be flagged")
		}
		if !policy.Decide(0.5000001, domain.FeatureVector{}).IsFraud {
			t.Error("probability above 0.5 must be flagged")
		}
	})

	t.Run("FactorsKeepOrder", func(t *testing.T) {
		d := policy.Decide(0.3, domain.FeatureVector{})
		if !reflect.DeepEqual(d.RiskFactors, []string{"A", "B"}) {
			t.Errorf("expected [A B], got %v", d.RiskFactors)
		}
	})

	t.Run("NoIndicators", func(t *testing.T) {
		d := NewPolicy(nil).Decide(0.3, domain.FeatureVector{})
		if d.RiskFactors == nil || len(d.RiskFactors) != 0 {
			t.Errorf("expected empty non-nil factors, got %#v", d.RiskFactors)
		}
	})
}

func TestRecommend(t *testing.T) {
	policy := NewPolicy(nil)

	tests := []struct {
		prob float64
		want string
	}{
		{0.99, domain.RecommendBlock},
		{0.81, domain.RecommendBlock},
		{0.8, domain.RecommendVerify},
		{0.61, domain.RecommendVerify},
		{0.6, domain.RecommendMonitor},
		{0.41, domain.RecommendMonitor},
		{0.4, domain.RecommendProcess},
		{0.01, domain.RecommendProcess},
	}

	for _, tt := range tests {
		if got := policy.Recommend(tt.prob); got != tt.want {
			t.Errorf("Recommend(%v) = %q, want %q", tt.prob, got, tt.want)
		}
	}
}

func TestRiskScore(t *testing.T) {
	tests := []struct {
		prob float64
		want int
	}{
		{0, 0},
		{0.004, 0},
		{0.125, 13},
		{0.5, 50},
		{0.991, 99},
		{0.996, 100},
		{1, 100},
	}

	for _, tt := range tests {
		if got := RiskScore(tt.prob); got != tt.want {
			t.Errorf("RiskScore(%v) = %d, want %d", tt.prob, got, tt.want)
		}
	}
}

func TestDecideWithEngine(t *testing.T) {
	engine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	policy := NewPolicy(engine)

	fv := domain.FeatureVector{
		IsCrossBorder:        true,
		IsNight:              true,
		UserTransactionCount: 2,
		Type:                 domain.TypeCashOut,
		TypeCashOut:          true,
	}
	d := policy.Decide(0.9, fv)

	want := []string{domain.FactorCrossBorder, domain.FactorNightHours, domain.FactorNewUser, domain.FactorCashOut}
	if !reflect.DeepEqual(d.RiskFactors, want) {
		t.Errorf("expected %v, got %v", want, d.RiskFactors)
	}
	if d.Recommendation != domain.RecommendBlock || d.RiskScore != 90 || !d.IsFraud {
		t.Errorf("unexpected decision: %+v", d)
	}
}

func TestShouldAlert(t *testing.T) {
	if ShouldAlert(nil) {
		t.Error("nil result must not alert")
	}
	if !ShouldAlert(&domain.FraudDetectionResult{IsFraudPredicted: true}) {
		t.Error("flagged result must alert")
	}
}
