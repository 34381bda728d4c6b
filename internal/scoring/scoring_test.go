package scoring

import (
	"math"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestBaseScore(t *testing.T) {
	t.Run("HighRiskClampsAtMax", func(t *testing.T) {
		fv := domain.FeatureVector{
			AmountLog:            math.Log1p(5000),
			BalanceRatioOrigin:   5000.0 / 6001.0,
			IsCrossBorder:        true,
			IsNight:              true,
			IsWeekend:            true,
			UserTransactionCount: 2,
			TypeCashOut:          true,
		}

		b := Explain(fv)
		if b.CrossBorder != 0.3 {
			t.Errorf("expected cross-border risk 0.3, got %f", b.CrossBorder)
		}
		if math.Abs(b.Time-0.3) > 1e-12 {
			t.Errorf("expected time risk 0.3, got %f", b.Time)
		}
		if b.Balance != 0.4 {
			t.Errorf("expected balance risk capped at 0.4, got %f", b.Balance)
		}
		if math.Abs(b.History-0.27) > 1e-12 {
			t.Errorf("expected history risk 0.27, got %f", b.History)
		}
		if b.Type != 0.2 {
			t.Errorf("expected type risk 0.2, got %f", b.Type)
		}
		if got := BaseScore(fv); got != MaxProbability {
			t.Errorf("expected %.2f, got %f", MaxProbability, got)
		}
	})

	t.Run("LowRisk", func(t *testing.T) {
		fv := domain.FeatureVector{
			AmountLog:            math.Log1p(50),
			BalanceRatioOrigin:   50.0 / 1501.0,
			UserTransactionCount: 45,
			TypePayment:          true,
		}

		want := math.Log1p(50)/10 + 2*50.0/1501.0
		got := BaseScore(fv)
		if math.Abs(got-want) > 1e-12 {
			t.Errorf("expected %f, got %f", want, got)
		}
		if Explain(fv).History != 0 {
			t.Error("history risk must be zero for established users")
		}
	})

	t.Run("FloorAtMin", func(t *testing.T) {
		fv := domain.FeatureVector{UserTransactionCount: 100, TypeCashIn: true}
		if got := BaseScore(fv); got != MinProbability {
			t.Errorf("expected %.2f, got %f", MinProbability, got)
		}
	})

	t.Run("AmountRiskCapped", func(t *testing.T) {
		fv := domain.FeatureVector{AmountLog: 25, UserTransactionCount: 100}
		if got := Explain(fv).Amount; got != 1 {
			t.Errorf("expected amount risk capped at 1, got %f", got)
		}
	})

	t.Run("OverdrawnOrigin", func(t *testing.T) {
		fv := domain.FeatureVector{
			AmountLog:            math.Log1p(50),
			BalanceRatioOrigin:   50.0 / (-200.0 + 1),
			UserTransactionCount: 45,
			TypePayment:          true,
		}

		b := Explain(fv)
		if want := 2 * 50.0 / -199.0; math.Abs(b.Balance-want) > 1e-12 {
			t.Errorf("expected negative balance risk %f, got %f", want, b.Balance)
		}
		if got := BaseScore(fv); got != MinProbability {
			t.Errorf("expected %.2f, got %f", MinProbability, got)
		}
	})

	t.Run("TransferRisk", func(t *testing.T) {
		fv := domain.FeatureVector{TypeTransfer: true}
		if got := Explain(fv).Type; got != 0.1 {
			t.Errorf("expected type risk 0.1, got %f", got)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		fv := domain.FeatureVector{AmountLog: 7.2, BalanceRatioOrigin: 0.3, IsNight: true, UserTransactionCount: 7}
		if BaseScore(fv) != BaseScore(fv) {
			t.Error("base score must be deterministic")
		}
	})
}

func TestClamp(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-1, MinProbability},
		{0, MinProbability},
		{0.5, 0.5},
		{0.99, 0.99},
		{3, MaxProbability},
	}
	for _, tt := range tests {
		if got := Clamp(tt.in); got != tt.want {
			t.Errorf("Clamp(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
