package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func scenarioA() *domain.TransactionInput {
	return &domain.TransactionInput{
		Amount:               "5000.00",
		Type:                 "CASH_OUT",
		OriginCountry:        "US",
		DestCountry:          "XX",
		Hour:                 "3",
		DayOfWeek:            "0",
		OriginBalance:        "6000.00",
		DestBalance:          "100.00",
		UserTransactionCount: "2",
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEngineer(t *testing.T) {
	t.Run("ScenarioA", func(t *testing.T) {
		fv, err := Engineer(scenarioA())
		if err != nil {
			t.Fatalf("Engineer failed: %v", err)
		}

		if !almostEqual(fv.AmountLog, math.Log1p(5000)) {
			t.Errorf("expected amount_log %.6f, got %.6f", math.Log1p(5000), fv.AmountLog)
		}
		if !almostEqual(fv.AmountZScore, 4.5) {
			t.Errorf("expected amount_zscore 4.5, got %f", fv.AmountZScore)
		}
		if !almostEqual(fv.BalanceRatioOrigin, 5000.0/6001.0) {
			t.Errorf("unexpected balance_ratio_origin %f", fv.BalanceRatioOrigin)
		}
		if !almostEqual(fv.BalanceRatioDest, 5000.0/101.0) {
			t.Errorf("unexpected balance_ratio_dest %f", fv.BalanceRatioDest)
		}
		if !fv.IsCrossBorder || !fv.IsNight || !fv.IsWeekend {
			t.Errorf("expected cross-border, night and weekend flags, got %+v", fv)
		}
		if fv.IsMerchantDest {
			t.Error("expected no merchant destination without dest_user")
		}
		if fv.UserTransactionCount != 2 || fv.Hour != 3 || fv.DayOfWeek != 0 {
			t.Errorf("unexpected integer features: %+v", fv)
		}
		if !fv.TypeCashOut || fv.Type != domain.TypeCashOut {
			t.Errorf("expected CASH_OUT one-hot, got %+v", fv)
		}
	})

	t.Run("ExactlyOneTypeIndicator", func(t *testing.T) {
		for _, typ := range domain.TransactionTypes {
			tx := scenarioA()
			tx.Type = string(typ)
			fv, err := Engineer(tx)
			if err != nil {
				t.Fatalf("Engineer(%s) failed: %v", typ, err)
			}
			set := 0
			for _, b := range []bool{fv.TypeCashIn, fv.TypeCashOut, fv.TypeTransfer, fv.TypePayment, fv.TypeDebit} {
				if b {
					set++
				}
			}
			if set != 1 {
				t.Errorf("%s: expected exactly one type indicator, got %d", typ, set)
			}
		}
	})

	t.Run("TypeIsCaseInsensitive", func(t *testing.T) {
		tx := scenarioA()
		tx.Type = " transfer "
		fv, err := Engineer(tx)
		if err != nil {
			t.Fatalf("Engineer failed: %v", err)
		}
		if !fv.TypeTransfer {
			t.Error("expected TRANSFER indicator")
		}
	})

	t.Run("NightBoundaries", func(t *testing.T) {
		cases := map[string]bool{"5": true, "6": false, "21": false, "22": true, "0": true, "23": true}
		for hour, want := range cases {
			tx := scenarioA()
			tx.Hour = hour
			fv, err := Engineer(tx)
			if err != nil {
				t.Fatalf("hour %s: %v", hour, err)
			}
			if fv.IsNight != want {
				t.Errorf("hour %s: expected is_night=%v", hour, want)
			}
		}
	})

	t.Run("WeekendDays", func(t *testing.T) {
		for day := 0; day <= 6; day++ {
			tx := scenarioA()
			tx.DayOfWeek = string(rune('0' + day))
			fv, err := Engineer(tx)
			if err != nil {
				t.Fatalf("day %d: %v", day, err)
			}
			want := day == 0 || day == 6
			if fv.IsWeekend != want {
				t.Errorf("day %d: expected is_weekend=%v", day, want)
			}
		}
	})

	t.Run("MerchantDestination", func(t *testing.T) {
		tx := scenarioA()
		tx.DestUser = "merchant_4821"
		fv, err := Engineer(tx)
		if err != nil {
			t.Fatalf("Engineer failed: %v", err)
		}
		if !fv.IsMerchantDest {
			t.Error("expected merchant destination")
		}

		tx = scenarioA()
		tx.DestCountry = "MERCHANT"
		fv, _ = Engineer(tx)
		if fv.IsMerchantDest {
			t.Error("dest_country must not mark a merchant destination")
		}
	})

	t.Run("NegativeBalances", func(t *testing.T) {
		tx := scenarioA()
		tx.OriginBalance = "-200"
		tx.DestBalance = "-0.5"
		fv, err := Engineer(tx)
		if err != nil {
			t.Fatalf("Engineer failed: %v", err)
		}
		if !almostEqual(fv.BalanceRatioOrigin, 5000.0/-199.0) {
			t.Errorf("unexpected balance_ratio_origin %f", fv.BalanceRatioOrigin)
		}
		if !almostEqual(fv.BalanceRatioDest, 10000) {
			t.Errorf("unexpected balance_ratio_dest %f", fv.BalanceRatioDest)
		}
	})

	t.Run("BalanceOfMinusOne", func(t *testing.T) {
		tx := scenarioA()
		tx.OriginBalance = "-1"
		if _, err := Engineer(tx); !errors.Is(err, domain.ErrNumeric) {
			t.Errorf("expected ErrNumeric, got %v", err)
		}
	})

	t.Run("TinyExponents", func(t *testing.T) {
		tx := scenarioA()
		tx.Hour = "1e-50000000"
		tx.OriginBalance = "0e999999999"
		tx.DestBalance = "25e-401"
		start := time.Now()
		fv, err := Engineer(tx)
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("parsing took %v", elapsed)
		}
		if err != nil {
			t.Fatalf("Engineer failed: %v", err)
		}
		if fv.Hour != 0 {
			t.Errorf("expected hour 0, got %d", fv.Hour)
		}
		if !almostEqual(fv.BalanceRatioOrigin, 5000) || !almostEqual(fv.BalanceRatioDest, 5000) {
			t.Errorf("expected near-zero balances, got %+v", fv)
		}
	})

	t.Run("FractionalIntegersTruncate", func(t *testing.T) {
		tx := scenarioA()
		tx.Hour = "22.9"
		tx.UserTransactionCount = "4.99"
		fv, err := Engineer(tx)
		if err != nil {
			t.Fatalf("Engineer failed: %v", err)
		}
		if fv.Hour != 22 || fv.UserTransactionCount != 4 {
			t.Errorf("expected truncation toward zero, got hour=%d count=%d", fv.Hour, fv.UserTransactionCount)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		a, errA := Engineer(scenarioA())
		b, errB := Engineer(scenarioA())
		if errA != nil || errB != nil {
			t.Fatalf("Engineer failed: %v %v", errA, errB)
		}
		if a != b {
			t.Errorf("expected identical vectors, got %+v and %+v", a, b)
		}
	})

	t.Run("VectorShape", func(t *testing.T) {
		fv, _ := Engineer(scenarioA())
		if got := len(fv.Vector()); got != len(domain.FeatureNames) {
			t.Errorf("expected %d columns, got %d", len(domain.FeatureNames), got)
		}
	})
}

func TestEngineerErrors(t *testing.T) {
	tests := []struct {
		name  string
		field string
		mut   func(tx *domain.TransactionInput)
	}{
		{"MissingHour", "hour", func(tx *domain.TransactionInput) { tx.Hour = "" }},
		{"BlankCountry", "dest_country", func(tx *domain.TransactionInput) { tx.DestCountry = "   " }},
		{"NotANumber", "amount", func(tx *domain.TransactionInput) { tx.Amount = "abc" }},
		{"NaN", "amount", func(tx *domain.TransactionInput) { tx.Amount = "NaN" }},
		{"Infinity", "origin_balance", func(tx *domain.TransactionInput) { tx.OriginBalance = "Inf" }},
		{"Overflow", "amount", func(tx *domain.TransactionInput) { tx.Amount = "1e400" }},
		{"HugeExponent", "amount", func(tx *domain.TransactionInput) { tx.Amount = "1e50000000" }},
		{"HugeExponentBalance", "dest_balance", func(tx *domain.TransactionInput) { tx.DestBalance = "-1e999999999" }},
		{"HugeExponentHour", "hour", func(tx *domain.TransactionInput) { tx.Hour = "1e50000000" }},
		{"HugeExponentCount", "user_transaction_count", func(tx *domain.TransactionInput) { tx.UserTransactionCount = "1e999999999" }},
		{"NegativeAmount", "amount", func(tx *domain.TransactionInput) { tx.Amount = "-10" }},
		{"NegativeCount", "user_transaction_count", func(tx *domain.TransactionInput) { tx.UserTransactionCount = "-1" }},
		{"HourOutOfRange", "hour", func(tx *domain.TransactionInput) { tx.Hour = "24" }},
		{"DayOutOfRange", "day_of_week", func(tx *domain.TransactionInput) { tx.DayOfWeek = "7" }},
		{"UnknownType", "type", func(tx *domain.TransactionInput) { tx.Type = "REFUND" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := scenarioA()
			tt.mut(tx)

			start := time.Now()
			_, err := Engineer(tx)
			if elapsed := time.Since(start); elapsed > time.Second {
				t.Errorf("rejection took %v", elapsed)
			}
			if err == nil {
				t.Fatal("expected error")
			}
			var pe *domain.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *domain.ParseError, got %T", err)
			}
			if pe.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, pe.Field)
			}
			if !errors.Is(err, domain.ErrInvalidTransaction) {
				t.Error("expected error to match ErrInvalidTransaction")
			}
		})
	}

	t.Run("NilTransaction", func(t *testing.T) {
		if _, err := Engineer(nil); err == nil {
			t.Error("expected error for nil transaction")
		}
	})
}
