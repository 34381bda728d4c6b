package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestTransactionInputUnmarshal(t *testing.T) {
	t.Run("StringsAndNumbers", func(t *testing.T) {
		var tx TransactionInput
		data := `{"amount": 12.50, "type": "PAYMENT", "origin_country": "US", "dest_country": "US",
			"hour": "14", "day_of_week": 2, "origin_balance": "1500", "dest_balance": 800,
			"user_transaction_count": 45, "dest_user": "merchant_1"}`
		if err := json.Unmarshal([]byte(data), &tx); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if tx.Amount != "12.50" || tx.DayOfWeek != "2" || tx.Hour != "14" || tx.DestUser != "merchant_1" {
			t.Errorf("unexpected decode: %+v", tx)
		}
		if err := tx.Validate(); err != nil {
			t.Errorf("expected valid transaction, got %v", err)
		}
	})

	t.Run("NullLeavesFieldMissing", func(t *testing.T) {
		var tx TransactionInput
		if err := json.Unmarshal([]byte(`{"amount": null}`), &tx); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		err := tx.Validate()
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Field != "amount" {
			t.Fatalf("expected missing amount, got %v", err)
		}
		if !errors.Is(err, ErrInvalidTransaction) {
			t.Error("expected ErrInvalidTransaction")
		}
	})

	t.Run("RejectsBooleans", func(t *testing.T) {
		var tx TransactionInput
		if err := json.Unmarshal([]byte(`{"amount": true}`), &tx); err == nil {
			t.Error("expected error for boolean field")
		}
	})

	t.Run("RejectsNonObject", func(t *testing.T) {
		var tx TransactionInput
		if err := json.Unmarshal([]byte(`[1,2]`), &tx); err == nil {
			t.Error("expected error for array")
		}
	})
}

func TestValidateOrder(t *testing.T) {
	tx := TransactionInput{Amount: "1", Type: "PAYMENT", OriginCountry: " "}
	err := tx.Validate()
	if err == nil || err.Error() != "Missing required field: origin_country" {
		t.Errorf("expected first missing field origin_country, got %v", err)
	}
}

func TestModelPredictionsJSON(t *testing.T) {
	preds := ModelPredictions{
		{Name: "Random Forest", Probability: 0.8},
		{Name: "Neural Network", Probability: 0.25},
	}
	data, err := json.Marshal(preds)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"Random Forest":0.8,"Neural Network":0.25}` {
		t.Errorf("unexpected encoding %s", data)
	}

	var back ModelPredictions
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(back) != 2 || back[0].Name != "Random Forest" || back[1].Name != "Neural Network" {
		t.Errorf("order not preserved: %+v", back)
	}
	if p, ok := back.Get("Neural Network"); !ok || p != 0.25 {
		t.Errorf("Get returned %f, %v", p, ok)
	}
}

func TestBatchItemJSON(t *testing.T) {
	ok := BatchItem{TransactionIndex: 0, Result: &FraudDetectionResult{
		IsFraudPredicted: true,
		FraudProbability: 0.9,
		RiskScore:        90,
		Recommendation:   RecommendBlock,
	}}
	failed := BatchItem{TransactionIndex: 1}

	data, err := json.Marshal([]BatchItem{ok, failed})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"transaction_index":0,"is_fraud_predicted":true`) {
		t.Errorf("success item not flattened: %s", s)
	}
	if !strings.Contains(s, `"error":"`+ProcessingErrorMessage+`"`) {
		t.Errorf("failure item must default its message: %s", s)
	}
	if !strings.Contains(s, `"risk_factors":[]`) {
		t.Errorf("success item must carry an empty risk_factors list: %s", s)
	}

	var back []BatchItem
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !back[0].OK() || back[1].OK() {
		t.Errorf("unexpected decode: %+v", back)
	}

	res := BatchResult{Results: back}
	if res.Failed() != 1 {
		t.Errorf("expected 1 failure, got %d", res.Failed())
	}
}

func TestFeatureVectorShape(t *testing.T) {
	fv := FeatureVector{IsNight: true, TypePayment: true, Hour: 23}
	v := fv.Vector()
	if len(v) != len(FeatureNames) {
		t.Fatalf("expected %d columns, got %d", len(FeatureNames), len(v))
	}
	for i, name := range FeatureNames {
		switch name {
		case "is_night", "type_PAYMENT":
			if v[i] != 1 {
				t.Errorf("%s: expected 1, got %f", name, v[i])
			}
		case "hour":
			if v[i] != 23 {
				t.Errorf("hour: expected 23, got %f", v[i])
			}
		}
	}
	if Flag(false) != 0 || Flag(true) != 1 {
		t.Error("Flag must map to 0 or 1")
	}
}
