package main

import (
	"math"
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const sample = `amount,type,origin_country,dest_country,hour,day_of_week,origin_balance,dest_balance,user_transaction_count,dest_user,is_fraud
5000.00,CASH_OUT,US,XX,3,0,6000.00,100.00,2,,1
150.00,PAYMENT,US,US,14,2,1500.00,800.00,45,merchant_1,0
10.00,DEBIT,US,US,9,3,100.00,0,12,,
broken,row
`

func TestReadRows(t *testing.T) {
	rows, skipped, err := ReadRows(strings.NewReader(sample), 0)
	if err != nil {
		t.Fatalf("ReadRows failed: %v", err)
	}
	if len(rows) != 3 || skipped != 1 {
		t.Fatalf("expected 3 rows and 1 skipped, got %d and %d", len(rows), skipped)
	}
	if !rows[0].IsFraud || !rows[0].Labeled || rows[0].Tx.Type != "CASH_OUT" {
		t.Errorf("unexpected first row: %+v", rows[0])
	}
	if rows[1].IsFraud || !rows[1].Labeled || rows[1].Tx.DestUser != "merchant_1" {
		t.Errorf("unexpected second row: %+v", rows[1])
	}
	if rows[2].Labeled {
		t.Error("row without is_fraud must be unlabelled")
	}

	limited, _, _ := ReadRows(strings.NewReader(sample), 2)
	if len(limited) != 2 {
		t.Errorf("expected limit of 2 rows, got %d", len(limited))
	}

	if _, _, err := ReadRows(strings.NewReader("amount,type\n1,PAYMENT\n"), 0); err == nil {
		t.Error("expected error for missing columns")
	}
}

func TestChunk(t *testing.T) {
	rows := make([]Row, 250)
	batches := Chunk(rows, domain.MaxBatchSize)
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	if len(batches[0]) != 100 || len(batches[2]) != 50 {
		t.Errorf("unexpected batch sizes %d, %d", len(batches[0]), len(batches[2]))
	}
	if Chunk(nil, 10) != nil {
		t.Error("expected no batches for no rows")
	}
}

func TestMetricsRecord(t *testing.T) {
	batch := []Row{
		{IsFraud: true, Labeled: true},
		{IsFraud: false, Labeled: true},
		{IsFraud: true, Labeled: true},
		{IsFraud: false, Labeled: true},
		{Labeled: false},
		{IsFraud: true, Labeled: true},
	}
	result := &domain.BatchResult{
		BatchSize:             6,
		Processed:             6,
		TotalProcessingTimeMs: 12,
		Results: []domain.BatchItem{
			{TransactionIndex: 0, Result: &domain.FraudDetectionResult{IsFraudPredicted: true}},
			{TransactionIndex: 1, Result: &domain.FraudDetectionResult{IsFraudPredicted: true}},
			{TransactionIndex: 2, Result: &domain.FraudDetectionResult{IsFraudPredicted: false}},
			{TransactionIndex: 3, Result: &domain.FraudDetectionResult{IsFraudPredicted: false}},
			{TransactionIndex: 4, Result: &domain.FraudDetectionResult{IsFraudPredicted: true}},
			{TransactionIndex: 5, Error: "Missing required field: hour"},
		},
	}

	var m Metrics
	m.Record(batch, result, 20)

	if m.TruePositives != 1 || m.FalsePositives != 1 || m.FalseNegatives != 1 || m.TrueNegatives != 1 {
		t.Errorf("unexpected confusion matrix: %+v", &m)
	}
	if m.Unlabeled != 1 || m.ItemErrors != 1 {
		t.Errorf("expected 1 unlabelled and 1 error, got %d and %d", m.Unlabeled, m.ItemErrors)
	}
	if m.Precision() != 0.5 || m.Recall() != 0.5 || m.F1() != 0.5 || m.Accuracy() != 0.5 {
		t.Errorf("unexpected scores p=%f r=%f f1=%f acc=%f", m.Precision(), m.Recall(), m.F1(), m.Accuracy())
	}

	var empty Metrics
	if empty.F1() != 0 || math.IsNaN(empty.Precision()) {
		t.Error("empty metrics must score zero")
	}
}
