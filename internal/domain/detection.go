package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// MaxBatchSize is the hard ceiling on transactions per batch call.
const MaxBatchSize = 100

// Recommendation strings, from most to least severe.
const (
	RecommendBlock   = "Block transaction immediately and flag for investigation"
	RecommendVerify  = "Require additional verification before processing"
	RecommendMonitor = "Monitor transaction and user activity closely"
	RecommendProcess = "Process transaction normally"
)

// ModelPrediction is one ensemble member's probability estimate.
type ModelPrediction struct {
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
}

// ModelPredictions keeps member order and serializes as a JSON object keyed by model name.
type ModelPredictions []ModelPrediction

// Get returns the probability of the named model.
func (m ModelPredictions) Get(name string) (float64, bool) {
	for _, p := range m {
		if p.Name == name {
			return p.Probability, true
		}
	}
	return 0, false
}

func (m ModelPredictions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(p.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatFloat(p.Probability, 'g', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *ModelPredictions) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*m = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("model_predictions: expected object")
	}

	var out ModelPredictions
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("model_predictions: expected string key")
		}
		var p float64
		if err := dec.Decode(&p); err != nil {
			return fmt.Errorf("model_predictions[%s]: %w", name, err)
		}
		out = append(out, ModelPrediction{Name: name, Probability: p})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}

// FraudDetectionResult is the scored outcome for one transaction.
type FraudDetectionResult struct {
	IsFraudPredicted bool             `json:"is_fraud_predicted"`
	FraudProbability float64          `json:"fraud_probability"`
	RiskScore        int              `json:"risk_score"`
	Confidence       float64          `json:"confidence"`
	ModelPredictions ModelPredictions `json:"model_predictions"`
	RiskFactors      []string         `json:"risk_factors"`
	Recommendation   string           `json:"recommendation"`
	ProcessingTimeMs int64            `json:"processing_time_ms"`
}

// ProcessingErrorMessage is used for batch failures that carry no message of their own.
const ProcessingErrorMessage = "Processing error"

// BatchItem is the outcome for one batch index: either Result or Error is set.
type BatchItem struct {
	TransactionIndex int
	Result           *FraudDetectionResult
	Error            string
}

// OK reports whether the item was scored successfully.
func (b BatchItem) OK() bool {
	return b.Result != nil
}

type batchItemJSON struct {
	TransactionIndex int              `json:"transaction_index"`
	Error            string           `json:"error,omitempty"`
	IsFraudPredicted bool             `json:"is_fraud_predicted"`
	FraudProbability float64          `json:"fraud_probability"`
	RiskScore        int              `json:"risk_score"`
	Confidence       float64          `json:"confidence"`
	ModelPredictions ModelPredictions `json:"model_predictions,omitempty"`
	RiskFactors      *[]string        `json:"risk_factors,omitempty"`
	Recommendation   string           `json:"recommendation,omitempty"`
	ProcessingTimeMs int64            `json:"processing_time_ms"`
}

// MarshalJSON flattens the result fields next to transaction_index.
// Failed items carry the error message and zeroed score fields.
func (b BatchItem) MarshalJSON() ([]byte, error) {
	out := batchItemJSON{TransactionIndex: b.TransactionIndex}
	if r := b.Result; r != nil {
		out.IsFraudPredicted = r.IsFraudPredicted
		out.FraudProbability = r.FraudProbability
		out.RiskScore = r.RiskScore
		out.Confidence = r.Confidence
		out.ModelPredictions = r.ModelPredictions
		factors := r.RiskFactors
		if factors == nil {
			factors = []string{}
		}
		out.RiskFactors = &factors
		out.Recommendation = r.Recommendation
		out.ProcessingTimeMs = r.ProcessingTimeMs
	} else {
		out.Error = b.Error
		if out.Error == "" {
			out.Error = ProcessingErrorMessage
		}
	}
	return json.Marshal(out)
}

func (b *BatchItem) UnmarshalJSON(data []byte) error {
	var in batchItemJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	b.TransactionIndex = in.TransactionIndex
	if in.Error != "" {
		b.Error = in.Error
		b.Result = nil
		return nil
	}
	b.Error = ""
	factors := []string{}
	if in.RiskFactors != nil {
		factors = *in.RiskFactors
	}
	b.Result = &FraudDetectionResult{
		IsFraudPredicted: in.IsFraudPredicted,
		FraudProbability: in.FraudProbability,
		RiskScore:        in.RiskScore,
		Confidence:       in.Confidence,
		ModelPredictions: in.ModelPredictions,
		RiskFactors:      factors,
		Recommendation:   in.Recommendation,
		ProcessingTimeMs: in.ProcessingTimeMs,
	}
	return nil
}

// BatchResult aggregates per-item outcomes in input order.
type BatchResult struct {
	BatchSize               int         `json:"batch_size"`
	Processed               int         `json:"processed"`
	TotalProcessingTimeMs   int64       `json:"total_processing_time_ms"`
	AverageProcessingTimeMs int64       `json:"average_processing_time_ms"`
	Results                 []BatchItem `json:"results"`
}

// Failed returns the number of items that could not be scored.
func (b *BatchResult) Failed() int {
	n := 0
	for _, item := range b.Results {
		if !item.OK() {
			n++
		}
	}
	return n
}

// BatchRequest is the wire envelope for batch detection.
type BatchRequest struct {
	Transactions json.RawMessage `json:"transactions"`
}
