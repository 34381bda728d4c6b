package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// TransactionType is the kind of money movement being scored.
type TransactionType string

const (
	TypeCashIn   TransactionType = "CASH_IN"
	TypeCashOut  TransactionType = "CASH_OUT"
	TypeTransfer TransactionType = "TRANSFER"
	TypePayment  TransactionType = "PAYMENT"
	TypeDebit    TransactionType = "DEBIT"
)

// TransactionTypes lists the accepted types in one-hot encoding order.
var TransactionTypes = []TransactionType{TypeCashIn, TypeCashOut, TypeTransfer, TypePayment, TypeDebit}

// ParseTransactionType normalizes s and reports whether it is a known type.
func ParseTransactionType(s string) (TransactionType, bool) {
	t := TransactionType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range TransactionTypes {
		if t == known {
			return t, true
		}
	}
	return "", false
}

// TransactionInput is the request unit for fraud detection.
// Numeric attributes arrive string-encoded and are parsed by the feature engineer.
type TransactionInput struct {
	Amount               string `json:"amount"`
	Type                 string `json:"type"`
	OriginCountry        string `json:"origin_country"`
	DestCountry          string `json:"dest_country"`
	Hour                 string `json:"hour"`
	DayOfWeek            string `json:"day_of_week"`
	OriginBalance        string `json:"origin_balance"`
	DestBalance          string `json:"dest_balance"`
	UserTransactionCount string `json:"user_transaction_count"`

	// DestUser is optional and only feeds the merchant-destination feature.
	DestUser string `json:"dest_user,omitempty"`
}

// RequiredFields lists the JSON names of the mandatory fields in check order.
var RequiredFields = []string{
	"amount",
	"type",
	"origin_country",
	"dest_country",
	"hour",
	"day_of_week",
	"origin_balance",
	"dest_balance",
	"user_transaction_count",
}

// Field returns the raw value of a field by its JSON name.
func (t *TransactionInput) Field(name string) (string, bool) {
	switch name {
	case "amount":
		return t.Amount, true
	case "type":
		return t.Type, true
	case "origin_country":
		return t.OriginCountry, true
	case "dest_country":
		return t.DestCountry, true
	case "hour":
		return t.Hour, true
	case "day_of_week":
		return t.DayOfWeek, true
	case "origin_balance":
		return t.OriginBalance, true
	case "dest_balance":
		return t.DestBalance, true
	case "user_transaction_count":
		return t.UserTransactionCount, true
	case "dest_user":
		return t.DestUser, true
	}
	return "", false
}

// Validate checks that every required field is present and non-blank.
// It returns a *ValidationError naming the first missing field.
func (t *TransactionInput) Validate() error {
	for _, name := range RequiredFields {
		v, _ := t.Field(name)
		if strings.TrimSpace(v) == "" {
			return &ValidationError{Field: name}
		}
	}
	return nil
}

// UnmarshalJSON accepts each field either as a JSON string or as a JSON number.
// Numbers keep their literal text so that "12.50" and 12.50 parse identically.
func (t *TransactionInput) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("transaction must be a JSON object")
	}

	fields := map[string]*string{
		"amount":                 &t.Amount,
		"type":                   &t.Type,
		"origin_country":         &t.OriginCountry,
		"dest_country":           &t.DestCountry,
		"hour":                   &t.Hour,
		"day_of_week":            &t.DayOfWeek,
		"origin_balance":         &t.OriginBalance,
		"dest_balance":           &t.DestBalance,
		"user_transaction_count": &t.UserTransactionCount,
		"dest_user":              &t.DestUser,
	}

	for name, dst := range fields {
		v, ok := raw[name]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			*dst = val
		case json.Number:
			*dst = val.String()
		case bool:
			return fmt.Errorf("field %s: boolean is not a valid value", name)
		default:
			return fmt.Errorf("field %s: expected string or number", name)
		}
	}
	return nil
}
