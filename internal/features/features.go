// Package features turns a raw transaction into the fixed-shape feature vector
// consumed by the risk scorer.
package features

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// Decimal exponents beyond ±maxExponent are never expanded.
const maxExponent = 400

// Reference point for the amount z-score.
const (
	amountMean   = 500.0
	amountStdDev = 1000.0
)

var (
	errNotNumber   = errors.New("not a number")
	errNotFinite   = errors.New("not a finite number")
	errNegative    = errors.New("must not be negative")
	errOutOfRange  = errors.New("out of range")
	errUnknownType = errors.New("unknown transaction type")
)

// Engineer derives the feature vector for tx.
// It is deterministic and fails with a *domain.ParseError naming the offending field.
func Engineer(tx *domain.TransactionInput) (domain.FeatureVector, error) {
	var fv domain.FeatureVector
	if tx == nil {
		return fv, &domain.ParseError{Field: "transaction", Err: domain.ErrMissingField}
	}

	amount, err := money("amount", tx.Amount)
	if err != nil {
		return fv, err
	}
	txType, err := transactionType(tx.Type)
	if err != nil {
		return fv, err
	}
	origin, err := text("origin_country", tx.OriginCountry)
	if err != nil {
		return fv, err
	}
	dest, err := text("dest_country", tx.DestCountry)
	if err != nil {
		return fv, err
	}
	hour, err := integer("hour", tx.Hour, 23)
	if err != nil {
		return fv, err
	}
	day, err := integer("day_of_week", tx.DayOfWeek, 6)
	if err != nil {
		return fv, err
	}
	originBalance, err := finite("origin_balance", tx.OriginBalance)
	if err != nil {
		return fv, err
	}
	destBalance, err := finite("dest_balance", tx.DestBalance)
	if err != nil {
		return fv, err
	}
	count, err := integer("user_transaction_count", tx.UserTransactionCount, math.MaxInt32)
	if err != nil {
		return fv, err
	}

	fv = domain.FeatureVector{
		Amount:               amount,
		AmountLog:            math.Log1p(amount),
		AmountZScore:         (amount - amountMean) / amountStdDev,
		BalanceRatioOrigin:   amount / (originBalance + 1),
		BalanceRatioDest:     amount / (destBalance + 1),
		IsCrossBorder:        !strings.EqualFold(origin, dest),
		IsNight:              hour >= 22 || hour <= 5,
		IsWeekend:            day == 0 || day == 6,
		IsMerchantDest:       IsMerchant(tx.DestUser),
		UserTransactionCount: count,
		Hour:                 hour,
		DayOfWeek:            day,
		Type:                 txType,
		TypeCashIn:           txType == domain.TypeCashIn,
		TypeCashOut:          txType == domain.TypeCashOut,
		TypeTransfer:         txType == domain.TypeTransfer,
		TypePayment:          txType == domain.TypePayment,
		TypeDebit:            txType == domain.TypeDebit,
	}

	for _, v := range fv.Vector() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.FeatureVector{}, fmt.Errorf("engineer features: %w", domain.ErrNumeric)
		}
	}
	return fv, nil
}

// IsMerchant reports whether a destination account identifier denotes a merchant.
func IsMerchant(destUser string) bool {
	return strings.Contains(strings.ToUpper(destUser), "MERCHANT")
}

func text(field, raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", &domain.ParseError{Field: field, Value: raw, Err: domain.ErrMissingField}
	}
	return v, nil
}

func transactionType(raw string) (domain.TransactionType, error) {
	if _, err := text("type", raw); err != nil {
		return "", err
	}
	t, ok := domain.ParseTransactionType(raw)
	if !ok {
		return "", &domain.ParseError{Field: "type", Value: raw, Err: errUnknownType}
	}
	return t, nil
}

// number parses a decimal. Magnitudes above 10^maxExponent fail with tooLarge;
// values with a smaller exponent than -maxExponent go through float64.
func number(field, raw string, tooLarge error) (decimal.Decimal, error) {
	v, err := text(field, raw)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, &domain.ParseError{Field: field, Value: raw, Err: errNotNumber}
	}

	switch exp := d.Exponent(); {
	case d.IsZero():
		return decimal.Zero, nil
	case exp > maxExponent:
		return decimal.Zero, &domain.ParseError{Field: field, Value: raw, Err: tooLarge}
	case exp < -maxExponent:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return decimal.Zero, &domain.ParseError{Field: field, Value: raw, Err: errNotNumber}
		}
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return decimal.Zero, &domain.ParseError{Field: field, Value: raw, Err: tooLarge}
		}
		return decimal.NewFromFloat(f), nil
	}
	return d, nil
}

// finite parses any finite value. Balances may be negative.
func finite(field, raw string) (float64, error) {
	d, err := number(field, raw, errNotFinite)
	if err != nil {
		return 0, err
	}
	f := d.InexactFloat64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, &domain.ParseError{Field: field, Value: raw, Err: errNotFinite}
	}
	return f, nil
}

// money parses a non-negative monetary amount.
func money(field, raw string) (float64, error) {
	f, err := finite(field, raw)
	if err != nil {
		return 0, err
	}
	if f < 0 {
		return 0, &domain.ParseError{Field: field, Value: raw, Err: errNegative}
	}
	return f, nil
}

// integer parses a value in [0, limit], truncating any fractional part toward zero.
func integer(field, raw string, limit int64) (int, error) {
	d, err := number(field, raw, errOutOfRange)
	if err != nil {
		return 0, err
	}
	if d.IsNegative() {
		return 0, &domain.ParseError{Field: field, Value: raw, Err: errNegative}
	}
	d = d.Truncate(0)
	if d.GreaterThan(decimal.NewFromInt(limit)) {
		return 0, &domain.ParseError{Field: field, Value: raw, Err: errOutOfRange}
	}
	return int(d.IntPart()), nil
}
