package domain

// FeatureVector is the fixed-shape encoding of a transaction consumed by the scorer.
// Values are derived fresh per request and never mutated afterwards.
type FeatureVector struct {
	Amount             float64 `json:"-"`
	AmountLog          float64 `json:"amount_log"`
	AmountZScore       float64 `json:"amount_zscore"`
	BalanceRatioOrigin float64 `json:"balance_ratio_origin"`
	BalanceRatioDest   float64 `json:"balance_ratio_dest"`

	IsCrossBorder  bool `json:"is_cross_border"`
	IsNight        bool `json:"is_night"`
	IsWeekend      bool `json:"is_weekend"`
	IsMerchantDest bool `json:"is_merchant_dest"`

	UserTransactionCount int `json:"user_transaction_count"`
	Hour                 int `json:"hour"`
	DayOfWeek            int `json:"day_of_week"`

	Type TransactionType `json:"type"`

	// One-hot type indicators; exactly one is true.
	TypeCashIn   bool `json:"type_CASH_IN"`
	TypeCashOut  bool `json:"type_CASH_OUT"`
	TypeTransfer bool `json:"type_TRANSFER"`
	TypePayment  bool `json:"type_PAYMENT"`
	TypeDebit    bool `json:"type_DEBIT"`
}

// FeatureNames is the column order of Vector.
var FeatureNames = []string{
	"amount_log",
	"amount_zscore",
	"balance_ratio_origin",
	"balance_ratio_dest",
	"is_cross_border",
	"is_night",
	"is_weekend",
	"is_merchant_dest",
	"user_transaction_count",
	"hour",
	"day_of_week",
	"type_CASH_IN",
	"type_CASH_OUT",
	"type_TRANSFER",
	"type_PAYMENT",
	"type_DEBIT",
}

// Vector returns the numeric encoding of the features in FeatureNames order.
func (f FeatureVector) Vector() []float64 {
	return []float64{
		f.AmountLog,
		f.AmountZScore,
		f.BalanceRatioOrigin,
		f.BalanceRatioDest,
		Flag(f.IsCrossBorder),
		Flag(f.IsNight),
		Flag(f.IsWeekend),
		Flag(f.IsMerchantDest),
		float64(f.UserTransactionCount),
		float64(f.Hour),
		float64(f.DayOfWeek),
		Flag(f.TypeCashIn),
		Flag(f.TypeCashOut),
		Flag(f.TypeTransfer),
		Flag(f.TypePayment),
		Flag(f.TypeDebit),
	}
}

// Flag maps a boolean to 1 or 0.
func Flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
