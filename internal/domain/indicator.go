package domain

import "time"

// Indicator is a named risk heuristic evaluated against a feature vector.
// When its CEL expression is true, Label is appended to the result's risk factors.
type Indicator struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId,omitempty"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`

	// CEL expression that must evaluate to bool
	Expression string `json:"expression"`

	// Position orders custom indicators; built-ins always come first.
	Position int `json:"position"`

	Enabled bool `json:"enabled"`

	// Builtin marks the indicators shipped with the engine.
	Builtin bool `json:"builtin,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Built-in risk factor labels, in evaluation order.
const (
	FactorHighAmount     = "High transaction amount"
	FactorCrossBorder    = "Cross-border transaction"
	FactorNightHours     = "Unusual time (night hours)"
	FactorWeekend        = "Weekend transaction"
	FactorHighBalanceUse = "High balance utilization"
	FactorNewUser        = "New user with limited history"
	FactorCashOut        = "Cash-out transaction type"
)

// GlobalTenantID scopes indicators that apply to every tenant.
const GlobalTenantID = "*"
