package rules

import (
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// BuiltinPrefix marks the IDs of the shipped indicators.
const BuiltinPrefix = "builtin-"

// IsBuiltin reports whether id names a shipped indicator.
func IsBuiltin(id string) bool {
	return strings.HasPrefix(id, BuiltinPrefix)
}

// Builtins returns the indicators every engine evaluates first, in order.
func Builtins() []*domain.Indicator {
	return []*domain.Indicator{
		builtin("high-amount", domain.FactorHighAmount, "amount_log > 6.0"),
		builtin("cross-border", domain.FactorCrossBorder, "is_cross_border"),
		builtin("night-hours", domain.FactorNightHours, "is_night"),
		builtin("weekend", domain.FactorWeekend, "is_weekend"),
		builtin("high-balance-use", domain.FactorHighBalanceUse, "balance_ratio_origin > 0.8"),
		builtin("new-user", domain.FactorNewUser, "user_transaction_count < 5"),
		builtin("cash-out", domain.FactorCashOut, `tx_type == "CASH_OUT"`),
	}
}

func builtin(id, label, expr string) *domain.Indicator {
	return &domain.Indicator{
		ID:         BuiltinPrefix + id,
		TenantID:   domain.GlobalTenantID,
		Label:      label,
		Expression: expr,
		Enabled:    true,
		Builtin:    true,
	}
}
