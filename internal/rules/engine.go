// Package rules provides the CEL-Go based risk indicator engine.
//
// Indicators are boolean CEL expressions over the feature vector. The engine
// evaluates them in a fixed order: the built-in set first, then operator-defined
// indicators sorted by position. The labels of the indicators that fire form the
// risk factors of a detection result.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine is the CEL-based indicator evaluation engine.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	builtins []*CompiledIndicator
	custom   []*CompiledIndicator

	failures atomic.Int64
}

// CompiledIndicator holds a pre-compiled CEL program.
type CompiledIndicator struct {
	Config  *domain.Indicator
	Program cel.Program
}

// NewEngine creates an engine with the built-in indicators loaded.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("amount_log", cel.DoubleType),
		cel.Variable("amount_zscore", cel.DoubleType),
		cel.Variable("balance_ratio_origin", cel.DoubleType),
		cel.Variable("balance_ratio_dest", cel.DoubleType),
		cel.Variable("is_cross_border", cel.BoolType),
		cel.Variable("is_night", cel.BoolType),
		cel.Variable("is_weekend", cel.BoolType),
		cel.Variable("is_merchant_dest", cel.BoolType),
		cel.Variable("user_transaction_count", cel.IntType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("day_of_week", cel.IntType),
		cel.Variable("tx_type", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{env: env}
	for _, ind := range Builtins() {
		compiled, err := e.compile(ind)
		if err != nil {
			return nil, err
		}
		e.builtins = append(e.builtins, compiled)
	}
	return e, nil
}

// Validate compiles an indicator without loading it.
func (e *Engine) Validate(ind *domain.Indicator) error {
	if ind == nil {
		return fmt.Errorf("indicator is required")
	}
	if ind.Label == "" {
		return fmt.Errorf("indicator %s: label is required", ind.ID)
	}
	_, err := e.compile(ind)
	return err
}

// Load replaces the custom indicators. Disabled and built-in entries are skipped.
// On error the previous set stays in place.
func (e *Engine) Load(indicators []*domain.Indicator) error {
	compiled := make([]*CompiledIndicator, 0, len(indicators))
	for _, ind := range indicators {
		if !ind.Enabled || ind.Builtin {
			continue
		}
		c, err := e.compile(ind)
		if err != nil {
			return err
		}
		compiled = append(compiled, c)
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		a, b := compiled[i].Config, compiled[j].Config
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.ID < b.ID
	})

	e.mu.Lock()
	e.custom = compiled
	e.mu.Unlock()
	return nil
}

// IndicatorSource supplies persisted indicators.
type IndicatorSource interface {
	ListIndicators(ctx context.Context, tenantID string) ([]*domain.Indicator, error)
}

// LoadFrom loads the global indicators held by src and returns how many custom indicators are active.
func (e *Engine) LoadFrom(ctx context.Context, src IndicatorSource) (int, error) {
	indicators, err := src.ListIndicators(ctx, domain.GlobalTenantID)
	if err != nil {
		return 0, fmt.Errorf("list indicators: %w", err)
	}
	if err := e.Load(indicators); err != nil {
		return 0, err
	}
	return e.Count() - len(e.builtins), nil
}

// Evaluate returns the labels of the indicators that fire for fv, in evaluation order.
// An indicator that fails at runtime counts as not fired.
func (e *Engine) Evaluate(fv domain.FeatureVector) []string {
	e.mu.RLock()
	custom := e.custom
	e.mu.RUnlock()

	activation := Activation(fv)
	factors := make([]string, 0, 4)
	for _, set := range [][]*CompiledIndicator{e.builtins, custom} {
		for _, ind := range set {
			out, _, err := ind.Program.Eval(activation)
			if err != nil {
				e.failures.Add(1)
				continue
			}
			if out == types.True {
				factors = append(factors, ind.Config.Label)
			}
		}
	}
	return factors
}

// Activation maps a feature vector onto the CEL variables.
func Activation(fv domain.FeatureVector) map[string]any {
	return map[string]any{
		"amount":                 fv.Amount,
		"amount_log":             fv.AmountLog,
		"amount_zscore":          fv.AmountZScore,
		"balance_ratio_origin":   fv.BalanceRatioOrigin,
		"balance_ratio_dest":     fv.BalanceRatioDest,
		"is_cross_border":        fv.IsCrossBorder,
		"is_night":               fv.IsNight,
		"is_weekend":             fv.IsWeekend,
		"is_merchant_dest":       fv.IsMerchantDest,
		"user_transaction_count": int64(fv.UserTransactionCount),
		"hour":                   int64(fv.Hour),
		"day_of_week":            int64(fv.DayOfWeek),
		"tx_type":                string(fv.Type),
	}
}

// Indicators returns the loaded indicators in evaluation order.
func (e *Engine) Indicators() []*domain.Indicator {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.Indicator, 0, len(e.builtins)+len(e.custom))
	for _, set := range [][]*CompiledIndicator{e.builtins, e.custom} {
		for _, c := range set {
			out = append(out, c.Config)
		}
	}
	return out
}

// Count returns the number of loaded indicators, built-ins included.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.builtins) + len(e.custom)
}

// Failures returns how many indicator evaluations have failed at runtime.
func (e *Engine) Failures() int64 {
	return e.failures.Load()
}

func (e *Engine) compile(ind *domain.Indicator) (*CompiledIndicator, error) {
	ast, issues := e.env.Compile(ind.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile indicator %s: %w", ind.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("indicator %s: expression must return bool, got %s", ind.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for indicator %s: %w", ind.ID, err)
	}

	return &CompiledIndicator{
		Config:  ind,
		Program: program,
	}, nil
}
