package cache

import (
	"fmt"
	"math"

	"github.com/Knetic/govaluate"
)

// Default freshness expressions.
const (
	WeatherFreshness = "age_hours < 24 && has_today"
	MarketFreshness  = "age_hours < 6"
)

// FreshnessVars are the variables available to a freshness expression.
//
//	age_hours   float, hours since the entry was stored
//	age_minutes float, minutes since the entry was stored
//	has_today   bool, whether the payload covers the reader's current date
type FreshnessVars struct {
	AgeHours float64
	HasToday bool
}

func (v FreshnessVars) parameters() map[string]interface{} {
	return map[string]interface{}{
		"age_hours":   v.AgeHours,
		"age_minutes": v.AgeHours * 60,
		"has_today":   v.HasToday,
	}
}

// Freshness is a compiled freshness predicate.
type Freshness struct {
	source string
	expr   *govaluate.EvaluableExpression
}

// NewFreshness compiles expr and checks that it yields a boolean.
func NewFreshness(expr string) (*Freshness, error) {
	compiled, err := govaluate.NewEvaluableExpressionWithFunctions(expr, freshnessFunctions())
	if err != nil {
		return nil, fmt.Errorf("invalid freshness expression %q: %w", expr, err)
	}
	for _, v := range compiled.Vars() {
		switch v {
		case "age_hours", "age_minutes", "has_today":
		default:
			return nil, fmt.Errorf("freshness expression %q uses unknown variable %q", expr, v)
		}
	}

	f := &Freshness{source: expr, expr: compiled}
	if _, err := f.Fresh(FreshnessVars{}); err != nil {
		return nil, err
	}
	return f, nil
}

// MustFreshness is NewFreshness for compile-time constants.
func MustFreshness(expr string) *Freshness {
	f, err := NewFreshness(expr)
	if err != nil {
		panic(err)
	}
	return f
}

// Fresh evaluates the predicate.
func (f *Freshness) Fresh(vars FreshnessVars) (bool, error) {
	out, err := f.expr.Evaluate(vars.parameters())
	if err != nil {
		return false, fmt.Errorf("failed to evaluate freshness %q: %w", f.source, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("freshness expression %q returned %T, want bool", f.source, out)
	}
	return b, nil
}

func (f *Freshness) String() string { return f.source }

// freshnessFunctions is the whitelist of functions usable in expressions.
func freshnessFunctions() map[string]govaluate.ExpressionFunction {
	return map[string]govaluate.ExpressionFunction{
		"floor": func(args ...interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("floor expects 1 argument")
			}
			x, ok := args[0].(float64)
			if !ok {
				return nil, fmt.Errorf("floor expects a number")
			}
			return math.Floor(x), nil
		},
	}
}
