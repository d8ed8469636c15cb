package fiscal

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrUnknownRoundingRule is returned when no strategy is registered for a rule.
var ErrUnknownRoundingRule = errors.New("fiscal: unknown price rounding rule")

// Rounder rounds a final price.
type Rounder func(price decimal.Decimal) decimal.Decimal

var (
	roundersMu sync.RWMutex
	rounders   = map[RoundingRule]Rounder{
		RoundingExact:       func(p decimal.Decimal) decimal.Decimal { return p },
		RoundingNearestUnit: nearestMultiple(1),
		RoundingNearest10:   nearestMultiple(10),
		RoundingNearest50:   nearestMultiple(50),
		RoundingNearest100:  nearestMultiple(100),
		RoundingNearest1000: nearestMultiple(1000),
		RoundingTo90:        endingIn(90, 100),
		RoundingTo990:       endingIn(990, 1000),
	}
)

// RegisterRounding installs or replaces the strategy for rule.
func RegisterRounding(rule RoundingRule, fn Rounder) {
	roundersMu.Lock()
	defer roundersMu.Unlock()
	rounders[rule] = fn
}

// LookupRounding returns the strategy registered for rule.
func LookupRounding(rule RoundingRule) (Rounder, error) {
	roundersMu.RLock()
	defer roundersMu.RUnlock()
	fn, ok := rounders[rule]
	if !ok {
		return nil, ErrUnknownRoundingRule
	}
	return fn, nil
}

// ApplyPriceRounding rounds price with the strategy for rule. Unknown rules
// leave the price unchanged.
func ApplyPriceRounding(price decimal.Decimal, rule RoundingRule) decimal.Decimal {
	fn, err := LookupRounding(rule)
	if err != nil {
		return price
	}
	return fn(price)
}

// nearestMultiple rounds half up to the closest multiple of step.
func nearestMultiple(step int64) Rounder {
	s := decimal.NewFromInt(step)
	return func(p decimal.Decimal) decimal.Decimal {
		return p.Div(s).Round(0).Mul(s)
	}
}

// endingIn rounds to the closest non-negative value whose remainder modulo
// modulus is suffix, preferring the higher value on ties. Non-positive
// prices are returned as is.
func endingIn(suffix, modulus int64) Rounder {
	m := decimal.NewFromInt(modulus)
	sfx := decimal.NewFromInt(suffix)
	return func(p decimal.Decimal) decimal.Decimal {
		if !p.IsPositive() {
			return p
		}
		anchor := p.Div(m).Floor().Mul(m).Add(sfx)
		best := anchor.Add(m)
		for _, c := range []decimal.Decimal{anchor, anchor.Sub(m)} {
			if c.IsNegative() {
				continue
			}
			if c.Sub(p).Abs().LessThan(best.Sub(p).Abs()) {
				best = c
			}
		}
		return best
	}
}
