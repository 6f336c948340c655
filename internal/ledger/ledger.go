// Package ledger implements margin settlement arithmetic for closed and
// what-if trades. All monetary rounding in the engine happens here and
// nowhere else.
package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrDivisionUndefined is returned when settlement is requested against a
// zero entry notional.
var ErrDivisionUndefined = errors.New("ledger: entry size is zero, margin undefined")

// precision for every monetary intermediate.
const places = 8

// SettleParams describes a prior buy and a candidate sell.
type SettleParams struct {
	EntrySizeQuote float64 // quote spent on the buy, fees included
	FilledBase     float64 // base amount the buy filled
	EntryPrice     float64
	EntryFee       float64
	SellPercent    float64 // portion of the position to sell, 100 for all
	SellPrice      float64
	SellFee        float64 // explicit fee; when zero, TakerFeeRate applies
	TakerFeeRate   float64
}

// Settlement is the outcome of settling a sell against its buy.
type Settlement struct {
	MarginPct float64
	Profit    float64
	SellFee   float64
}

// Settle computes margin, profit and sell fee for a candidate sell. It is a
// pure function: safe to call repeatedly for what-if evaluation before
// committing a SELL.
func Settle(p SettleParams) (Settlement, error) {
	if p.EntrySizeQuote == 0 {
		return Settlement{}, ErrDivisionUndefined
	}

	entry := decimal.NewFromFloat(p.EntrySizeQuote)
	filled := decimal.NewFromFloat(p.FilledBase)
	sellPct := decimal.NewFromFloat(p.SellPercent)
	sellPrice := decimal.NewFromFloat(p.SellPrice)
	hundred := decimal.NewFromInt(100)

	notional := sellPct.Div(hundred).Mul(sellPrice).Mul(filled).Round(places)

	fee := decimal.NewFromFloat(p.SellFee)
	if p.SellFee == 0 && p.TakerFeeRate > 0 {
		fee = notional.Mul(decimal.NewFromFloat(p.TakerFeeRate)).Round(places)
	}

	value := notional.Sub(fee).Round(places)
	profit := value.Sub(entry).Round(places)
	margin := profit.Div(entry).Mul(hundred).Round(places)

	return Settlement{
		MarginPct: margin.InexactFloat64(),
		Profit:    profit.InexactFloat64(),
		SellFee:   fee.InexactFloat64(),
	}, nil
}

// ChangePct returns the percentage change from old to new as
// (new/old - 1) * 100. It is the single percentage convention used by the
// strategy evaluator; no rounding is applied.
func ChangePct(newValue, oldValue float64) float64 {
	if oldValue == 0 {
		return 0
	}
	return (newValue/oldValue - 1) * 100
}
