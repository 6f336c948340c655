package ledger

import (
	"errors"
	"math"
	"testing"
)

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestSettle(t *testing.T) {
	tests := []struct {
		name       string
		params     SettleParams
		wantMargin float64
		wantProfit float64
		wantFee    float64
	}{
		{
			name: "losing trade with taker fee",
			params: SettleParams{
				EntrySizeQuote: 310.11,
				FilledBase:     8.95,
				EntryPrice:     34.50004,
				EntryFee:       1.080713753,
				SellPercent:    100,
				SellPrice:      30.66693,
				TakerFeeRate:   0.0035,
			},
			wantMargin: -11.80,
			wantProfit: -36.60,
			wantFee:    0.96,
		},
		{
			name: "winning trade",
			params: SettleParams{
				EntrySizeQuote: 1000,
				FilledBase:     0.02,
				EntryPrice:     50000,
				SellPercent:    100,
				SellPrice:      55000,
				TakerFeeRate:   0.001,
			},
			wantMargin: 9.89,
			wantProfit: 98.9,
			wantFee:    1.1,
		},
		{
			name: "explicit fee overrides taker rate",
			params: SettleParams{
				EntrySizeQuote: 1000,
				FilledBase:     0.02,
				SellPercent:    100,
				SellPrice:      55000,
				SellFee:        5,
				TakerFeeRate:   0.001,
			},
			wantMargin: 9.5,
			wantProfit: 95,
			wantFee:    5,
		},
		{
			name: "partial sell",
			params: SettleParams{
				EntrySizeQuote: 1000,
				FilledBase:     0.02,
				SellPercent:    50,
				SellPrice:      55000,
				TakerFeeRate:   0.001,
			},
			wantMargin: -45.055,
			wantProfit: -450.55,
			wantFee:    0.55,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Settle(tt.params)
			if err != nil {
				t.Fatalf("Settle returned error: %v", err)
			}
			if !almostEqual(got.MarginPct, tt.wantMargin, 0.005) {
				t.Errorf("margin = %v, want ≈ %v", got.MarginPct, tt.wantMargin)
			}
			if !almostEqual(got.Profit, tt.wantProfit, 0.005) {
				t.Errorf("profit = %v, want ≈ %v", got.Profit, tt.wantProfit)
			}
			if !almostEqual(got.SellFee, tt.wantFee, 0.005) {
				t.Errorf("sell fee = %v, want ≈ %v", got.SellFee, tt.wantFee)
			}
		})
	}
}

func TestSettleZeroEntry(t *testing.T) {
	_, err := Settle(SettleParams{SellPercent: 100, SellPrice: 100, FilledBase: 1})
	if !errors.Is(err, ErrDivisionUndefined) {
		t.Fatalf("expected ErrDivisionUndefined, got %v", err)
	}
}

func TestSettleDeterministic(t *testing.T) {
	params := SettleParams{
		EntrySizeQuote: 310.11,
		FilledBase:     8.95,
		EntryPrice:     34.50004,
		EntryFee:       1.080713753,
		SellPercent:    100,
		SellPrice:      30.66693,
		TakerFeeRate:   0.0035,
	}

	first, err := Settle(params)
	if err != nil {
		t.Fatalf("Settle returned error: %v", err)
	}
	for i := 0; i < 100; i++ {
		again, err := Settle(params)
		if err != nil {
			t.Fatalf("Settle returned error: %v", err)
		}
		if again != first {
			t.Fatalf("settlement not deterministic: %+v != %+v", again, first)
		}
	}
}

func TestChangePct(t *testing.T) {
	tests := []struct {
		name     string
		newValue float64
		oldValue float64
		want     float64
	}{
		{"gain", 110, 100, 10},
		{"loss", 90, 100, -10},
		{"flat", 100, 100, 0},
		{"zero old value", 50, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChangePct(tt.newValue, tt.oldValue); !almostEqual(got, tt.want, 1e-9) {
				t.Errorf("ChangePct(%v, %v) = %v, want %v", tt.newValue, tt.oldValue, got, tt.want)
			}
		})
	}
}
