package pipeline

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validTrade() *AggregatedTrade {
	return &AggregatedTrade{
		AccountID:      "acc-1",
		Instrument:     "BTCUSDT",
		Direction:      DirectionLong,
		EntryPrice:     decimal.RequireFromString("100"),
		ExitPrice:      decimal.RequireFromString("110"),
		TotalQuantity:  decimal.RequireFromString("2"),
		RealizedPnl:    decimal.RequireFromString("20"),
		OpenedAt:       time.UnixMilli(1000),
		ClosedAt:       time.UnixMilli(2000),
		SourceEventIDs: []string{"f:1", "f:2"},
	}
}

func TestValidator_Validate_AcceptsValidTrade(t *testing.T) {
	v := NewValidator()

	outcome := v.Validate(validTrade())
	if outcome.Status != ValidationValid {
		t.Errorf("期望通过校验, 实际被拒绝: %v", outcome.Reasons)
	}
}

func TestValidator_Validate_Rejections(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name   string
		mutate func(*AggregatedTrade)
	}{
		{"空溯源集合", func(tr *AggregatedTrade) { tr.SourceEventIDs = nil }},
		{"结束早于开始", func(tr *AggregatedTrade) { tr.ClosedAt = tr.OpenedAt.Add(-time.Second) }},
		{"开仓价非正", func(tr *AggregatedTrade) { tr.EntryPrice = decimal.Zero }},
		{"平仓价非正", func(tr *AggregatedTrade) { tr.ExitPrice = decimal.RequireFromString("-1") }},
		{"数量非正", func(tr *AggregatedTrade) { tr.TotalQuantity = decimal.Zero }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade := validTrade()
			tt.mutate(trade)

			outcome := v.Validate(trade)
			if outcome.Status != ValidationRejected {
				t.Errorf("期望被拒绝")
			}
			if len(outcome.Reasons) == 0 {
				t.Errorf("拒绝必须给出原因")
			}
		})
	}
}

func TestValidator_Validate_FlatTradeExemptFromPriceRules(t *testing.T) {
	v := NewValidator()

	// 纯资金流水调整记录没有成交，价格数量全为零仍然有效
	trade := &AggregatedTrade{
		AccountID:      "acc-1",
		Instrument:     "BTCUSDT",
		Direction:      DirectionFlat,
		RealizedPnl:    decimal.RequireFromString("0.5"),
		OpenedAt:       time.UnixMilli(1000),
		ClosedAt:       time.UnixMilli(1000),
		SourceEventIDs: []string{"i:1"},
	}

	outcome := v.Validate(trade)
	if outcome.Status != ValidationValid {
		t.Errorf("flat 调整记录应通过校验, 实际: %v", outcome.Reasons)
	}
}

func TestValidator_Validate_NilTrade(t *testing.T) {
	v := NewValidator()

	outcome := v.Validate(nil)
	if outcome.Status != ValidationRejected {
		t.Error("nil 交易应被拒绝")
	}
}
