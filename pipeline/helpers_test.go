package pipeline

import (
	"testing"

	"github.com/shopspring/decimal"
)

// mustDecimal 测试用 decimal 构造
func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("无效的 decimal 字面量 %q: %v", s, err)
	}
	return d
}

// fill 构造一个成交事件
func fill(id string, ts int64, side Side, price, qty string) RawEvent {
	return RawEvent{
		Kind:      EventKindFill,
		ID:        id,
		Timestamp: ts,
		Side:      side,
		Price:     decimal.RequireFromString(price),
		Quantity:  decimal.RequireFromString(qty),
	}
}

// fillWithFee 构造一个带手续费的成交事件
func fillWithFee(id string, ts int64, side Side, price, qty, fee string) RawEvent {
	evt := fill(id, ts, side, price, qty)
	evt.Fee = decimal.RequireFromString(fee)
	return evt
}

// income 构造一个资金流水事件
func income(id string, ts int64, amount string) RawEvent {
	return RawEvent{
		Kind:        EventKindIncome,
		ID:          id,
		Timestamp:   ts,
		RealizedPnl: decimal.RequireFromString(amount),
		IncomeType:  "FUNDING_FEE",
	}
}

// withInstrument 设置事件品种
func withInstrument(evt RawEvent, instrument string) RawEvent {
	evt.Instrument = instrument
	return evt
}
