package reconcile

import (
	"testing"
	"time"

	"tradesync/pipeline"

	"github.com/shopspring/decimal"
)

func trade(pnl, fees string, closedAt time.Time) *pipeline.AggregatedTrade {
	return &pipeline.AggregatedTrade{
		AccountID:      "acc-1",
		Instrument:     "BTCUSDT",
		Direction:      pipeline.DirectionLong,
		RealizedPnl:    decimal.RequireFromString(pnl),
		TotalFees:      decimal.RequireFromString(fees),
		ClosedAt:       closedAt,
		SourceEventIDs: []string{"f:1"},
	}
}

func TestReconciler_Reconcile_WithinAbsoluteTolerance(t *testing.T) {
	r := NewReconciler(0.01, 0.0001)

	start := time.UnixMilli(0)
	end := start.Add(24 * time.Hour)
	trades := []*pipeline.AggregatedTrade{
		trade("100.2", "0.2", start.Add(time.Hour)), // 净盈亏 100
	}

	// 差值 -0.004，落在绝对容差 0.01 内
	result := r.Reconcile(trades, decimal.RequireFromString("100.004"), start, end)
	if !result.WithinTolerance {
		t.Errorf("差值 %s 应在容差内", result.Delta)
	}
	if !result.AggregatedTotalPnl.Equal(decimal.RequireFromString("100")) {
		t.Errorf("期望本地合计 100, 实际 %s", result.AggregatedTotalPnl)
	}
}

func TestReconciler_Reconcile_MismatchOutsideTolerance(t *testing.T) {
	r := NewReconciler(0.01, 0.0001)

	start := time.UnixMilli(0)
	end := start.Add(24 * time.Hour)
	trades := []*pipeline.AggregatedTrade{
		trade("100", "0", start.Add(time.Hour)),
	}

	result := r.Reconcile(trades, decimal.RequireFromString("101.00"), start, end)
	if result.WithinTolerance {
		t.Error("差值 1.00 应超出容差")
	}
	if !result.Delta.Equal(decimal.RequireFromString("-1")) {
		t.Errorf("期望差值 -1, 实际 %s", result.Delta)
	}
}

func TestReconciler_Reconcile_RelativeToleranceDominates(t *testing.T) {
	r := NewReconciler(0.01, 0.0001)

	start := time.UnixMilli(0)
	end := start.Add(24 * time.Hour)
	trades := []*pipeline.AggregatedTrade{
		trade("10000.5", "0", start.Add(time.Hour)),
	}

	// 相对容差 0.0001 × 10000 = 1.0 > 绝对容差 0.01，差值 0.5 落在其中
	result := r.Reconcile(trades, decimal.RequireFromString("10000"), start, end)
	if !result.WithinTolerance {
		t.Errorf("大基数下相对容差应生效, 差值 %s", result.Delta)
	}
}

func TestReconciler_Reconcile_ExcludesTradesOutsidePeriod(t *testing.T) {
	r := NewReconciler(0.01, 0.0001)

	start := time.UnixMilli(0).Add(10 * time.Hour)
	end := start.Add(4 * time.Hour)

	trades := []*pipeline.AggregatedTrade{
		trade("50", "0", start.Add(time.Hour)),  // 周期内
		trade("999", "0", start.Add(-time.Hour)), // 周期前
		trade("999", "0", end.Add(time.Hour)),    // 周期后
	}

	result := r.Reconcile(trades, decimal.RequireFromString("50"), start, end)
	if !result.AggregatedTotalPnl.Equal(decimal.RequireFromString("50")) {
		t.Errorf("周期外交易应排除, 实际合计 %s", result.AggregatedTotalPnl)
	}
	if !result.WithinTolerance {
		t.Error("期望对账平衡")
	}
}

func TestReconciler_Reconcile_NegativeVenueTotal(t *testing.T) {
	r := NewReconciler(0.01, 0.0001)

	start := time.UnixMilli(0)
	end := start.Add(time.Hour)
	trades := []*pipeline.AggregatedTrade{
		trade("-42.005", "0", start.Add(time.Minute)),
	}

	// 相对容差基数取绝对值
	result := r.Reconcile(trades, decimal.RequireFromString("-42"), start, end)
	if !result.WithinTolerance {
		t.Errorf("差值 %s 应在容差内 (容差基数 |venue|)", result.Delta)
	}
}

func TestReconciler_Reconcile_EmptyPeriod(t *testing.T) {
	r := NewReconciler(0.01, 0.0001)

	start := time.UnixMilli(0)
	end := start.Add(time.Hour)

	result := r.Reconcile(nil, decimal.Zero, start, end)
	if !result.WithinTolerance {
		t.Error("空周期零合计应对账平衡")
	}
	if !result.Delta.IsZero() {
		t.Errorf("期望差值 0, 实际 %s", result.Delta)
	}
}
