package reconcile

import (
	"time"

	"tradesync/logger"
	"tradesync/pipeline"

	"github.com/shopspring/decimal"
)

// Result 对账结果
type Result struct {
	PeriodStart           time.Time
	PeriodEnd             time.Time
	AggregatedTotalPnl    decimal.Decimal // 本地聚合净盈亏合计（盈亏减手续费）
	VenueReportedTotalPnl decimal.Decimal // 交易所独立口径的周期合计
	Delta                 decimal.Decimal // 本地减交易所
	WithinTolerance       bool
}

// Tolerance 容差配置
// 容差 = max(绝对容差, 相对容差 × |交易所合计|)
type Tolerance struct {
	AbsoluteEpsilon decimal.Decimal
	RelativeEpsilon decimal.Decimal
}

// Reconciler 对账器
// 把聚合结果的周期合计与交易所独立上报的合计做交叉核对
// 超出容差只产生观测信号（告警 + 落库），不回滚已写入的聚合交易
type Reconciler struct {
	tol Tolerance
}

// NewReconciler 创建对账器
func NewReconciler(absoluteEpsilon, relativeEpsilon float64) *Reconciler {
	return &Reconciler{
		tol: Tolerance{
			AbsoluteEpsilon: decimal.NewFromFloat(absoluteEpsilon),
			RelativeEpsilon: decimal.NewFromFloat(relativeEpsilon),
		},
	}
}

// Reconcile 执行对账
// 只统计 closedAt 落在周期内的有效聚合交易
func (r *Reconciler) Reconcile(trades []*pipeline.AggregatedTrade, venueTotal decimal.Decimal, periodStart, periodEnd time.Time) Result {
	aggregated := decimal.Zero
	counted := 0

	for _, trade := range trades {
		if trade == nil {
			continue
		}
		if trade.ClosedAt.Before(periodStart) || trade.ClosedAt.After(periodEnd) {
			continue
		}
		aggregated = aggregated.Add(trade.NetPnl())
		counted++
	}

	delta := aggregated.Sub(venueTotal)

	// 容差取绝对与相对中较大者
	threshold := r.tol.RelativeEpsilon.Mul(venueTotal.Abs())
	if r.tol.AbsoluteEpsilon.GreaterThan(threshold) {
		threshold = r.tol.AbsoluteEpsilon
	}

	within := delta.Abs().LessThanOrEqual(threshold)

	if within {
		logger.Debug("🔍 [对账] 周期 %s ~ %s: 本地 %s vs 交易所 %s (差值 %s, %d 笔) ✅",
			periodStart.Format(time.RFC3339), periodEnd.Format(time.RFC3339),
			aggregated.String(), venueTotal.String(), delta.String(), counted)
	} else {
		logger.Warn("⚠️ [对账不平] 周期 %s ~ %s: 本地 %s vs 交易所 %s (差值 %s, 容差 %s)",
			periodStart.Format(time.RFC3339), periodEnd.Format(time.RFC3339),
			aggregated.String(), venueTotal.String(), delta.String(), threshold.String())
	}

	return Result{
		PeriodStart:           periodStart,
		PeriodEnd:             periodEnd,
		AggregatedTotalPnl:    aggregated,
		VenueReportedTotalPnl: venueTotal,
		Delta:                 delta,
		WithinTolerance:       within,
	}
}
