package pipeline

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Aggregator 生命周期聚合器
// 把一个已关闭的生命周期归并为一条聚合交易记录
// 全部金额运算使用 decimal 累加，不同分组方式下的求和结果差异受限于
// decimal 除法精度（shopspring 默认 16 位），远小于对账容差
type Aggregator struct {
	accountID string
}

// NewAggregator 创建聚合器
func NewAggregator(accountID string) *Aggregator {
	return &Aggregator{accountID: accountID}
}

// Aggregate 聚合一个已关闭的生命周期
func (a *Aggregator) Aggregate(lc *PositionLifecycle) (*AggregatedTrade, error) {
	if lc == nil || len(lc.Events) == 0 {
		return nil, fmt.Errorf("生命周期为空")
	}
	if !lc.Closed {
		return nil, fmt.Errorf("生命周期未完结，不能聚合")
	}

	trade := &AggregatedTrade{
		AccountID:   a.accountID,
		Instrument:  lc.Instrument,
		Direction:   DirectionFlat,
		EntryPrice:  decimal.Zero,
		ExitPrice:   decimal.Zero,
		RealizedPnl: decimal.Zero,
		TotalFees:   decimal.Zero,
		OpenedAt:    lc.OpenedAt(),
		ClosedAt:    lc.ClosedAt(),
	}

	// 带符号仓位与移动平均开仓成本
	position := decimal.Zero
	avgEntry := decimal.Zero

	// 开仓/平仓加权均价累加器
	entryNotional, entryQty := decimal.Zero, decimal.Zero
	exitNotional, exitQty := decimal.Zero, decimal.Zero

	for _, evt := range lc.Events {
		trade.SourceEventIDs = append(trade.SourceEventIDs, evt.ID)
		trade.TotalFees = trade.TotalFees.Add(evt.Fee)

		switch evt.Kind {
		case EventKindIncome:
			// 资金流水盈亏直接累加
			trade.RealizedPnl = trade.RealizedPnl.Add(evt.RealizedPnl)

		case EventKindFill:
			if trade.Direction == DirectionFlat {
				// 首笔成交决定交易方向
				if evt.Side == SideBuy {
					trade.Direction = DirectionLong
				} else {
					trade.Direction = DirectionShort
				}
			}

			qty := evt.Quantity
			opening := position.IsZero() || position.Sign() == evt.SignedQuantity().Sign()

			if opening {
				// 开仓/加仓：更新移动平均成本
				total := position.Abs().Add(qty)
				avgEntry = avgEntry.Mul(position.Abs()).Add(evt.Price.Mul(qty)).Div(total)

				entryNotional = entryNotional.Add(evt.Price.Mul(qty))
				entryQty = entryQty.Add(qty)
				position = position.Add(evt.SignedQuantity())
				continue
			}

			// 平仓（可能穿越零点反向开仓）
			closeQty := decimal.Min(position.Abs(), qty)

			// 价差盈亏：多头 (卖价-成本)，空头 (成本-买价)
			diff := evt.Price.Sub(avgEntry)
			if position.Sign() < 0 {
				diff = diff.Neg()
			}
			trade.RealizedPnl = trade.RealizedPnl.Add(diff.Mul(closeQty))

			exitNotional = exitNotional.Add(evt.Price.Mul(closeQty))
			exitQty = exitQty.Add(closeQty)
			position = position.Add(evt.SignedQuantity())

			if remainder := qty.Sub(closeQty); remainder.Sign() > 0 {
				// 穿越零点：剩余数量以本笔价格反向开仓
				avgEntry = evt.Price
				entryNotional = entryNotional.Add(evt.Price.Mul(remainder))
				entryQty = entryQty.Add(remainder)
			}
		}
	}

	if !position.IsZero() {
		return nil, fmt.Errorf("生命周期 [%s] 事件不自洽：剩余仓位 %s", lc.Instrument, position.String())
	}

	trade.TotalQuantity = entryQty
	if entryQty.Sign() > 0 {
		trade.EntryPrice = entryNotional.Div(entryQty)
	}
	if exitQty.Sign() > 0 {
		trade.ExitPrice = exitNotional.Div(exitQty)
	}

	return trade, nil
}
