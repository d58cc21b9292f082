package pipeline

import (
	"sort"

	"tradesync/logger"

	"github.com/shopspring/decimal"
)

// Grouper 生命周期划分器
// 按品种维护带符号的运行仓位：仓位从零变为非零时开启生命周期，
// 回到恰好为零时关闭。输入为超集时（重放），已关闭部分的边界保持不变
type Grouper struct{}

// NewGrouper 创建划分器
func NewGrouper() *Grouper {
	return &Grouper{}
}

// instrumentState 单个品种的划分状态
type instrumentState struct {
	size    decimal.Decimal
	current *PositionLifecycle
}

// Group 把时间有序的事件流划分为生命周期
// 返回已关闭的生命周期（可聚合）与未完结的生命周期（仓位未归零，暂不聚合）
func (g *Grouper) Group(events []RawEvent) (closed []*PositionLifecycle, open []*PositionLifecycle) {
	// 防御性重排：调用方应已排序，这里保证划分自身的确定性
	sorted := make([]RawEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Timestamp != sorted[j].Timestamp {
			return sorted[i].Timestamp < sorted[j].Timestamp
		}
		return sorted[i].ID < sorted[j].ID
	})

	states := make(map[string]*instrumentState)

	for _, evt := range sorted {
		st, ok := states[evt.Instrument]
		if !ok {
			st = &instrumentState{size: decimal.Zero}
			states[evt.Instrument] = st
		}

		switch evt.Kind {
		case EventKindFill:
			if st.current == nil {
				// 仓位从零开仓，开启新生命周期
				st.current = &PositionLifecycle{Instrument: evt.Instrument}
			}
			st.current.Events = append(st.current.Events, evt)
			st.size = st.size.Add(evt.SignedQuantity())

			if st.size.IsZero() {
				// 仓位回到零，生命周期完结
				st.current.Closed = true
				closed = append(closed, st.current)
				st.current = nil
			}

		case EventKindOrder:
			// 订单事件不改变仓位，只作为持仓期间的溯源补充
			if st.current != nil {
				st.current.Events = append(st.current.Events, evt)
			}

		case EventKindIncome:
			if st.current != nil {
				st.current.Events = append(st.current.Events, evt)
				continue
			}
			// 无持仓期间的资金流水（如结算后的资金费）自成一条零持续时间的调整记录
			closed = append(closed, &PositionLifecycle{
				Instrument: evt.Instrument,
				Events:     []RawEvent{evt},
				Closed:     true,
			})
		}
	}

	// 流结束时仓位未归零的生命周期标记为未完结，按品种名排序保证输出确定
	instruments := make([]string, 0, len(states))
	for name := range states {
		instruments = append(instruments, name)
	}
	sort.Strings(instruments)

	for _, name := range instruments {
		st := states[name]
		if st.current != nil {
			logger.Debug("⏳ [%s] 生命周期未完结（剩余仓位 %s），本次不聚合", name, st.size.String())
			open = append(open, st.current)
		}
	}

	return closed, open
}
