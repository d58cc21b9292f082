package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"tradesync/exchange"
	"tradesync/logger"

	"github.com/shopspring/decimal"
)

// Normalizer 事件规范化器
// 把交易所三类原始记录映射为统一的 RawEvent 流：纯函数，无副作用
// 单条坏记录只丢弃计数，绝不中断整个批次
type Normalizer struct{}

// NewNormalizer 创建规范化器
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize 规范化一个批次
// 返回按 (时间戳, 事件ID) 升序排列、批内去重后的事件序列，以及丢弃的坏记录数
func (n *Normalizer) Normalize(batch *exchange.RawBatch) ([]RawEvent, int) {
	if batch == nil {
		return nil, 0
	}

	events := make([]RawEvent, 0, len(batch.Fills)+len(batch.Orders)+len(batch.Incomes))
	seen := make(map[string]bool)
	dropped := 0

	for _, fill := range batch.Fills {
		evt, err := n.normalizeFill(fill)
		if err != nil {
			logger.Debug("🗑️ 丢弃坏成交记录 (id=%d): %v", fill.ID, err)
			dropped++
			continue
		}
		if seen[evt.ID] {
			continue
		}
		seen[evt.ID] = true
		events = append(events, evt)
	}

	for _, order := range batch.Orders {
		evt, err := n.normalizeOrder(order)
		if err != nil {
			logger.Debug("🗑️ 丢弃坏订单记录 (id=%d): %v", order.OrderID, err)
			dropped++
			continue
		}
		if seen[evt.ID] {
			continue
		}
		seen[evt.ID] = true
		events = append(events, evt)
	}

	for _, income := range batch.Incomes {
		evt, err := n.normalizeIncome(income)
		if err != nil {
			logger.Debug("🗑️ 丢弃坏流水记录 (id=%d): %v", income.TranID, err)
			dropped++
			continue
		}
		if seen[evt.ID] {
			continue
		}
		seen[evt.ID] = true
		events = append(events, evt)
	}

	// 按时间升序排序，时间相同时按事件 ID 升序，保证重放时结果确定
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp != events[j].Timestamp {
			return events[i].Timestamp < events[j].Timestamp
		}
		return events[i].ID < events[j].ID
	})

	return events, dropped
}

func (n *Normalizer) normalizeFill(fill exchange.RawFill) (RawEvent, error) {
	if fill.ID == 0 {
		return RawEvent{}, fmt.Errorf("缺少成交 ID")
	}
	if fill.Symbol == "" {
		return RawEvent{}, fmt.Errorf("缺少交易对")
	}
	if fill.Time <= 0 {
		return RawEvent{}, fmt.Errorf("缺少时间戳")
	}

	side, err := parseSide(fill.Side)
	if err != nil {
		return RawEvent{}, err
	}

	price, err := decimal.NewFromString(fill.Price)
	if err != nil {
		return RawEvent{}, fmt.Errorf("价格解析失败: %v", err)
	}
	qty, err := decimal.NewFromString(fill.Quantity)
	if err != nil {
		return RawEvent{}, fmt.Errorf("数量解析失败: %v", err)
	}
	if price.Sign() <= 0 || qty.Sign() <= 0 {
		return RawEvent{}, fmt.Errorf("价格或数量非正")
	}

	fee := decimal.Zero
	if fill.Commission != "" {
		fee, err = decimal.NewFromString(fill.Commission)
		if err != nil {
			return RawEvent{}, fmt.Errorf("手续费解析失败: %v", err)
		}
	}

	pnl := decimal.Zero
	if fill.RealizedPnl != "" {
		pnl, err = decimal.NewFromString(fill.RealizedPnl)
		if err != nil {
			return RawEvent{}, fmt.Errorf("已实现盈亏解析失败: %v", err)
		}
	}

	return RawEvent{
		Kind:        EventKindFill,
		ID:          eventID("f", fill.Symbol, fill.ID),
		Instrument:  fill.Symbol,
		Timestamp:   fill.Time,
		Side:        side,
		Price:       price,
		Quantity:    qty,
		Fee:         fee,
		FeeAsset:    fill.CommissionAsset,
		RealizedPnl: pnl,
	}, nil
}

func (n *Normalizer) normalizeOrder(order exchange.RawOrder) (RawEvent, error) {
	if order.OrderID == 0 {
		return RawEvent{}, fmt.Errorf("缺少订单 ID")
	}
	if order.Symbol == "" {
		return RawEvent{}, fmt.Errorf("缺少交易对")
	}

	ts := order.UpdateTime
	if ts <= 0 {
		ts = order.Time
	}
	if ts <= 0 {
		return RawEvent{}, fmt.Errorf("缺少时间戳")
	}

	side, err := parseSide(order.Side)
	if err != nil {
		return RawEvent{}, err
	}

	price := decimal.Zero
	if order.AvgPrice != "" {
		price, err = decimal.NewFromString(order.AvgPrice)
		if err != nil {
			return RawEvent{}, fmt.Errorf("均价解析失败: %v", err)
		}
	}

	qty := decimal.Zero
	if order.ExecutedQty != "" {
		qty, err = decimal.NewFromString(order.ExecutedQty)
		if err != nil {
			return RawEvent{}, fmt.Errorf("成交数量解析失败: %v", err)
		}
	}

	return RawEvent{
		Kind:       EventKindOrder,
		ID:         eventID("o", order.Symbol, order.OrderID),
		Instrument: order.Symbol,
		Timestamp:  ts,
		Side:       side,
		Price:      price,
		Quantity:   qty,
	}, nil
}

func (n *Normalizer) normalizeIncome(income exchange.RawIncome) (RawEvent, error) {
	if income.TranID == 0 {
		return RawEvent{}, fmt.Errorf("缺少流水 ID")
	}
	if income.Symbol == "" {
		return RawEvent{}, fmt.Errorf("缺少交易对")
	}
	if income.Time <= 0 {
		return RawEvent{}, fmt.Errorf("缺少时间戳")
	}

	amount, err := decimal.NewFromString(income.Income)
	if err != nil {
		return RawEvent{}, fmt.Errorf("金额解析失败: %v", err)
	}

	return RawEvent{
		Kind:        EventKindIncome,
		ID:          eventID("i", income.Symbol, income.TranID),
		Instrument:  income.Symbol,
		Timestamp:   income.Time,
		RealizedPnl: amount,
		FeeAsset:    income.Asset,
		IncomeType:  income.IncomeType,
	}, nil
}

// eventID 构造带类型前缀、品种限定的事件标识
// 交易所的成交/订单 ID 只在单个品种内唯一，去重与溯源必须带上品种；
// 数字部分零填充，字典序与数值序一致
func eventID(kind, symbol string, id int64) string {
	return fmt.Sprintf("%s:%s:%012d", kind, symbol, id)
}

func parseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	default:
		return "", fmt.Errorf("未知方向: %q", s)
	}
}
