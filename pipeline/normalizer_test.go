package pipeline

import (
	"testing"

	"tradesync/exchange"
)

func TestNormalizer_Normalize_FillMapping(t *testing.T) {
	n := NewNormalizer()

	batch := &exchange.RawBatch{
		Fills: []exchange.RawFill{
			{ID: 101, Symbol: "BTCUSDT", Side: "BUY", Price: "50000.5", Quantity: "0.002",
				Commission: "0.04", CommissionAsset: "USDT", RealizedPnl: "0", Time: 1700000000000},
		},
	}

	events, dropped := n.Normalize(batch)
	if dropped != 0 {
		t.Fatalf("期望无丢弃, 实际丢弃 %d", dropped)
	}
	if len(events) != 1 {
		t.Fatalf("期望 1 个事件, 实际 %d", len(events))
	}

	evt := events[0]
	if evt.Kind != EventKindFill {
		t.Errorf("期望类型 FILL, 实际 %s", evt.Kind)
	}
	if evt.ID != "f:BTCUSDT:000000000101" {
		t.Errorf("期望事件 ID f:BTCUSDT:000000000101, 实际 %s", evt.ID)
	}
	if evt.Side != SideBuy {
		t.Errorf("期望方向 BUY, 实际 %s", evt.Side)
	}
	if !evt.Price.Equal(mustDecimal(t, "50000.5")) {
		t.Errorf("价格映射错误: %s", evt.Price)
	}
	if !evt.Fee.Equal(mustDecimal(t, "0.04")) {
		t.Errorf("手续费映射错误: %s", evt.Fee)
	}
}

func TestNormalizer_Normalize_DropsBadRecords(t *testing.T) {
	n := NewNormalizer()

	batch := &exchange.RawBatch{
		Fills: []exchange.RawFill{
			// 正常记录
			{ID: 1, Symbol: "BTCUSDT", Side: "BUY", Price: "100", Quantity: "1", Time: 1000},
			// 价格解析失败
			{ID: 2, Symbol: "BTCUSDT", Side: "BUY", Price: "abc", Quantity: "1", Time: 1000},
			// 缺少交易对
			{ID: 3, Symbol: "", Side: "BUY", Price: "100", Quantity: "1", Time: 1000},
			// 未知方向
			{ID: 4, Symbol: "BTCUSDT", Side: "HOLD", Price: "100", Quantity: "1", Time: 1000},
			// 数量非正
			{ID: 5, Symbol: "BTCUSDT", Side: "SELL", Price: "100", Quantity: "0", Time: 1000},
		},
		Incomes: []exchange.RawIncome{
			// 金额解析失败
			{TranID: 9, Symbol: "BTCUSDT", IncomeType: "FUNDING_FEE", Income: "??", Time: 1000},
		},
	}

	events, dropped := n.Normalize(batch)
	if dropped != 5 {
		t.Errorf("期望丢弃 5 条, 实际 %d", dropped)
	}
	if len(events) != 1 {
		t.Fatalf("期望保留 1 个事件, 实际 %d", len(events))
	}
	if events[0].ID != "f:BTCUSDT:000000000001" {
		t.Errorf("保留的事件错误: %s", events[0].ID)
	}
}

func TestNormalizer_Normalize_Dedup(t *testing.T) {
	n := NewNormalizer()

	// 同一成交在重叠窗口内被拉取两次
	fill := exchange.RawFill{ID: 7, Symbol: "ETHUSDT", Side: "SELL", Price: "3000", Quantity: "1", Time: 2000}
	batch := &exchange.RawBatch{
		Fills: []exchange.RawFill{fill, fill},
		Incomes: []exchange.RawIncome{
			{TranID: 7, Symbol: "ETHUSDT", IncomeType: "FUNDING_FEE", Income: "-0.1", Time: 2000},
		},
	}

	events, dropped := n.Normalize(batch)
	if dropped != 0 {
		t.Errorf("去重不应计入丢弃, 实际 %d", dropped)
	}
	// 成交与流水同为 ID 7，但类型前缀不同，不会互相吞掉
	if len(events) != 2 {
		t.Fatalf("期望 2 个事件 (成交去重后 + 流水), 实际 %d", len(events))
	}
}

func TestNormalizer_Normalize_SameIDAcrossInstruments(t *testing.T) {
	n := NewNormalizer()

	// 交易所的成交 ID 只在单个品种内唯一：不同品种撞号的成交都是真实数据
	batch := &exchange.RawBatch{
		Fills: []exchange.RawFill{
			{ID: 12345, Symbol: "BTCUSDT", Side: "BUY", Price: "50000", Quantity: "1", Time: 1000},
			{ID: 12345, Symbol: "ETHUSDT", Side: "SELL", Price: "3000", Quantity: "2", Time: 2000},
		},
	}

	events, dropped := n.Normalize(batch)
	if dropped != 0 {
		t.Errorf("撞号成交不应计入丢弃, 实际 %d", dropped)
	}
	if len(events) != 2 {
		t.Fatalf("不同品种的同号成交应各自保留, 期望 2 个事件, 实际 %d", len(events))
	}
	if events[0].ID == events[1].ID {
		t.Errorf("不同品种的事件 ID 不应相同: %s", events[0].ID)
	}
}

func TestNormalizer_Normalize_DeterministicOrder(t *testing.T) {
	n := NewNormalizer()

	// 乱序输入：时间倒序 + 同一时间戳多个事件
	// 同毫秒内 ID 2 与 10 必须按数值升序排列（零填充保证字典序即数值序）
	batch := &exchange.RawBatch{
		Fills: []exchange.RawFill{
			{ID: 30, Symbol: "BTCUSDT", Side: "BUY", Price: "100", Quantity: "1", Time: 3000},
			{ID: 1, Symbol: "BTCUSDT", Side: "BUY", Price: "100", Quantity: "1", Time: 1000},
			{ID: 10, Symbol: "BTCUSDT", Side: "SELL", Price: "100", Quantity: "1", Time: 2000},
			{ID: 2, Symbol: "BTCUSDT", Side: "BUY", Price: "100", Quantity: "1", Time: 2000},
		},
	}

	events, _ := n.Normalize(batch)
	want := []string{
		"f:BTCUSDT:000000000001",
		"f:BTCUSDT:000000000002",
		"f:BTCUSDT:000000000010",
		"f:BTCUSDT:000000000030",
	}
	if len(events) != len(want) {
		t.Fatalf("期望 %d 个事件, 实际 %d", len(want), len(events))
	}
	for i, id := range want {
		if events[i].ID != id {
			t.Errorf("位置 %d 期望 %s, 实际 %s", i, id, events[i].ID)
		}
	}
}

func TestNormalizer_Normalize_OrderFallbackTimestamp(t *testing.T) {
	n := NewNormalizer()

	batch := &exchange.RawBatch{
		Orders: []exchange.RawOrder{
			// UpdateTime 缺失时回退到 Time
			{OrderID: 55, Symbol: "BTCUSDT", Side: "BUY", Status: "FILLED",
				AvgPrice: "100", ExecutedQty: "1", Time: 4000, UpdateTime: 0},
		},
	}

	events, dropped := n.Normalize(batch)
	if dropped != 0 || len(events) != 1 {
		t.Fatalf("期望 1 个事件无丢弃, 实际 %d 个 / 丢弃 %d", len(events), dropped)
	}
	if events[0].Timestamp != 4000 {
		t.Errorf("期望时间戳 4000, 实际 %d", events[0].Timestamp)
	}
	if events[0].ID != "o:BTCUSDT:000000000055" {
		t.Errorf("期望事件 ID o:BTCUSDT:000000000055, 实际 %s", events[0].ID)
	}
}
