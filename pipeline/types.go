package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EventKind 规范化事件类型
type EventKind string

const (
	EventKindFill   EventKind = "FILL"
	EventKindOrder  EventKind = "ORDER"
	EventKindIncome EventKind = "INCOME"
)

// Side 买卖方向
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// RawEvent 规范化后的交易所事件
// 所有金额字段使用 decimal，避免大量小额成交累加时的浮点漂移
type RawEvent struct {
	Kind        EventKind
	ID          string // 事件唯一标识（类型前缀 + 品种 + 零填充交易所 ID），用于去重与溯源
	Instrument  string
	Timestamp   int64 // 毫秒
	Side        Side
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	Fee         decimal.Decimal
	FeeAsset    string
	RealizedPnl decimal.Decimal
	IncomeType  string
}

// Time 事件时间
func (e *RawEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// SignedQuantity 带符号的仓位变化量（买正卖负，非成交事件为零）
func (e *RawEvent) SignedQuantity() decimal.Decimal {
	if e.Kind != EventKindFill {
		return decimal.Zero
	}
	if e.Side == SideSell {
		return e.Quantity.Neg()
	}
	return e.Quantity
}

// PositionLifecycle 持仓生命周期：一个品种从开仓到完全平仓的连续事件段
type PositionLifecycle struct {
	Instrument string
	Events     []RawEvent
	Closed     bool // 仓位是否已回到零
}

// OpenedAt 生命周期起始时间
func (lc *PositionLifecycle) OpenedAt() time.Time {
	if len(lc.Events) == 0 {
		return time.Time{}
	}
	return lc.Events[0].Time()
}

// ClosedAt 生命周期结束时间
func (lc *PositionLifecycle) ClosedAt() time.Time {
	if len(lc.Events) == 0 {
		return time.Time{}
	}
	return lc.Events[len(lc.Events)-1].Time()
}

// Direction 聚合交易方向
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	// DirectionFlat 仅含资金流水事件的调整记录（无成交，零持续时间）
	DirectionFlat Direction = "flat"
)

// AggregatedTrade 聚合交易：一个已平仓生命周期的经济结果汇总
type AggregatedTrade struct {
	AccountID      string
	Instrument     string
	Direction      Direction
	EntryPrice     decimal.Decimal // 开仓成交的数量加权均价
	ExitPrice      decimal.Decimal // 平仓成交的数量加权均价
	TotalQuantity  decimal.Decimal // 开仓方向成交数量合计
	RealizedPnl    decimal.Decimal // 成交价差盈亏 + 资金流水盈亏（不含手续费）
	TotalFees      decimal.Decimal // 全部事件手续费合计（不做币种换算）
	OpenedAt       time.Time
	ClosedAt       time.Time
	SourceEventIDs []string // 溯源事件集合，幂等写入的依据
}

// NetPnl 净盈亏（盈亏减手续费），对账口径
func (t *AggregatedTrade) NetPnl() decimal.Decimal {
	return t.RealizedPnl.Sub(t.TotalFees)
}

// SourceHash 溯源集合的规范化哈希
// 排序后逗号拼接再取 sha256，与事件输入顺序无关，作为幂等写入的唯一键
func (t *AggregatedTrade) SourceHash() string {
	ids := make([]string, len(t.SourceEventIDs))
	copy(ids, t.SourceEventIDs)
	sort.Strings(ids)

	sum := sha256.Sum256([]byte(strings.Join(ids, ",")))
	return hex.EncodeToString(sum[:])
}

// ValidationStatus 校验结果状态
type ValidationStatus string

const (
	ValidationValid    ValidationStatus = "valid"
	ValidationRejected ValidationStatus = "rejected"
)

// ValidationOutcome 单笔聚合交易的校验结果
type ValidationOutcome struct {
	Trade   *AggregatedTrade
	Status  ValidationStatus
	Reasons []string
}
