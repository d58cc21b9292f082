package exchange

import (
	"context"
	"time"
)

// RawFill 原始成交记录（交易所返回的字符串字段原样保留，由规范化阶段解析）
type RawFill struct {
	ID              int64  `json:"id"`
	OrderID         int64  `json:"order_id"`
	Symbol          string `json:"symbol"`
	Side            string `json:"side"` // BUY, SELL
	Price           string `json:"price"`
	Quantity        string `json:"qty"`
	QuoteQuantity   string `json:"quote_qty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commission_asset"`
	RealizedPnl     string `json:"realized_pnl"`
	Time            int64  `json:"time"` // 毫秒时间戳
}

// RawOrder 原始订单记录
type RawOrder struct {
	OrderID      int64  `json:"order_id"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	Status       string `json:"status"` // NEW, FILLED, CANCELED...
	Price        string `json:"price"`
	AvgPrice     string `json:"avg_price"`
	ExecutedQty  string `json:"executed_qty"`
	Time         int64  `json:"time"`
	UpdateTime   int64  `json:"update_time"`
}

// RawIncome 原始资金流水记录（资金费率、返佣等）
type RawIncome struct {
	TranID     int64  `json:"tran_id"`
	Symbol     string `json:"symbol"`
	IncomeType string `json:"income_type"` // FUNDING_FEE, COMMISSION_REBATE...
	Income     string `json:"income"`
	Asset      string `json:"asset"`
	Time       int64  `json:"time"`
}

// RawBatch 一次同步窗口内拉取的全部原始记录
type RawBatch struct {
	Fills   []RawFill
	Orders  []RawOrder
	Incomes []RawIncome
}

// Window 同步时间窗口
type Window struct {
	Start time.Time
	End   time.Time
}

// Fetcher 交易所数据拉取接口
// 三类数据相互独立，编排器会并发拉取；任一失败视为本次同步失败
type Fetcher interface {
	FetchFills(ctx context.Context, symbol string, w Window) ([]RawFill, error)
	FetchOrders(ctx context.Context, symbol string, w Window) ([]RawOrder, error)
	FetchIncome(ctx context.Context, symbol string, w Window) ([]RawIncome, error)

	// FetchPeriodIncomeTotal 独立口径的周期净收益合计（用于对账）
	FetchPeriodIncomeTotal(ctx context.Context, symbol string, w Window) (string, error)

	GetName() string
}
