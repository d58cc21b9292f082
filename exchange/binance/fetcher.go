package binance

import (
	"context"
	"fmt"

	"tradesync/exchange"
	"tradesync/logger"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// 参与对账合计的流水类型（与本地净盈亏口径对应：盈亏 + 资金费 − 手续费 + 返佣）
var reconcileIncomeTypes = map[string]bool{
	"REALIZED_PNL":      true,
	"FUNDING_FEE":       true,
	"COMMISSION":        true,
	"COMMISSION_REBATE": true,
}

// Fetcher 币安 U 本位合约数据拉取器
type Fetcher struct {
	client    *futures.Client
	limiter   *rate.Limiter
	pageLimit int
}

// NewFetcher 创建币安拉取器
func NewFetcher(apiKey, secretKey string, testnet bool, requestsPerSecond float64, pageLimit int) (*Fetcher, error) {
	if apiKey == "" || secretKey == "" {
		return nil, fmt.Errorf("Binance API 配置不完整")
	}

	// 设置测试网模式（必须在创建客户端之前设置）
	futures.UseTestnet = testnet
	if testnet {
		logger.Info("🌐 [Binance] 使用测试网模式")
	}

	client := futures.NewClient(apiKey, secretKey)

	// 同步服务器时间，避免签名请求因时钟偏差被拒
	client.NewSetServerTimeService().Do(context.Background())

	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	if pageLimit <= 0 || pageLimit > 1000 {
		pageLimit = 1000
	}

	return &Fetcher{
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		pageLimit: pageLimit,
	}, nil
}

// GetName 获取交易所名称
func (f *Fetcher) GetName() string {
	return "Binance"
}

// FetchFills 拉取窗口内的全部成交（按成交 ID 翻页）
func (f *Fetcher) FetchFills(ctx context.Context, symbol string, w exchange.Window) ([]exchange.RawFill, error) {
	var fills []exchange.RawFill
	fromID := int64(0)

	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		svc := f.client.NewListAccountTradeService().
			Symbol(symbol).
			Limit(f.pageLimit)
		if fromID > 0 {
			// FromID 与时间窗口互斥，翻页时只带 FromID
			svc = svc.FromID(fromID)
		} else {
			svc = svc.StartTime(w.Start.UnixMilli()).EndTime(w.End.UnixMilli())
		}

		page, err := svc.Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("拉取成交失败 [%s]: %w", symbol, err)
		}

		for _, t := range page {
			if t.Time > w.End.UnixMilli() {
				return fills, nil
			}
			fills = append(fills, exchange.RawFill{
				ID:              t.ID,
				OrderID:         t.OrderID,
				Symbol:          t.Symbol,
				Side:            string(t.Side),
				Price:           t.Price,
				Quantity:        t.Quantity,
				QuoteQuantity:   t.QuoteQuantity,
				Commission:      t.Commission,
				CommissionAsset: t.CommissionAsset,
				RealizedPnl:     t.RealizedPnl,
				Time:            t.Time,
			})
		}

		if len(page) < f.pageLimit {
			return fills, nil
		}
		fromID = page[len(page)-1].ID + 1
	}
}

// FetchOrders 拉取窗口内的全部订单（按更新时间推进翻页）
func (f *Fetcher) FetchOrders(ctx context.Context, symbol string, w exchange.Window) ([]exchange.RawOrder, error) {
	var orders []exchange.RawOrder
	start := w.Start.UnixMilli()

	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		page, err := f.client.NewListOrdersService().
			Symbol(symbol).
			StartTime(start).
			EndTime(w.End.UnixMilli()).
			Limit(f.pageLimit).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("拉取订单失败 [%s]: %w", symbol, err)
		}

		for _, o := range page {
			orders = append(orders, exchange.RawOrder{
				OrderID:     o.OrderID,
				Symbol:      o.Symbol,
				Side:        string(o.Side),
				Status:      string(o.Status),
				Price:       o.Price,
				AvgPrice:    o.AvgPrice,
				ExecutedQty: o.ExecutedQuantity,
				Time:        o.Time,
				UpdateTime:  o.UpdateTime,
			})
		}

		if len(page) < f.pageLimit {
			return orders, nil
		}
		// 同一毫秒内恰好跨页的记录可能被跳过，可接受（订单事件只作溯源补充）
		start = page[len(page)-1].Time + 1
	}
}

// FetchIncome 拉取窗口内的资金流水（资金费、返佣等，不含已实现盈亏本身）
func (f *Fetcher) FetchIncome(ctx context.Context, symbol string, w exchange.Window) ([]exchange.RawIncome, error) {
	records, err := f.fetchIncomeRecords(ctx, symbol, w)
	if err != nil {
		return nil, err
	}

	var incomes []exchange.RawIncome
	for _, r := range records {
		// REALIZED_PNL 与 COMMISSION 已由成交事件覆盖，重复计入会使盈亏翻倍
		if r.IncomeType == "REALIZED_PNL" || r.IncomeType == "COMMISSION" {
			continue
		}
		incomes = append(incomes, r)
	}
	return incomes, nil
}

// FetchPeriodIncomeTotal 独立口径的周期净收益合计（用于对账）
func (f *Fetcher) FetchPeriodIncomeTotal(ctx context.Context, symbol string, w exchange.Window) (string, error) {
	records, err := f.fetchIncomeRecords(ctx, symbol, w)
	if err != nil {
		return "", err
	}

	total := decimal.Zero
	for _, r := range records {
		if !reconcileIncomeTypes[r.IncomeType] {
			continue
		}
		amount, err := decimal.NewFromString(r.Income)
		if err != nil {
			logger.Debug("🗑️ [Binance] 流水金额解析失败 (tranId=%d): %v", r.TranID, err)
			continue
		}
		total = total.Add(amount)
	}

	return total.String(), nil
}

// fetchIncomeRecords 拉取窗口内的全部流水记录（按时间推进翻页）
func (f *Fetcher) fetchIncomeRecords(ctx context.Context, symbol string, w exchange.Window) ([]exchange.RawIncome, error) {
	var records []exchange.RawIncome
	start := w.Start.UnixMilli()

	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		page, err := f.client.NewGetIncomeHistoryService().
			Symbol(symbol).
			StartTime(start).
			EndTime(w.End.UnixMilli()).
			Limit(int64(f.pageLimit)).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("拉取流水失败 [%s]: %w", symbol, err)
		}

		for _, r := range page {
			records = append(records, exchange.RawIncome{
				TranID:     r.TranID,
				Symbol:     r.Symbol,
				IncomeType: r.IncomeType,
				Income:     r.Income,
				Asset:      r.Asset,
				Time:       r.Time,
			})
		}

		if len(page) < f.pageLimit {
			return records, nil
		}
		start = page[len(page)-1].Time + 1
	}
}

// 保证接口实现
var _ exchange.Fetcher = (*Fetcher)(nil)
