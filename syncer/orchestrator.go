package syncer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"tradesync/config"
	"tradesync/database"
	"tradesync/exchange"
	"tradesync/lock"
	"tradesync/logger"
	"tradesync/metrics"
	"tradesync/notify"
	"tradesync/pipeline"
	"tradesync/reconcile"

	"github.com/shopspring/decimal"
)

// Orchestrator 同步编排器
// 一次同步 = 拉取 → 规范化 → 生命周期分组 → 聚合 → 校验 → 幂等入库 → 对账
// 启动前依次通过三道闸门：单飞锁（同账户互斥，不排队）、退避窗口（可强制绕过）、每日配额
type Orchestrator struct {
	mu         sync.RWMutex
	cfg        *config.Config
	reconciler *reconcile.Reconciler

	db       database.Database
	locker   lock.DistributedLock
	quota    QuotaStore
	monitor  *Monitor
	notifier *notify.NotificationService
	fetchers map[string]exchange.Fetcher

	normalizer *pipeline.Normalizer
	grouper    *pipeline.Grouper
	validator  *pipeline.Validator
}

// NewOrchestrator 创建同步编排器
func NewOrchestrator(
	cfg *config.Config,
	db database.Database,
	locker lock.DistributedLock,
	quota QuotaStore,
	monitor *Monitor,
	notifier *notify.NotificationService,
	fetchers map[string]exchange.Fetcher,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		reconciler: reconcile.NewReconciler(cfg.Reconcile.AbsoluteEpsilon, cfg.Reconcile.RelativeEpsilon),
		db:         db,
		locker:     locker,
		quota:      quota,
		monitor:    monitor,
		notifier:   notifier,
		fetchers:   fetchers,
		normalizer: pipeline.NewNormalizer(),
		grouper:    pipeline.NewGrouper(),
		validator:  pipeline.NewValidator(),
	}
}

// UpdateConfig 热更新配置（容差、窗口等，不重建交易所连接）
func (o *Orchestrator) UpdateConfig(cfg *config.Config) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg = cfg
	o.reconciler = reconcile.NewReconciler(cfg.Reconcile.AbsoluteEpsilon, cfg.Reconcile.RelativeEpsilon)
}

// config 读取当前配置快照
func (o *Orchestrator) config() (*config.Config, *reconcile.Reconciler) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg, o.reconciler
}

// account 查找账户配置及其交易所拉取器
func (o *Orchestrator) account(accountID string) (config.AccountConfig, exchange.Fetcher, error) {
	cfg, _ := o.config()
	for _, acc := range cfg.Accounts {
		if acc.ID == accountID {
			fetcher, ok := o.fetchers[acc.Exchange]
			if !ok {
				return acc, nil, fmt.Errorf("账户 %s 的交易所 %s 未初始化", accountID, acc.Exchange)
			}
			return acc, fetcher, nil
		}
	}
	return config.AccountConfig{}, nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
}

// Monitor 暴露健康监控（供 Web 层查询）
func (o *Orchestrator) Monitor() *Monitor {
	return o.monitor
}

// Sync 执行一次账户同步，返回本次运行摘要
// force 为 true 时绕过退避窗口（配额和单飞不受影响）
func (o *Orchestrator) Sync(ctx context.Context, accountID string, force bool) (*database.SyncRun, error) {
	acc, fetcher, err := o.account(accountID)
	if err != nil {
		return nil, err
	}

	cfg, reconciler := o.config()

	// 闸门一：单飞锁，同账户并发触发立即拒绝
	lockKey := "sync:" + accountID
	lockTTL := time.Duration(cfg.Lock.DefaultTTL) * time.Second
	acquired, err := o.locker.TryLock(ctx, lockKey, lockTTL)
	if err != nil {
		return nil, fmt.Errorf("获取同步锁失败: %w", err)
	}
	if !acquired {
		metrics.RecordSyncRejected(accountID, "conflict")
		return nil, ErrSyncInProgress
	}
	defer func() {
		if err := o.locker.Unlock(context.Background(), lockKey); err != nil {
			logger.Warn("⚠️ [%s] 释放同步锁失败: %v", accountID, err)
		}
	}()

	// 闸门二：退避窗口
	if !force {
		if next := o.monitor.AllowedAt(accountID); time.Now().Before(next) {
			metrics.RecordSyncRejected(accountID, "backoff")
			return nil, fmt.Errorf("%w，下次允许时间 %s", ErrBackoffActive, next.Format(time.RFC3339))
		}
	}

	// 闸门三：每日配额
	ok, err := o.quota.TryAcquire(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("检查同步配额失败: %w", err)
	}
	if !ok {
		metrics.RecordSyncRejected(accountID, "quota")
		return nil, ErrQuotaExhausted
	}

	started := time.Now()
	run := &database.SyncRun{
		AccountID: accountID,
		StartedAt: started,
		Status:    "running",
	}
	if err := o.db.RecordSyncRun(ctx, run); err != nil {
		logger.Warn("⚠️ [%s] 记录同步开始失败: %v", accountID, err)
	}

	w := exchange.Window{
		Start: started.Add(-cfg.Sync.Window()),
		End:   started,
	}
	logger.Info("🔄 [%s] 开始同步，窗口 %s ~ %s",
		accountID, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))

	runErr := o.execute(ctx, &cfg.Sync, reconciler, acc, fetcher, w, run)

	finished := time.Now()
	run.FinishedAt = &finished
	switch {
	case runErr != nil:
		run.Status = "failed"
		run.ErrorMessage = runErr.Error()
	case run.RecordsDropped > 0 || run.TradesRejected > 0 || !run.ReconcileWithin:
		// 对账不平的运行降级为 partial：数据已入库，但周期合计未通过交叉核对
		run.Status = "partial"
	default:
		run.Status = "succeeded"
	}

	// 收尾落库不依赖调用方 ctx，取消的运行也要留下 failed 记录
	if err := o.db.RecordSyncRun(context.Background(), run); err != nil {
		logger.Error("❌ [%s] 记录同步结果失败: %v", accountID, err)
	}
	metrics.RecordSyncRun(accountID, run.Status, finished.Sub(started))

	if run.Status == "failed" {
		o.monitor.RecordFailure(accountID, runErr)
		o.notifier.Send(&notify.Alert{
			Kind:      notify.AlertSyncFailed,
			AccountID: accountID,
			Message:   fmt.Sprintf("同步失败: %v", runErr),
		})
		logger.Error("❌ [%s] 同步失败 (耗时 %v): %v", accountID, finished.Sub(started), runErr)
		return run, runErr
	}

	o.monitor.RecordSuccess(accountID, run.Status)
	logger.Info("✅ [%s] 同步完成 [%s]: 拉取 %d 事件, 丢弃 %d, 聚合 %d 笔, 拒绝 %d, 新入库 %d (耗时 %v)",
		accountID, run.Status, run.EventsFetched, run.RecordsDropped,
		run.TradesAggregated, run.TradesRejected, run.TradesInserted, finished.Sub(started))
	return run, nil
}

// execute 同步主流程，填充 run 的各项计数
func (o *Orchestrator) execute(
	ctx context.Context,
	syncCfg *config.SyncConfig,
	reconciler *reconcile.Reconciler,
	acc config.AccountConfig,
	fetcher exchange.Fetcher,
	w exchange.Window,
	run *database.SyncRun,
) error {
	// ==== 拉取 ====
	fetchCtx, cancel := context.WithTimeout(ctx, syncCfg.FetchTimeout())
	defer cancel()

	batch, venueTotal, err := o.fetchAll(fetchCtx, acc, fetcher, w)
	if err != nil {
		return fmt.Errorf("拉取交易所数据失败: %w", err)
	}

	run.EventsFetched = len(batch.Fills) + len(batch.Orders) + len(batch.Incomes)
	metrics.RecordEventsFetched(acc.ID, "fill", len(batch.Fills))
	metrics.RecordEventsFetched(acc.ID, "order", len(batch.Orders))
	metrics.RecordEventsFetched(acc.ID, "income", len(batch.Incomes))

	// ==== 规范化 ====
	events, dropped := o.normalizer.Normalize(batch)
	run.RecordsDropped = dropped
	if dropped > 0 {
		metrics.RecordRecordsDropped(acc.ID, dropped)
		o.notifier.Send(&notify.Alert{
			Kind:      notify.AlertDataQuality,
			AccountID: acc.ID,
			Message:   fmt.Sprintf("规范化阶段丢弃 %d 条坏记录", dropped),
		})
	}

	// ==== 生命周期分组 ====
	closed, open := o.grouper.Group(events)
	if len(open) > 0 {
		// 未平仓的生命周期留到后续窗口，不产出任何记录
		logger.Info("⏸️ [%s] %d 个生命周期尚未平仓，暂不入库", acc.ID, len(open))
	}

	// ==== 聚合与校验 ====
	aggregator := pipeline.NewAggregator(acc.ID)
	var valid []*pipeline.AggregatedTrade
	for _, lc := range closed {
		trade, err := aggregator.Aggregate(lc)
		if err != nil {
			run.TradesRejected++
			metrics.RecordTradeRejected(acc.ID, "aggregate_error")
			logger.Warn("⚠️ [%s] 生命周期聚合失败 [%s]: %v", acc.ID, lc.Instrument, err)
			continue
		}

		outcome := o.validator.Validate(trade)
		if outcome.Status == pipeline.ValidationRejected {
			run.TradesRejected++
			metrics.RecordTradeRejected(acc.ID, outcome.Reasons[0])
			logger.Warn("⚠️ [%s] 聚合交易被校验拒绝 [%s]: %s",
				acc.ID, trade.Instrument, strings.Join(outcome.Reasons, "; "))
			continue
		}
		valid = append(valid, trade)
	}

	run.TradesAggregated = len(valid)
	metrics.RecordTradesAggregated(acc.ID, len(valid))
	if run.TradesRejected > 0 {
		o.notifier.Send(&notify.Alert{
			Kind:      notify.AlertDataQuality,
			AccountID: acc.ID,
			Message:   fmt.Sprintf("%d 笔聚合交易未通过校验", run.TradesRejected),
		})
	}

	// ==== 幂等入库 ====
	rows := make([]*database.AggregatedTrade, 0, len(valid))
	for _, trade := range valid {
		rows = append(rows, toTradeRow(trade))
	}
	inserted, err := o.db.UpsertAggregatedTrades(ctx, rows)
	if err != nil {
		return fmt.Errorf("写入聚合交易失败: %w", err)
	}
	run.TradesInserted = inserted
	metrics.RecordTradesInserted(acc.ID, int(inserted))

	// ==== 对账 ====
	result := reconciler.Reconcile(valid, venueTotal, w.Start, w.End)
	run.ReconcileDelta = result.Delta.String()
	run.ReconcileWithin = result.WithinTolerance

	deltaF, _ := result.Delta.Float64()
	metrics.RecordReconcileDelta(acc.ID, deltaF, result.WithinTolerance)

	recon := &database.Reconciliation{
		AccountID:       acc.ID,
		PeriodStart:     result.PeriodStart,
		PeriodEnd:       result.PeriodEnd,
		AggregatedTotal: result.AggregatedTotalPnl,
		VenueTotal:      result.VenueReportedTotalPnl,
		Delta:           result.Delta,
		WithinTolerance: result.WithinTolerance,
	}
	if err := o.db.SaveReconciliation(ctx, recon); err != nil {
		logger.Warn("⚠️ [%s] 保存对账记录失败: %v", acc.ID, err)
	}

	// 对账不平只告警观测，已入库的聚合交易不回滚
	if !result.WithinTolerance {
		o.notifier.Send(&notify.Alert{
			Kind:      notify.AlertReconcileMismatch,
			AccountID: acc.ID,
			Message: fmt.Sprintf("对账超出容差: 本地 %s vs 交易所 %s (差值 %s)",
				result.AggregatedTotalPnl.String(),
				result.VenueReportedTotalPnl.String(),
				result.Delta.String()),
			Data: map[string]interface{}{
				"delta":       result.Delta.String(),
				"local_total": result.AggregatedTotalPnl.String(),
				"venue_total": result.VenueReportedTotalPnl.String(),
			},
		})
	}

	return nil
}

// fetchAll 并发拉取全部交易对的成交、订单、资金流水及对账口径合计
// 任一请求失败整体失败，不做部分入库
func (o *Orchestrator) fetchAll(
	ctx context.Context,
	acc config.AccountConfig,
	fetcher exchange.Fetcher,
	w exchange.Window,
) (*exchange.RawBatch, decimal.Decimal, error) {
	var (
		mu         sync.Mutex
		wg         sync.WaitGroup
		batch      exchange.RawBatch
		venueTotal = decimal.Zero
		firstErr   error
	)

	setErr := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	for _, symbol := range acc.Symbols {
		symbol := symbol
		wg.Add(4)

		go func() {
			defer wg.Done()
			fills, err := fetcher.FetchFills(ctx, symbol, w)
			if err != nil {
				setErr(err)
				return
			}
			mu.Lock()
			batch.Fills = append(batch.Fills, fills...)
			mu.Unlock()
		}()

		go func() {
			defer wg.Done()
			orders, err := fetcher.FetchOrders(ctx, symbol, w)
			if err != nil {
				setErr(err)
				return
			}
			mu.Lock()
			batch.Orders = append(batch.Orders, orders...)
			mu.Unlock()
		}()

		go func() {
			defer wg.Done()
			incomes, err := fetcher.FetchIncome(ctx, symbol, w)
			if err != nil {
				setErr(err)
				return
			}
			mu.Lock()
			batch.Incomes = append(batch.Incomes, incomes...)
			mu.Unlock()
		}()

		go func() {
			defer wg.Done()
			totalStr, err := fetcher.FetchPeriodIncomeTotal(ctx, symbol, w)
			if err != nil {
				setErr(err)
				return
			}
			total, err := decimal.NewFromString(totalStr)
			if err != nil {
				setErr(fmt.Errorf("解析交易所合计失败 [%s]: %w", symbol, err))
				return
			}
			mu.Lock()
			venueTotal = venueTotal.Add(total)
			mu.Unlock()
		}()
	}

	wg.Wait()

	if firstErr != nil {
		return nil, decimal.Zero, firstErr
	}
	return &batch, venueTotal, nil
}

// toTradeRow 聚合交易转换为数据库行
func toTradeRow(t *pipeline.AggregatedTrade) *database.AggregatedTrade {
	ids := make([]string, len(t.SourceEventIDs))
	copy(ids, t.SourceEventIDs)
	sort.Strings(ids)

	return &database.AggregatedTrade{
		AccountID:      t.AccountID,
		SourceHash:     t.SourceHash(),
		Instrument:     t.Instrument,
		Direction:      string(t.Direction),
		EntryPrice:     t.EntryPrice,
		ExitPrice:      t.ExitPrice,
		TotalQuantity:  t.TotalQuantity,
		RealizedPnl:    t.RealizedPnl,
		TotalFees:      t.TotalFees,
		OpenedAt:       t.OpenedAt,
		ClosedAt:       t.ClosedAt,
		SourceEventIDs: strings.Join(ids, ","),
	}
}
