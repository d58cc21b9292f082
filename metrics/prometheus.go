package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 同步运行指标
	syncRunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesync_sync_run_total",
			Help: "Total number of sync runs by final status",
		},
		[]string{"account", "status"},
	)

	syncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradesync_sync_run_duration_seconds",
			Help:    "End-to-end sync run duration in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0},
		},
		[]string{"account"},
	)

	syncRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesync_sync_rejected_total",
			Help: "Total number of runs refused before starting",
		},
		[]string{"account", "reason"},
	)

	// 事件与聚合指标
	eventsFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesync_events_fetched_total",
			Help: "Total number of raw events fetched from the venue",
		},
		[]string{"account", "kind"},
	)

	recordsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesync_records_dropped_total",
			Help: "Total number of malformed raw records dropped during normalization",
		},
		[]string{"account"},
	)

	tradesAggregatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesync_trades_aggregated_total",
			Help: "Total number of aggregated trades produced",
		},
		[]string{"account"},
	)

	tradesRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesync_trades_rejected_total",
			Help: "Total number of aggregated trades rejected by validation",
		},
		[]string{"account", "reason"},
	)

	tradesInsertedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesync_trades_inserted_total",
			Help: "Total number of aggregated trades newly persisted",
		},
		[]string{"account"},
	)

	// 对账指标
	reconcileDelta = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradesync_reconcile_delta",
			Help: "Last reconciliation delta (aggregated minus venue reported)",
		},
		[]string{"account"},
	)

	reconcileMismatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesync_reconcile_mismatch_total",
			Help: "Total number of out-of-tolerance reconciliations",
		},
		[]string{"account"},
	)

	// 健康指标
	consecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradesync_consecutive_failures",
			Help: "Current consecutive failed sync runs per account",
		},
		[]string{"account"},
	)
)

// RecordSyncRun 记录一次同步运行结果
func RecordSyncRun(account, status string, duration time.Duration) {
	syncRunTotal.WithLabelValues(account, status).Inc()
	syncRunDuration.WithLabelValues(account).Observe(duration.Seconds())
}

// RecordSyncRejected 记录一次被拒绝的同步请求（单飞冲突、配额耗尽、退避中）
func RecordSyncRejected(account, reason string) {
	syncRejectedTotal.WithLabelValues(account, reason).Inc()
}

// RecordEventsFetched 记录拉取的原始事件数量
func RecordEventsFetched(account, kind string, count int) {
	eventsFetchedTotal.WithLabelValues(account, kind).Add(float64(count))
}

// RecordRecordsDropped 记录规范化阶段丢弃的坏记录数量
func RecordRecordsDropped(account string, count int) {
	recordsDroppedTotal.WithLabelValues(account).Add(float64(count))
}

// RecordTradesAggregated 记录聚合产出的交易数量
func RecordTradesAggregated(account string, count int) {
	tradesAggregatedTotal.WithLabelValues(account).Add(float64(count))
}

// RecordTradeRejected 记录校验拒绝的聚合交易
func RecordTradeRejected(account, reason string) {
	tradesRejectedTotal.WithLabelValues(account, reason).Inc()
}

// RecordTradesInserted 记录新写入的聚合交易数量
func RecordTradesInserted(account string, count int) {
	tradesInsertedTotal.WithLabelValues(account).Add(float64(count))
}

// RecordReconcileDelta 记录对账差值
func RecordReconcileDelta(account string, delta float64, withinTolerance bool) {
	reconcileDelta.WithLabelValues(account).Set(delta)
	if !withinTolerance {
		reconcileMismatchTotal.WithLabelValues(account).Inc()
	}
}

// RecordConsecutiveFailures 记录连续失败次数
func RecordConsecutiveFailures(account string, count int) {
	consecutiveFailures.WithLabelValues(account).Set(float64(count))
}
