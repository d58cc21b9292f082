package database

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Database 数据库接口
type Database interface {
	// 聚合交易（唯一持久化产物）
	// UpsertAggregatedTrades 幂等写入：(account_id, source_hash) 已存在的记录跳过，
	// 返回实际新插入的条数
	UpsertAggregatedTrades(ctx context.Context, trades []*AggregatedTrade) (int64, error)
	GetAggregatedTrades(ctx context.Context, filter *TradeFilter) ([]*AggregatedTrade, error)

	// 同步运行记录
	RecordSyncRun(ctx context.Context, run *SyncRun) error
	GetSyncRuns(ctx context.Context, filter *SyncRunFilter) ([]*SyncRun, error)

	// 对账记录
	SaveReconciliation(ctx context.Context, recon *Reconciliation) error
	GetReconciliations(ctx context.Context, filter *ReconciliationFilter) ([]*Reconciliation, error)

	// 健康检查
	Ping(ctx context.Context) error

	// 关闭连接
	Close() error
}

// 数据模型

// AggregatedTrade 聚合交易记录
type AggregatedTrade struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID      string          `gorm:"uniqueIndex:idx_account_source;index:idx_account_closed;size:100" json:"account_id"`
	SourceHash     string          `gorm:"uniqueIndex:idx_account_source;size:64" json:"source_hash"`
	Instrument     string          `gorm:"index;size:50" json:"instrument"`
	Direction      string          `gorm:"size:10" json:"direction"` // long, short, flat
	EntryPrice     decimal.Decimal `gorm:"type:decimal(38,18)" json:"entry_price"`
	ExitPrice      decimal.Decimal `gorm:"type:decimal(38,18)" json:"exit_price"`
	TotalQuantity  decimal.Decimal `gorm:"type:decimal(38,18)" json:"total_quantity"`
	RealizedPnl    decimal.Decimal `gorm:"type:decimal(38,18)" json:"realized_pnl"`
	TotalFees      decimal.Decimal `gorm:"type:decimal(38,18)" json:"total_fees"`
	OpenedAt       time.Time       `gorm:"index" json:"opened_at"`
	ClosedAt       time.Time       `gorm:"index:idx_account_closed" json:"closed_at"`
	SourceEventIDs string          `gorm:"type:text" json:"source_event_ids"` // 逗号拼接的事件 ID 列表
	CreatedAt      time.Time       `json:"created_at"`
}

// SyncRun 同步运行记录
type SyncRun struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID        string     `gorm:"index:idx_account_started;size:100" json:"account_id"`
	StartedAt        time.Time  `gorm:"index:idx_account_started" json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at"`
	Status           string     `gorm:"index;size:20" json:"status"` // running, succeeded, partial, failed
	EventsFetched    int        `json:"events_fetched"`
	RecordsDropped   int        `json:"records_dropped"`
	TradesAggregated int        `json:"trades_aggregated"`
	TradesRejected   int        `json:"trades_rejected"`
	TradesInserted   int64      `json:"trades_inserted"`
	ReconcileDelta   string     `gorm:"size:64" json:"reconcile_delta"`
	ReconcileWithin  bool       `json:"reconcile_within"`
	ErrorMessage     string     `gorm:"type:text" json:"error_message"`
}

// Reconciliation 对账记录
type Reconciliation struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID       string          `gorm:"index;size:100" json:"account_id"`
	PeriodStart     time.Time       `json:"period_start"`
	PeriodEnd       time.Time       `json:"period_end"`
	AggregatedTotal decimal.Decimal `gorm:"type:decimal(38,18)" json:"aggregated_total"`
	VenueTotal      decimal.Decimal `gorm:"type:decimal(38,18)" json:"venue_total"`
	Delta           decimal.Decimal `gorm:"type:decimal(38,18)" json:"delta"`
	WithinTolerance bool            `gorm:"index" json:"within_tolerance"`
	CreatedAt       time.Time       `gorm:"index" json:"created_at"`
}

// 过滤器

// TradeFilter 聚合交易过滤器
type TradeFilter struct {
	AccountID  string
	Instrument string
	Direction  string
	StartTime  *time.Time // 按 closed_at 过滤
	EndTime    *time.Time
	Limit      int
	Offset     int
}

// SyncRunFilter 同步运行记录过滤器
type SyncRunFilter struct {
	AccountID string
	Status    string
	Limit     int
	Offset    int
}

// ReconciliationFilter 对账记录过滤器
type ReconciliationFilter struct {
	AccountID       string
	WithinTolerance *bool
	StartTime       *time.Time
	EndTime         *time.Time
	Limit           int
	Offset          int
}
