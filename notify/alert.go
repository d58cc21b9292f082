package notify

import "time"

// AlertKind 告警类型
type AlertKind string

const (
	AlertSyncFailed        AlertKind = "sync_failed"        // 同步运行失败
	AlertReconcileMismatch AlertKind = "reconcile_mismatch" // 对账超出容差
	AlertFailureStreak     AlertKind = "failure_streak"     // 连续失败达到阈值
	AlertDataQuality       AlertKind = "data_quality"       // 坏记录/校验拒绝等数据质量信号
)

// Alert 告警事件
type Alert struct {
	Kind      AlertKind
	AccountID string
	Message   string
	Timestamp time.Time
	Data      map[string]interface{}
}
