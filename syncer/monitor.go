package syncer

import (
	"fmt"
	"sync"
	"time"

	"tradesync/config"
	"tradesync/logger"
	"tradesync/metrics"
	"tradesync/notify"
)

// SyncHealth 单个账户的同步健康状态
type SyncHealth struct {
	AccountID            string    `json:"account_id"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	NextAllowedAttemptAt time.Time `json:"next_allowed_attempt_at"`
	LastRunAt            time.Time `json:"last_run_at"`
	LastStatus           string    `json:"last_status"`
	LastError            string    `json:"last_error,omitempty"`
}

// Monitor 同步健康监控
// 记录每个账户的连续失败次数并计算指数退避窗口：
// 下次允许时间 = 失败时刻 + 退避基数 × 2^min(连续失败次数, 指数上限)，再受总上限封顶
type Monitor struct {
	cfg      *config.SyncConfig
	notifier *notify.NotificationService

	mu     sync.Mutex
	states map[string]*SyncHealth
}

// NewMonitor 创建同步监控
func NewMonitor(cfg *config.SyncConfig, notifier *notify.NotificationService) *Monitor {
	return &Monitor{
		cfg:      cfg,
		notifier: notifier,
		states:   make(map[string]*SyncHealth),
	}
}

// state 获取或创建账户状态，调用方必须持有锁
func (m *Monitor) state(accountID string) *SyncHealth {
	s, ok := m.states[accountID]
	if !ok {
		s = &SyncHealth{AccountID: accountID}
		m.states[accountID] = s
	}
	return s
}

// AllowedAt 账户下次允许同步的时间（零值或已过期表示立即可同步）
func (m *Monitor) AllowedAt(accountID string) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state(accountID).NextAllowedAttemptAt
}

// backoff 根据连续失败次数计算退避时长
func (m *Monitor) backoff(failures int) time.Duration {
	exp := failures
	if exp > m.cfg.BackoffExponentCap {
		exp = m.cfg.BackoffExponentCap
	}

	d := m.cfg.BackoffBase() * time.Duration(1<<uint(exp))
	if d > m.cfg.BackoffMax() {
		d = m.cfg.BackoffMax()
	}
	return d
}

// RecordSuccess 记录一次成功（succeeded 或 partial）运行，清零失败计数
func (m *Monitor) RecordSuccess(accountID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state(accountID)
	s.ConsecutiveFailures = 0
	s.NextAllowedAttemptAt = time.Time{}
	s.LastRunAt = time.Now()
	s.LastStatus = status
	s.LastError = ""

	metrics.RecordConsecutiveFailures(accountID, 0)
}

// RecordFailure 记录一次失败运行，返回本次退避时长
func (m *Monitor) RecordFailure(accountID string, runErr error) time.Duration {
	m.mu.Lock()

	s := m.state(accountID)
	s.ConsecutiveFailures++
	failures := s.ConsecutiveFailures

	d := m.backoff(failures)
	s.NextAllowedAttemptAt = time.Now().Add(d)
	s.LastRunAt = time.Now()
	s.LastStatus = "failed"
	if runErr != nil {
		s.LastError = runErr.Error()
	}

	m.mu.Unlock()

	metrics.RecordConsecutiveFailures(accountID, failures)
	logger.Warn("⏳ [%s] 同步失败 %d 次，退避 %v 后重试", accountID, failures, d)

	// 连续失败达到阈值时升级告警
	if failures == m.cfg.FailureAlertThreshold {
		m.notifier.Send(&notify.Alert{
			Kind:      notify.AlertFailureStreak,
			AccountID: accountID,
			Message:   fmt.Sprintf("连续同步失败 %d 次，最近错误: %v", failures, runErr),
			Data: map[string]interface{}{
				"consecutive_failures": failures,
				"backoff":              d.String(),
			},
		})
	}

	return d
}

// Health 查询单个账户的健康状态
func (m *Monitor) Health(accountID string) SyncHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.state(accountID)
}

// HealthAll 查询全部账户的健康状态
func (m *Monitor) HealthAll() []SyncHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SyncHealth, 0, len(m.states))
	for _, s := range m.states {
		out = append(out, *s)
	}
	return out
}
