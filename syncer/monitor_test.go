package syncer

import (
	"errors"
	"testing"
	"time"

	"tradesync/config"
	"tradesync/notify"
)

func testSyncConfig() *config.SyncConfig {
	return &config.SyncConfig{
		BackoffBaseSec:        30,
		BackoffExponentCap:    6,
		BackoffMaxSec:         3600,
		FailureAlertThreshold: 3,
	}
}

func testNotifier() *notify.NotificationService {
	// 通知关闭，Send 直接短路
	return notify.NewNotificationService(&config.Config{})
}

func TestMonitor_ExponentialBackoff(t *testing.T) {
	m := NewMonitor(testSyncConfig(), testNotifier())
	errFetch := errors.New("fetch timeout")

	// 连续失败退避翻倍: 60s, 120s, 240s
	want := []time.Duration{60 * time.Second, 120 * time.Second, 240 * time.Second}
	for i, expected := range want {
		d := m.RecordFailure("acc-1", errFetch)
		if d != expected {
			t.Errorf("第 %d 次失败期望退避 %v, 实际 %v", i+1, expected, d)
		}
	}

	// 3 次失败后下次允许时间至少在 240s 之后
	next := m.AllowedAt("acc-1")
	if next.Before(time.Now().Add(239 * time.Second)) {
		t.Errorf("下次允许时间过早: %v", next)
	}
	if next.After(time.Now().Add(3600 * time.Second)) {
		t.Errorf("下次允许时间超出上限: %v", next)
	}
}

func TestMonitor_BackoffExponentCapped(t *testing.T) {
	m := NewMonitor(testSyncConfig(), testNotifier())

	var last time.Duration
	for i := 0; i < 10; i++ {
		last = m.RecordFailure("acc-1", errors.New("boom"))
	}

	// 指数封顶在 6: 30s × 2^6 = 1920s
	if last != 1920*time.Second {
		t.Errorf("期望退避封顶 1920s, 实际 %v", last)
	}
}

func TestMonitor_BackoffMaxCapped(t *testing.T) {
	cfg := testSyncConfig()
	cfg.BackoffMaxSec = 100
	m := NewMonitor(cfg, testNotifier())

	for i := 0; i < 5; i++ {
		if d := m.RecordFailure("acc-1", errors.New("boom")); d > 100*time.Second {
			t.Errorf("退避超出总上限: %v", d)
		}
	}
}

func TestMonitor_SuccessResetsFailures(t *testing.T) {
	m := NewMonitor(testSyncConfig(), testNotifier())

	m.RecordFailure("acc-1", errors.New("boom"))
	m.RecordFailure("acc-1", errors.New("boom"))
	m.RecordSuccess("acc-1", "succeeded")

	h := m.Health("acc-1")
	if h.ConsecutiveFailures != 0 {
		t.Errorf("成功后失败计数应清零, 实际 %d", h.ConsecutiveFailures)
	}
	if !h.NextAllowedAttemptAt.IsZero() {
		t.Errorf("成功后退避窗口应清除, 实际 %v", h.NextAllowedAttemptAt)
	}
	if h.LastStatus != "succeeded" {
		t.Errorf("期望状态 succeeded, 实际 %s", h.LastStatus)
	}
}

func TestMonitor_PartialAlsoResets(t *testing.T) {
	m := NewMonitor(testSyncConfig(), testNotifier())

	m.RecordFailure("acc-1", errors.New("boom"))
	m.RecordSuccess("acc-1", "partial")

	if h := m.Health("acc-1"); h.ConsecutiveFailures != 0 {
		t.Errorf("partial 运行也应清零失败计数, 实际 %d", h.ConsecutiveFailures)
	}
}

func TestMonitor_AccountsIndependent(t *testing.T) {
	m := NewMonitor(testSyncConfig(), testNotifier())

	m.RecordFailure("acc-1", errors.New("boom"))

	if next := m.AllowedAt("acc-2"); !next.IsZero() {
		t.Errorf("其他账户不应受退避影响: %v", next)
	}

	all := m.HealthAll()
	if len(all) != 2 {
		t.Errorf("期望 2 个账户状态, 实际 %d", len(all))
	}
}
