package notify

import (
	"sync"
	"time"

	"tradesync/config"
	"tradesync/logger"
)

// Notifier 通知接口
type Notifier interface {
	Send(alert *Alert) error
	Name() string
}

// NotificationService 通知服务
// 尽力而为：发送异步进行，任何渠道失败只记日志，绝不影响同步运行
type NotificationService struct {
	notifiers []Notifier
	cfg       *config.Config
	mu        sync.RWMutex
}

// NewNotificationService 创建通知服务
func NewNotificationService(cfg *config.Config) *NotificationService {
	ns := &NotificationService{
		cfg: cfg,
	}

	// 初始化启用的通知渠道
	if cfg.Notifications.Enabled {
		if cfg.Notifications.Telegram.Enabled && cfg.Notifications.Telegram.BotToken != "" {
			telegramNotifier, err := NewTelegramNotifier(cfg)
			if err != nil {
				logger.Warn("⚠️ 初始化 Telegram 通知失败: %v", err)
			} else {
				ns.notifiers = append(ns.notifiers, telegramNotifier)
				logger.Info("✅ Telegram 通知已启用")
			}
		}

		if cfg.Notifications.Webhook.Enabled && cfg.Notifications.Webhook.URL != "" {
			webhookNotifier, err := NewWebhookNotifier(cfg)
			if err != nil {
				logger.Warn("⚠️ 初始化 Webhook 通知失败: %v", err)
			} else {
				ns.notifiers = append(ns.notifiers, webhookNotifier)
				logger.Info("✅ Webhook 通知已启用")
			}
		}
	}

	return ns
}

// UpdateConfig 热更新通知规则
func (ns *NotificationService) UpdateConfig(cfg *config.Config) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.cfg = cfg
}

// shouldNotify 检查是否需要通知
func (ns *NotificationService) shouldNotify(kind AlertKind) bool {
	ns.mu.RLock()
	cfg := ns.cfg
	ns.mu.RUnlock()

	if !cfg.Notifications.Enabled {
		return false
	}

	rules := cfg.Notifications.Rules
	switch kind {
	case AlertSyncFailed:
		return rules.SyncFailed
	case AlertReconcileMismatch:
		return rules.ReconcileMismatch
	case AlertFailureStreak:
		return rules.FailureStreak
	case AlertDataQuality:
		return rules.DataQuality
	default:
		// 未知告警默认通知
		return true
	}
}

// Send 发送告警（异步，不阻塞，失败吞掉）
func (ns *NotificationService) Send(alert *Alert) {
	if alert == nil {
		return
	}

	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	if !ns.shouldNotify(alert.Kind) {
		return
	}

	// 异步发送，不阻塞调用方
	go func() {
		var wg sync.WaitGroup
		for _, notifier := range ns.notifiers {
			wg.Add(1)
			go func(n Notifier) {
				defer wg.Done()
				if err := n.Send(alert); err != nil {
					logger.Warn("⚠️ [%s] 通知发送失败: %v", n.Name(), err)
				}
			}(notifier)
		}
		wg.Wait()
	}()
}
