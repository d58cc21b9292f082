package scheduler

import (
	"context"
	"errors"
	"sync"

	"tradesync/config"
	"tradesync/logger"
	"tradesync/syncer"

	"github.com/robfig/cron/v3"
)

// Scheduler 定时同步调度器
// 每个账户按自己的 cron 表达式独立触发，表达式留空的账户只支持手动触发
type Scheduler struct {
	cron *cron.Cron
	orch *syncer.Orchestrator

	mu      sync.Mutex
	cfg     *config.Config
	entries map[string]cron.EntryID
}

// NewScheduler 创建调度器
func NewScheduler(cfg *config.Config, orch *syncer.Orchestrator) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		orch:    orch,
		cfg:     cfg,
		entries: make(map[string]cron.EntryID),
	}
}

// Start 注册全部账户的定时任务并启动调度
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.registerLocked(s.cfg); err != nil {
		return err
	}
	s.cron.Start()

	// 配置了启动即跑的账户异步触发一次
	for _, acc := range s.cfg.Accounts {
		if acc.RunOnStart {
			go s.runSync(acc.ID)
		}
	}

	logger.Info("⏰ 调度器已启动，注册 %d 个定时任务", len(s.entries))
	return nil
}

// Reload 热更新账户排期：移除旧任务后按新配置重建
func (s *Scheduler) Reload(cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for accountID, id := range s.entries {
		s.cron.Remove(id)
		delete(s.entries, accountID)
	}
	s.cfg = cfg

	if err := s.registerLocked(cfg); err != nil {
		return err
	}
	logger.Info("🔄 调度器已重载，注册 %d 个定时任务", len(s.entries))
	return nil
}

// registerLocked 注册账户排期，调用方必须持有锁
func (s *Scheduler) registerLocked(cfg *config.Config) error {
	for _, acc := range cfg.Accounts {
		if acc.Schedule == "" {
			continue
		}

		accountID := acc.ID
		id, err := s.cron.AddFunc(acc.Schedule, func() {
			s.runSync(accountID)
		})
		if err != nil {
			return err
		}
		s.entries[accountID] = id
		logger.Info("⏰ [%s] 定时同步已注册: %s", accountID, acc.Schedule)
	}
	return nil
}

// runSync 执行一次定时同步
// 单飞冲突与退避拒绝是正常现象，只记 debug；真正的失败由编排器内部告警
func (s *Scheduler) runSync(accountID string) {
	_, err := s.orch.Sync(context.Background(), accountID, false)
	if err != nil {
		if errors.Is(err, syncer.ErrSyncInProgress) ||
			errors.Is(err, syncer.ErrBackoffActive) ||
			errors.Is(err, syncer.ErrQuotaExhausted) {
			logger.Debug("⏭️ [%s] 定时同步跳过: %v", accountID, err)
			return
		}
		logger.Error("❌ [%s] 定时同步出错: %v", accountID, err)
	}
}

// Stop 停止调度，等待运行中的任务结束
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("⏹️ 调度器已停止")
}
