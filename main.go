package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradesync/config"
	"tradesync/database"
	"tradesync/exchange"
	"tradesync/exchange/binance"
	"tradesync/lock"
	"tradesync/logger"
	"tradesync/notify"
	"tradesync/scheduler"
	"tradesync/syncer"
	"tradesync/web"
)

// Version 构建时通过 ldflags 注入
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	showVersion := flag.Bool("version", false, "显示版本信息")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tradesync %s\n", Version)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ 加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger.SetLevel(logger.ParseLogLevel(cfg.App.LogLevel))
	if cfg.App.Timezone != "" {
		if loc, err := time.LoadLocation(cfg.App.Timezone); err == nil {
			logger.SetLocation(loc)
		} else {
			logger.Warn("⚠️ 时区 %s 加载失败，使用本地时区: %v", cfg.App.Timezone, err)
		}
	}
	defer logger.Close()

	logger.Info("🚀 tradesync 启动 (版本 %s)", Version)

	// ==== 数据库 ====
	db, err := database.NewDatabase(&database.Config{
		Type:            cfg.Database.Type,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		logger.Fatal("❌ 初始化数据库失败: %v", err)
	}
	defer db.Close()

	// ==== 单飞锁 ====
	locker, err := lock.NewDistributedLock(&lock.Config{
		Type:       cfg.Lock.Type,
		Prefix:     cfg.Lock.Prefix,
		DefaultTTL: time.Duration(cfg.Lock.DefaultTTL) * time.Second,
		Redis: lock.RedisConfig{
			Addr:     cfg.Lock.Redis.Addr,
			Password: cfg.Lock.Redis.Password,
			DB:       cfg.Lock.Redis.DB,
			PoolSize: cfg.Lock.Redis.PoolSize,
		},
	})
	if err != nil {
		logger.Fatal("❌ 初始化同步锁失败: %v", err)
	}
	defer locker.Close()

	// ==== 同步配额 ====
	quota, err := syncer.NewQuotaStore(&cfg.Quota)
	if err != nil {
		logger.Fatal("❌ 初始化配额存储失败: %v", err)
	}
	defer quota.Close()

	// ==== 通知 ====
	notifier := notify.NewNotificationService(cfg)

	// ==== 交易所 ====
	fetchers, err := buildFetchers(cfg)
	if err != nil {
		logger.Fatal("❌ 初始化交易所失败: %v", err)
	}

	// ==== 同步编排 ====
	monitor := syncer.NewMonitor(&cfg.Sync, notifier)
	orch := syncer.NewOrchestrator(cfg, db, locker, quota, monitor, notifier, fetchers)

	// ==== 调度器 ====
	sched := scheduler.NewScheduler(cfg, orch)
	if err := sched.Start(); err != nil {
		logger.Fatal("❌ 启动调度器失败: %v", err)
	}
	defer sched.Stop()

	// ==== Web 服务 ====
	var server *web.Server
	if cfg.Web.Enabled {
		server = web.NewServer(&cfg.Web, db, orch)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("❌ Web 服务异常退出: %v", err)
			}
		}()
	}

	// ==== 配置热更新 ====
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, err := config.NewConfigWatcher(*configPath)
	if err != nil {
		logger.Warn("⚠️ 创建配置监控器失败，热更新不可用: %v", err)
	} else if err := watcher.Start(ctx); err != nil {
		logger.Warn("⚠️ 启动配置监控失败，热更新不可用: %v", err)
	} else {
		defer watcher.Stop()
		go watchConfigUpdates(ctx, watcher, orch, notifier, sched)
		logger.Info("👀 配置热更新已启用: %s", *configPath)
	}

	// ==== 信号处理 ====
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("🛑 收到退出信号，正在关闭...")

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("⚠️ Web 服务关闭超时: %v", err)
		}
		shutdownCancel()
	}
}

// buildFetchers 按配置初始化全部交易所拉取器
func buildFetchers(cfg *config.Config) (map[string]exchange.Fetcher, error) {
	fetchers := make(map[string]exchange.Fetcher, len(cfg.Exchanges))
	for name, ex := range cfg.Exchanges {
		switch name {
		case "binance":
			f, err := binance.NewFetcher(ex.APIKey, ex.SecretKey, ex.Testnet, ex.RequestsPerSecond, cfg.Sync.PageLimit)
			if err != nil {
				return nil, fmt.Errorf("初始化交易所 %s 失败: %w", name, err)
			}
			fetchers[name] = f
			logger.Info("✅ 交易所 %s 初始化完成", f.GetName())
		default:
			return nil, fmt.Errorf("不支持的交易所: %s", name)
		}
	}
	return fetchers, nil
}

// watchConfigUpdates 监听配置变更并下发到各组件
// 交易所密钥与数据库连接不支持热更新，需重启生效
func watchConfigUpdates(
	ctx context.Context,
	watcher *config.ConfigWatcher,
	orch *syncer.Orchestrator,
	notifier *notify.NotificationService,
	sched *scheduler.Scheduler,
) {
	for {
		select {
		case <-ctx.Done():
			return

		case newCfg := <-watcher.GetUpdateChan():
			logger.Info("🔄 配置文件已更新，应用热更新")
			orch.UpdateConfig(newCfg)
			notifier.UpdateConfig(newCfg)
			if err := sched.Reload(newCfg); err != nil {
				logger.Error("❌ 重载调度排期失败: %v", err)
			}

		case err := <-watcher.GetErrorChan():
			logger.Warn("⚠️ 配置监控错误: %v", err)
		}
	}
}
