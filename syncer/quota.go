package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradesync/config"
	"tradesync/logger"

	"github.com/redis/go-redis/v9"
)

// QuotaStore 同步配额存储
// 按账户按自然日（UTC）计数，超出上限的同步请求在启动前被拒绝
type QuotaStore interface {
	// TryAcquire 消耗一次当日配额，超限返回 false
	TryAcquire(ctx context.Context, accountID string) (bool, error)

	// Used 查询当日已用配额
	Used(ctx context.Context, accountID string) (int, error)

	Close() error
}

// quotaDay 当日配额 key 的日期部分
func quotaDay(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

// ==================== 内存实现 ====================

// MemoryQuotaStore 内存配额存储（单进程部署）
type MemoryQuotaStore struct {
	limit  int
	mu     sync.Mutex
	day    string
	counts map[string]int
}

// NewMemoryQuotaStore 创建内存配额存储
func NewMemoryQuotaStore(dailyLimit int) *MemoryQuotaStore {
	return &MemoryQuotaStore{
		limit:  dailyLimit,
		day:    quotaDay(time.Now()),
		counts: make(map[string]int),
	}
}

// rollover 跨日时清空计数，调用方必须持有锁
func (m *MemoryQuotaStore) rollover() {
	today := quotaDay(time.Now())
	if today != m.day {
		m.day = today
		m.counts = make(map[string]int)
	}
}

func (m *MemoryQuotaStore) TryAcquire(ctx context.Context, accountID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollover()
	if m.counts[accountID] >= m.limit {
		return false, nil
	}
	m.counts[accountID]++
	return true, nil
}

func (m *MemoryQuotaStore) Used(ctx context.Context, accountID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollover()
	return m.counts[accountID], nil
}

func (m *MemoryQuotaStore) Close() error {
	return nil
}

// ==================== Redis 实现 ====================

// RedisQuotaStore Redis 配额存储（多实例部署时共享计数）
type RedisQuotaStore struct {
	client *redis.Client
	prefix string
	limit  int
}

// NewRedisQuotaStore 创建 Redis 配额存储
func NewRedisQuotaStore(cfg *config.QuotaConfig) (*RedisQuotaStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	logger.Info("✅ Redis 配额存储连接成功: %s", cfg.Redis.Addr)

	return &RedisQuotaStore{
		client: client,
		prefix: cfg.Prefix,
		limit:  cfg.DailyLimit,
	}, nil
}

func (r *RedisQuotaStore) key(accountID string) string {
	return fmt.Sprintf("%s%s:%s", r.prefix, accountID, quotaDay(time.Now()))
}

func (r *RedisQuotaStore) TryAcquire(ctx context.Context, accountID string) (bool, error) {
	key := r.key(accountID)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("配额计数失败: %w", err)
	}

	// 首次计数时设置过期，跨日 key 自动清理
	if count == 1 {
		r.client.Expire(ctx, key, 48*time.Hour)
	}

	if count > int64(r.limit) {
		// 超限的这次递增回退，保持计数准确
		r.client.Decr(ctx, key)
		return false, nil
	}
	return true, nil
}

func (r *RedisQuotaStore) Used(ctx context.Context, accountID string) (int, error) {
	count, err := r.client.Get(ctx, r.key(accountID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("查询配额失败: %w", err)
	}
	return count, nil
}

func (r *RedisQuotaStore) Close() error {
	return r.client.Close()
}

// ==================== 工厂 ====================

// NewQuotaStore 根据配置创建配额存储
func NewQuotaStore(cfg *config.QuotaConfig) (QuotaStore, error) {
	switch cfg.Type {
	case "", "memory":
		logger.Info("📊 使用内存配额存储 (每日上限 %d 次)", cfg.DailyLimit)
		return NewMemoryQuotaStore(cfg.DailyLimit), nil
	case "redis":
		return NewRedisQuotaStore(cfg)
	default:
		return nil, fmt.Errorf("不支持的配额存储类型: %s", cfg.Type)
	}
}
