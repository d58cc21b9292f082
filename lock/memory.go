package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryLock 进程内锁实现（单实例模式）
// 语义与 RedisLock 对齐：带 TTL 的互斥 key，TryLock 不排队
type MemoryLock struct {
	mu      sync.Mutex
	entries map[string]time.Time // key -> 过期时间
}

// NewMemoryLock 创建进程内锁
func NewMemoryLock() *MemoryLock {
	return &MemoryLock{
		entries: make(map[string]time.Time),
	}
}

// Lock 获取锁，阻塞直到成功或 ctx 结束
func (m *MemoryLock) Lock(ctx context.Context, key string, ttl time.Duration) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		ok, err := m.TryLock(ctx, key, ttl)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// TryLock 尝试获取锁，立即返回
func (m *MemoryLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if expiry, exists := m.entries[key]; exists && expiry.After(now) {
		return false, nil
	}

	m.entries[key] = now.Add(ttl)
	return true, nil
}

// Unlock 释放锁
func (m *MemoryLock) Unlock(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists {
		return fmt.Errorf("lock not held: %s", key)
	}

	delete(m.entries, key)
	return nil
}

// Extend 延长锁的过期时间
func (m *MemoryLock) Extend(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiry, exists := m.entries[key]
	if !exists || expiry.Before(time.Now()) {
		return fmt.Errorf("lock not held or expired: %s", key)
	}

	m.entries[key] = time.Now().Add(ttl)
	return nil
}

// Close 关闭（进程内锁无资源需要释放）
func (m *MemoryLock) Close() error {
	return nil
}
