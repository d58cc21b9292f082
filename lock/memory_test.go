package lock

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLock_TryLock(t *testing.T) {
	l := NewMemoryLock()
	ctx := context.Background()

	ok, err := l.TryLock(ctx, "sync:acc-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("首次获取应成功: ok=%v err=%v", ok, err)
	}

	// 已占用的锁立即拒绝，不排队
	ok, err = l.TryLock(ctx, "sync:acc-1", time.Minute)
	if err != nil {
		t.Fatalf("TryLock 出错: %v", err)
	}
	if ok {
		t.Error("锁被占用时应返回 false")
	}

	// 不同 key 互不影响
	if ok, _ := l.TryLock(ctx, "sync:acc-2", time.Minute); !ok {
		t.Error("其他账户的锁不应受影响")
	}
}

func TestMemoryLock_UnlockReleases(t *testing.T) {
	l := NewMemoryLock()
	ctx := context.Background()

	if ok, _ := l.TryLock(ctx, "sync:acc-1", time.Minute); !ok {
		t.Fatal("获取锁失败")
	}
	if err := l.Unlock(ctx, "sync:acc-1"); err != nil {
		t.Fatalf("释放锁失败: %v", err)
	}
	if ok, _ := l.TryLock(ctx, "sync:acc-1", time.Minute); !ok {
		t.Error("释放后应可重新获取")
	}
}

func TestMemoryLock_UnlockNotHeld(t *testing.T) {
	l := NewMemoryLock()

	if err := l.Unlock(context.Background(), "sync:ghost"); err == nil {
		t.Error("释放未持有的锁应报错")
	}
}

func TestMemoryLock_TTLExpiry(t *testing.T) {
	l := NewMemoryLock()
	ctx := context.Background()

	if ok, _ := l.TryLock(ctx, "sync:acc-1", 20*time.Millisecond); !ok {
		t.Fatal("获取锁失败")
	}

	time.Sleep(50 * time.Millisecond)

	// TTL 过期后视为未持有（持有方崩溃不会永久锁死账户）
	if ok, _ := l.TryLock(ctx, "sync:acc-1", time.Minute); !ok {
		t.Error("过期锁应可被重新获取")
	}
}

func TestMemoryLock_Extend(t *testing.T) {
	l := NewMemoryLock()
	ctx := context.Background()

	if ok, _ := l.TryLock(ctx, "sync:acc-1", 30*time.Millisecond); !ok {
		t.Fatal("获取锁失败")
	}
	if err := l.Extend(ctx, "sync:acc-1", time.Minute); err != nil {
		t.Fatalf("续期失败: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	// 续期后原 TTL 不再生效
	if ok, _ := l.TryLock(ctx, "sync:acc-1", time.Minute); ok {
		t.Error("续期后的锁不应被抢占")
	}
}

func TestMemoryLock_LockBlocksUntilReleased(t *testing.T) {
	l := NewMemoryLock()
	ctx := context.Background()

	if ok, _ := l.TryLock(ctx, "sync:acc-1", time.Minute); !ok {
		t.Fatal("获取锁失败")
	}

	done := make(chan error, 1)
	go func() {
		done <- l.Lock(ctx, "sync:acc-1", time.Minute)
	}()

	time.Sleep(80 * time.Millisecond)
	l.Unlock(ctx, "sync:acc-1")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("阻塞获取失败: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("释放后阻塞获取应返回")
	}
}
