package config

import (
	"strings"
	"testing"
)

const minimalConfig = `
app:
  log_level: info

exchanges:
  binance:
    api_key: "key"
    secret_key: "secret"

accounts:
  - id: main
    exchange: binance
    symbols: [BTCUSDT]
`

func TestLoadConfigFromBytes_DefaultsApplied(t *testing.T) {
	cfg, err := LoadConfigFromBytes([]byte(minimalConfig))
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.Sync.WindowHours != 24 {
		t.Errorf("期望默认窗口 24h, 实际 %d", cfg.Sync.WindowHours)
	}
	if cfg.Sync.PageLimit != 1000 {
		t.Errorf("期望默认分页 1000, 实际 %d", cfg.Sync.PageLimit)
	}
	if cfg.Sync.BackoffBaseSec != 30 || cfg.Sync.BackoffExponentCap != 6 {
		t.Errorf("退避默认值错误: base=%d cap=%d", cfg.Sync.BackoffBaseSec, cfg.Sync.BackoffExponentCap)
	}
	if cfg.Reconcile.AbsoluteEpsilon != 0.01 || cfg.Reconcile.RelativeEpsilon != 0.0001 {
		t.Errorf("对账容差默认值错误: abs=%v rel=%v", cfg.Reconcile.AbsoluteEpsilon, cfg.Reconcile.RelativeEpsilon)
	}
	if cfg.Database.Type != "sqlite" || cfg.Database.DSN == "" {
		t.Errorf("数据库默认值错误: type=%s dsn=%s", cfg.Database.Type, cfg.Database.DSN)
	}
	if cfg.Lock.Type != "memory" || cfg.Lock.DefaultTTL != 600 {
		t.Errorf("锁默认值错误: type=%s ttl=%d", cfg.Lock.Type, cfg.Lock.DefaultTTL)
	}
	if cfg.Quota.DailyLimit != 96 {
		t.Errorf("期望默认每日配额 96, 实际 %d", cfg.Quota.DailyLimit)
	}
	if cfg.Web.Listen != ":8080" {
		t.Errorf("期望默认监听 :8080, 实际 %s", cfg.Web.Listen)
	}
	if cfg.Exchanges["binance"].RequestsPerSecond != 5 {
		t.Errorf("期望默认限流 5, 实际 %v", cfg.Exchanges["binance"].RequestsPerSecond)
	}
}

func TestLoadConfigFromBytes_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "缺少交易所",
			yaml:    "accounts:\n  - id: a\n    exchange: binance\n    symbols: [BTCUSDT]\n",
			wantErr: "交易所",
		},
		{
			name: "缺少账户",
			yaml: `
exchanges:
  binance: {api_key: k, secret_key: s}
`,
			wantErr: "账户",
		},
		{
			name: "账户引用不存在的交易所",
			yaml: `
exchanges:
  binance: {api_key: k, secret_key: s}
accounts:
  - id: a
    exchange: okx
    symbols: [BTCUSDT]
`,
			wantErr: "不存在",
		},
		{
			name: "账户 id 重复",
			yaml: `
exchanges:
  binance: {api_key: k, secret_key: s}
accounts:
  - id: a
    exchange: binance
    symbols: [BTCUSDT]
  - id: a
    exchange: binance
    symbols: [ETHUSDT]
`,
			wantErr: "重复",
		},
		{
			name: "账户无交易对",
			yaml: `
exchanges:
  binance: {api_key: k, secret_key: s}
accounts:
  - id: a
    exchange: binance
    symbols: []
`,
			wantErr: "交易对",
		},
		{
			name: "redis 锁缺少地址",
			yaml: minimalConfig + `
lock:
  type: redis
`,
			wantErr: "redis",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfigFromBytes([]byte(tt.yaml))
			if err == nil {
				t.Fatal("期望校验失败")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("错误信息应包含 %q, 实际: %v", tt.wantErr, err)
			}
		})
	}
}

func TestSyncConfig_DurationHelpers(t *testing.T) {
	cfg, err := LoadConfigFromBytes([]byte(minimalConfig))
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.Sync.Window().Hours() != 24 {
		t.Errorf("窗口时长错误: %v", cfg.Sync.Window())
	}
	if cfg.Sync.BackoffBase().Seconds() != 30 {
		t.Errorf("退避基数错误: %v", cfg.Sync.BackoffBase())
	}
	if cfg.Sync.BackoffMax().Seconds() != 3600 {
		t.Errorf("退避上限错误: %v", cfg.Sync.BackoffMax())
	}
	if cfg.Sync.FetchTimeout().Seconds() != 120 {
		t.Errorf("拉取超时错误: %v", cfg.Sync.FetchTimeout())
	}
}
