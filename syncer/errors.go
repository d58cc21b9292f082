package syncer

import "errors"

var (
	// ErrSyncInProgress 同一账户已有同步在运行（单飞拒绝，不排队）
	ErrSyncInProgress = errors.New("该账户已有同步正在运行")

	// ErrQuotaExhausted 当日同步配额已耗尽
	ErrQuotaExhausted = errors.New("当日同步配额已耗尽")

	// ErrBackoffActive 连续失败退避期未结束
	ErrBackoffActive = errors.New("退避期未结束，暂不允许同步")

	// ErrAccountNotFound 账户未配置
	ErrAccountNotFound = errors.New("账户不存在")
)
