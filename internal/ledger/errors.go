package ledger

import "errors"

var (
	// ErrUnauthorized 调用方不是权限方，所有写操作最先检查
	ErrUnauthorized = errors.New("unauthorized")
	// ErrSymbolTooLong 符号超过 10 字节
	ErrSymbolTooLong = errors.New("symbol too long (max 10 chars)")
	// ErrInvalidScore 评分超过 100
	ErrInvalidScore = errors.New("invalid score (must be 0-100)")
	// ErrSignalAlreadyClosed 信号已离开 Open 状态，记录不可再变
	ErrSignalAlreadyClosed = errors.New("signal already closed")
	// ErrSignalNotFound 信号 id 不存在
	ErrSignalNotFound = errors.New("signal not found")
	// ErrAlreadyInitialized 状态行已存在，initialize 只允许一次
	ErrAlreadyInitialized = errors.New("ledger already initialized")
	// ErrNotInitialized 账本尚未初始化
	ErrNotInitialized = errors.New("ledger not initialized")
)
