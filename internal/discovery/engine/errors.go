package engine

import (
	"errors"
	"fmt"
)

// 预定义错误
var (
	// ErrBootstrapUnreachable 引导节点在所有重试后仍不可达
	ErrBootstrapUnreachable = errors.New("engine: bootstrap unreachable")

	// ErrDialFailed 单次拨号失败
	ErrDialFailed = errors.New("engine: dial failed")

	// ErrAlreadyStarted 已启动
	ErrAlreadyStarted = errors.New("engine: already started")

	// ErrNotStarted 未启动
	ErrNotStarted = errors.New("engine: not started")

	// ErrNoBootstrap client 模式缺少引导配置
	ErrNoBootstrap = errors.New("engine: client mode requires a bootstrap source")
)

// EngineError 引擎错误
type EngineError struct {
	Op    string // 操作名称
	Addr  string // 相关地址（如果适用）
	Err   error  // 错误类别
	Cause error  // 底层原因
}

// Error 实现 error 接口
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("engine %s", e.Op)
	if e.Addr != "" {
		msg += " " + e.Addr
	}
	msg += ": " + e.Err.Error()
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap 同时暴露错误类别与底层原因
func (e *EngineError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}
