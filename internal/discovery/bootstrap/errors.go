package bootstrap

import (
	"errors"
	"fmt"
)

// 预定义错误
var (
	// ErrMalformedBootstrapID ID 文件内容无法解析
	ErrMalformedBootstrapID = errors.New("bootstrap: malformed bootstrap id")

	// ErrNoBootstrapPeers 没有配置引导节点
	ErrNoBootstrapPeers = errors.New("bootstrap: no bootstrap peer configured")

	// ErrInvalidAddr 引导地址无效
	ErrInvalidAddr = errors.New("bootstrap: invalid bootstrap address")
)

// BootstrapError Bootstrap 错误类型
type BootstrapError struct {
	Op      string // 操作名称
	Path    string // 相关文件（如果适用）
	Err     error  // 底层错误
	Message string // 错误消息
}

// Error 实现 error 接口
func (e *BootstrapError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("bootstrap %s %s: %s: %v", e.Op, e.Path, e.Message, e.Err)
	}
	return fmt.Sprintf("bootstrap %s: %s: %v", e.Op, e.Message, e.Err)
}

// Unwrap 支持 errors.Unwrap
func (e *BootstrapError) Unwrap() error {
	return e.Err
}

// NewBootstrapError 创建 Bootstrap 错误
func NewBootstrapError(op, path string, err error, message string) *BootstrapError {
	return &BootstrapError{Op: op, Path: path, Err: err, Message: message}
}
