package dht

import (
	"errors"
	"fmt"
)

// 预定义错误
var (
	// ErrDHTClosed DHT 已关闭
	ErrDHTClosed = errors.New("dht: DHT is closed")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("dht: invalid config")

	// ErrNilHost Host 为空
	ErrNilHost = errors.New("dht: host is nil")

	// ErrNoNearbyPeers 没有附近节点
	ErrNoNearbyPeers = errors.New("dht: no nearby peers")

	// ErrQueryTimeout 查询超时
	ErrQueryTimeout = errors.New("dht: query timeout")

	// ErrProvideFailed provider 广播失败
	ErrProvideFailed = errors.New("dht: provide failed")

	// ErrInvalidResponse 无效响应
	ErrInvalidResponse = errors.New("dht: invalid response")

	// ErrRemote 对端返回错误
	ErrRemote = errors.New("dht: remote error")

	// ErrRateLimitExceeded 速率限制超限
	ErrRateLimitExceeded = errors.New("dht: rate limit exceeded")

	// ErrSenderMismatch 请求声明的发送方与连接对端不一致
	ErrSenderMismatch = errors.New("dht: sender does not match connection")

	// ErrUnsupportedMessage 不支持的消息类型
	ErrUnsupportedMessage = errors.New("dht: unsupported message type")

	// ErrEmptyKey provider key 为空
	ErrEmptyKey = errors.New("dht: empty provider key")
)

// DHTError DHT 错误类型
type DHTError struct {
	Op      string // 操作名称
	Err     error  // 底层错误
	Message string // 错误消息
}

// Error 实现 error 接口
func (e *DHTError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("dht %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("dht %s: %v", e.Op, e.Err)
}

// Unwrap 实现错误解包
func (e *DHTError) Unwrap() error {
	return e.Err
}

// NewDHTError 创建 DHT 错误
func NewDHTError(op string, err error, message string) *DHTError {
	return &DHTError{Op: op, Err: err, Message: message}
}
