package liveness

import "errors"

var (
	// ErrPongMismatch 响应 ID 与请求不一致
	ErrPongMismatch = errors.New("liveness: pong id mismatch")
	// ErrNotStarted 服务未启动
	ErrNotStarted = errors.New("liveness: service not started")
)
