package noise

import "errors"

var (
	// ErrPeerIDMismatch 对端身份与期望不符
	ErrPeerIDMismatch = errors.New("noise: peer id mismatch")
	// ErrInvalidSignature 静态密钥签名无效
	ErrInvalidSignature = errors.New("noise: static key not bound to identity key")
	// ErrInvalidPayload 握手 payload 无法解析
	ErrInvalidPayload = errors.New("noise: invalid handshake payload")
)
