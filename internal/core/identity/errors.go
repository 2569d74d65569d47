package identity

import "errors"

var (
	// ErrIdentityGeneration 密钥生成失败（启动致命错误）
	ErrIdentityGeneration = errors.New("identity: key generation failed")

	// ErrInvalidKey 密钥数据无效
	ErrInvalidKey = errors.New("identity: invalid key")

	// ErrInvalidPEM PEM 数据无效
	ErrInvalidPEM = errors.New("identity: invalid PEM data")
)
