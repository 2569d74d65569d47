package config

import (
	"errors"
	"time"

	ma "github.com/multiformats/go-multiaddr"
)

// 默认监听地址
const (
	// DefaultBootstrapListenAddr 引导节点固定监听地址
	DefaultBootstrapListenAddr = "/ip4/0.0.0.0/tcp/50000"
	// DefaultListenAddr 普通节点临时端口
	DefaultListenAddr = "/ip4/0.0.0.0/tcp/0"
)

// TransportConfig 传输层配置
type TransportConfig struct {
	// ListenAddrs 监听地址（multiaddr）
	ListenAddrs []string `json:"listen_addrs"`

	// DialTimeout 单次拨号超时（含握手）
	DialTimeout Duration `json:"dial_timeout"`

	// HandshakeTimeout 安全握手与协议协商超时
	HandshakeTimeout Duration `json:"handshake_timeout"`

	// KeepAliveInterval yamux 心跳间隔
	KeepAliveInterval Duration `json:"keep_alive_interval"`

	// MaxStreamWindow yamux 单流最大接收窗口（字节）
	MaxStreamWindow uint32 `json:"max_stream_window"`
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ListenAddrs:       []string{DefaultListenAddr},
		DialTimeout:       Duration(15 * time.Second),
		HandshakeTimeout:  Duration(10 * time.Second),
		KeepAliveInterval: Duration(30 * time.Second),
		MaxStreamWindow:   1 << 20,
	}
}

// Validate 验证传输配置
func (c TransportConfig) Validate() error {
	if len(c.ListenAddrs) == 0 {
		return errors.New("at least one listen address is required")
	}
	for _, s := range c.ListenAddrs {
		if _, err := ma.NewMultiaddr(s); err != nil {
			return err
		}
	}
	if c.DialTimeout <= 0 || c.HandshakeTimeout <= 0 {
		return errors.New("dial and handshake timeouts must be positive")
	}
	if c.KeepAliveInterval <= 0 {
		return errors.New("keep alive interval must be positive")
	}
	if c.MaxStreamWindow < 256*1024 {
		return errors.New("max stream window must be at least 256KiB")
	}
	return nil
}
