package dht

import (
	"time"

	"github.com/dep2p/go-kadnode/pkg/types"
)

// Config DHT 配置
type Config struct {
	// Mode client 或 server；两种模式都响应查询
	Mode types.Mode

	// BucketSize K-桶大小
	BucketSize int

	// Alpha 并发查询参数
	Alpha int

	// QueryTimeout 单次查询超时
	QueryTimeout time.Duration

	// RequestTimeout 单个 RPC 超时
	RequestTimeout time.Duration

	// MaxBootstrapBuckets 引导查询最多刷新的桶数
	MaxBootstrapBuckets int

	// MinCloseFill 最近邻桶保留的最少条目数
	MinCloseFill int

	// ProviderTTL Provider 记录 TTL
	ProviderTTL time.Duration

	// MaxProviderKeys provider 存储最大 key 数
	MaxProviderKeys int

	// RateLimitPerSecond 单个来源每秒请求数
	RateLimitPerSecond float64

	// RateLimitBurst 令牌桶容量
	RateLimitBurst int

	// PersistRoutingTable 启动时加载、停止时保存路由表快照
	PersistRoutingTable bool
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Mode:                types.ModeClient,
		BucketSize:          20,
		Alpha:               3,
		QueryTimeout:        60 * time.Second,
		RequestTimeout:      10 * time.Second,
		MaxBootstrapBuckets: 16,
		MinCloseFill:        1,
		ProviderTTL:         24 * time.Hour,
		MaxProviderKeys:     4096,
		RateLimitPerSecond:  50,
		RateLimitBurst:      100,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	switch {
	case c.BucketSize < 1, c.Alpha < 1:
		return NewDHTError("config", ErrInvalidConfig, "bucket size and alpha must be positive")
	case c.QueryTimeout <= 0, c.RequestTimeout <= 0:
		return NewDHTError("config", ErrInvalidConfig, "timeouts must be positive")
	case c.MaxBootstrapBuckets < 1 || c.MaxBootstrapBuckets > KeySize:
		return NewDHTError("config", ErrInvalidConfig, "max bootstrap buckets out of range")
	case c.MinCloseFill < 0 || c.MinCloseFill > c.BucketSize:
		return NewDHTError("config", ErrInvalidConfig, "min close fill out of range")
	case c.ProviderTTL <= 0, c.MaxProviderKeys < 1:
		return NewDHTError("config", ErrInvalidConfig, "provider store settings must be positive")
	case c.RateLimitPerSecond <= 0, c.RateLimitBurst < 1:
		return NewDHTError("config", ErrInvalidConfig, "rate limit settings must be positive")
	}
	return nil
}
