package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-kadnode/pkg/types"
)

// 运行模式
const (
	ModeClient = "client"
	ModeServer = "server"
)

// DefaultBootstrapIDFile 引导节点 ID 文件默认路径
const DefaultBootstrapIDFile = "bootstrap.id"

// DiscoveryConfig 节点发现配置
type DiscoveryConfig struct {
	// Mode client 或 server
	Mode string `json:"mode"`

	Bootstrap BootstrapConfig `json:"bootstrap"`
	DHT       DHTConfig       `json:"dht"`
}

// BootstrapConfig 引导配置
//
// 普通节点需要引导节点的 ID 和地址。ID 可以直接写在 PeerID 中，
// 也可以从引导节点写出的 ID 文件读取；两者都给出时以 PeerID 为准。
type BootstrapConfig struct {
	// PeerID 引导节点 ID（Base58）
	PeerID string `json:"peer_id,omitempty"`

	// Addr 引导节点地址，如 /ip4/127.0.0.1/tcp/50000；
	// 也可以是带 /p2p/<id> 的完整地址，此时忽略 PeerID 与 IDFile
	Addr string `json:"addr,omitempty"`

	// IDFile 引导节点 ID 文件路径
	IDFile string `json:"id_file,omitempty"`

	// WriteIDFile server 模式启动后写出自身 ID
	WriteIDFile bool `json:"write_id_file,omitempty"`

	// MaxDialAttempts 拨号最大尝试次数
	MaxDialAttempts int `json:"max_dial_attempts"`

	// InitialBackoff 首次重试等待
	InitialBackoff Duration `json:"initial_backoff"`

	// MaxBackoff 重试等待上限
	MaxBackoff Duration `json:"max_backoff"`

	// FailOnUnreachable 引导不可达时启动失败
	FailOnUnreachable bool `json:"fail_on_unreachable"`
}

// DHTConfig DHT 配置
type DHTConfig struct {
	// BucketSize K-桶容量
	BucketSize int `json:"bucket_size"`

	// Alpha 并发查询参数
	Alpha int `json:"alpha"`

	// QueryTimeout 单次查询超时
	QueryTimeout Duration `json:"query_timeout"`

	// RequestTimeout 单个 RPC 超时
	RequestTimeout Duration `json:"request_timeout"`

	// RefreshInterval 路由表刷新间隔
	RefreshInterval Duration `json:"refresh_interval"`

	// MaxBootstrapBuckets 引导查询最多刷新的桶数
	MaxBootstrapBuckets int `json:"max_bootstrap_buckets"`

	// MinCloseFill 最近邻桶保留的最少条目数
	MinCloseFill int `json:"min_close_fill"`

	// EnableProvide 加入后广播自身 ID 作为 provider 记录
	EnableProvide bool `json:"enable_provide"`

	// ProviderTTL provider 记录有效期
	ProviderTTL Duration `json:"provider_ttl"`

	// MaxProviderKeys provider 存储的最大 key 数
	MaxProviderKeys int `json:"max_provider_keys"`

	// RateLimitPerSecond 单个来源节点每秒请求数
	RateLimitPerSecond float64 `json:"rate_limit_per_second"`

	// RateLimitBurst 令牌桶容量
	RateLimitBurst int `json:"rate_limit_burst"`
}

// DefaultDiscoveryConfig 返回默认发现配置
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		Mode: ModeClient,
		Bootstrap: BootstrapConfig{
			IDFile:            DefaultBootstrapIDFile,
			MaxDialAttempts:   5,
			InitialBackoff:    Duration(500 * time.Millisecond),
			MaxBackoff:        Duration(8 * time.Second),
			FailOnUnreachable: true,
		},
		DHT: DHTConfig{
			BucketSize:          20,
			Alpha:               3,
			QueryTimeout:        Duration(60 * time.Second),
			RequestTimeout:      Duration(10 * time.Second),
			RefreshInterval:     Duration(30 * time.Second),
			MaxBootstrapBuckets: 16,
			MinCloseFill:        1,
			EnableProvide:       true,
			ProviderTTL:         Duration(24 * time.Hour),
			MaxProviderKeys:     4096,
			RateLimitPerSecond:  50,
			RateLimitBurst:      100,
		},
	}
}

// IsServer 是否为 server 模式
func (c DiscoveryConfig) IsServer() bool {
	return c.Mode == ModeServer
}

// Validate 验证发现配置
func (c DiscoveryConfig) Validate() error {
	switch c.Mode {
	case ModeClient, ModeServer:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if err := c.Bootstrap.validate(c.Mode); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if err := c.DHT.Validate(); err != nil {
		return fmt.Errorf("dht: %w", err)
	}
	return nil
}

func (c BootstrapConfig) validate(mode string) error {
	withID := strings.Contains(c.Addr, "/p2p/")
	if withID {
		if _, err := types.ParseAddrInfo(c.Addr); err != nil {
			return err
		}
	} else if c.Addr != "" {
		if _, err := ma.NewMultiaddr(c.Addr); err != nil {
			return err
		}
	}
	if mode == ModeClient {
		if c.Addr == "" {
			return errors.New("addr is required in client mode")
		}
		if !withID && c.PeerID == "" && c.IDFile == "" {
			return errors.New("peer_id or id_file is required in client mode")
		}
	}
	if c.WriteIDFile && c.IDFile == "" {
		return errors.New("write_id_file requires id_file")
	}
	if c.MaxDialAttempts < 1 {
		return errors.New("max_dial_attempts must be at least 1")
	}
	if c.InitialBackoff <= 0 || c.MaxBackoff < c.InitialBackoff {
		return errors.New("backoff must be positive and max >= initial")
	}
	return nil
}

// Validate 验证 DHT 配置
func (c DHTConfig) Validate() error {
	if c.BucketSize < 1 {
		return errors.New("bucket_size must be positive")
	}
	if c.Alpha < 1 {
		return errors.New("alpha must be positive")
	}
	if c.QueryTimeout <= 0 || c.RequestTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if c.RefreshInterval <= 0 {
		return errors.New("refresh_interval must be positive")
	}
	if c.MaxBootstrapBuckets < 1 || c.MaxBootstrapBuckets > 256 {
		return errors.New("max_bootstrap_buckets must be in [1, 256]")
	}
	if c.MinCloseFill < 0 || c.MinCloseFill > c.BucketSize {
		return errors.New("min_close_fill must be in [0, bucket_size]")
	}
	if c.ProviderTTL <= 0 || c.MaxProviderKeys < 1 {
		return errors.New("provider store settings must be positive")
	}
	if c.RateLimitPerSecond <= 0 || c.RateLimitBurst < 1 {
		return errors.New("rate limit settings must be positive")
	}
	return nil
}
