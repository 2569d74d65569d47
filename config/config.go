// Package config 提供统一的配置管理
//
// 主 Config 结构体嵌入所有子配置，每个子配置在独立文件中定义，
// 支持从 JSON 加载和保存。
//
// 使用示例：
//
//	// 普通节点默认配置
//	cfg := config.NewConfig()
//	cfg.Discovery.Bootstrap.IDFile = "/tmp/bootstrap.id"
//
//	// 引导节点配置
//	cfg := config.NewBootstrapConfig()
//
//	// 从文件加载
//	cfg, err := config.LoadFile("node.json")
package config

import "fmt"

// Config 是 kadnode 的完整配置结构
//
//   - Identity: 身份和密钥
//   - Transport: 监听地址与连接升级
//   - Discovery: 运行模式、引导节点、DHT 参数
//   - Liveness: 存活探测
//   - Storage: 路由表快照持久化
//   - Metrics: Prometheus 指标
//   - Log: 日志
type Config struct {
	Identity  IdentityConfig  `json:"identity"`
	Transport TransportConfig `json:"transport"`
	Discovery DiscoveryConfig `json:"discovery"`
	Liveness  LivenessConfig  `json:"liveness"`
	Storage   StorageConfig   `json:"storage"`
	Metrics   MetricsConfig   `json:"metrics"`
	Log       LogConfig       `json:"log"`
}

// NewConfig 创建普通节点（client 模式）的默认配置
func NewConfig() *Config {
	return &Config{
		Identity:  DefaultIdentityConfig(),
		Transport: DefaultTransportConfig(),
		Discovery: DefaultDiscoveryConfig(),
		Liveness:  DefaultLivenessConfig(),
		Storage:   DefaultStorageConfig(),
		Metrics:   DefaultMetricsConfig(),
		Log:       DefaultLogConfig(),
	}
}

// NewBootstrapConfig 创建引导节点（server 模式）的默认配置
//
// 监听 /ip4/0.0.0.0/tcp/50000，启动后将自身 ID 写入引导 ID 文件。
func NewBootstrapConfig() *Config {
	cfg := NewConfig()
	cfg.Discovery.Mode = ModeServer
	cfg.Transport.ListenAddrs = []string{DefaultBootstrapListenAddr}
	cfg.Discovery.Bootstrap.WriteIDFile = true
	return cfg
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if err := c.Identity.Validate(); err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	if err := c.Discovery.Validate(); err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	if err := c.Liveness.Validate(); err != nil {
		return fmt.Errorf("liveness: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// Clone 深拷贝配置
func (c *Config) Clone() *Config {
	out := *c
	out.Transport.ListenAddrs = append([]string(nil), c.Transport.ListenAddrs...)
	return &out
}
