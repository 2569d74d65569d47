package kadnode

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-kadnode/config"
	"github.com/dep2p/go-kadnode/pkg/types"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
//
// base 为基础配置，overrides 按调用顺序覆盖其上，
// 因此 WithConfig 与其它选项的先后顺序不影响结果。
type options struct {
	base      *config.Config
	overrides []func(*config.Config)

	clock     clock.Clock
	fxOptions []fx.Option
}

func newOptions() *options {
	return &options{}
}

func (o *options) override(fn func(*config.Config)) {
	o.overrides = append(o.overrides, fn)
}

// toConfig 生成最终配置
func (o *options) toConfig() *config.Config {
	var cfg *config.Config
	if o.base != nil {
		cfg = o.base.Clone()
	} else {
		cfg = config.NewConfig()
	}
	for _, fn := range o.overrides {
		fn(cfg)
	}
	return cfg
}

// ============================================================================
//                              配置来源
// ============================================================================

// WithConfig 使用完整配置作为基础
//
//	kadnode.New(kadnode.WithConfig(config.NewBootstrapConfig()))
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("配置不能为空")
		}
		o.base = cfg
		return nil
	}
}

// WithConfigFile 从 JSON 文件加载基础配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		o.base = cfg
		return nil
	}
}

// ============================================================================
//                              身份与监听
// ============================================================================

// WithIdentityFromFile 从 PEM 文件加载身份，不存在时生成并保存
func WithIdentityFromFile(path string) Option {
	return func(o *options) error {
		if path == "" {
			return fmt.Errorf("身份密钥文件路径不能为空")
		}
		o.override(func(c *config.Config) { c.Identity.KeyFile = path })
		return nil
	}
}

// WithListenAddrs 设置监听地址，覆盖默认值
func WithListenAddrs(addrs ...string) Option {
	return func(o *options) error {
		if _, err := types.ParseMultiaddrs(addrs); err != nil {
			return err
		}
		o.override(func(c *config.Config) {
			c.Transport.ListenAddrs = append([]string(nil), addrs...)
		})
		return nil
	}
}

// ============================================================================
//                              发现选项
// ============================================================================

// WithServerMode 以引导节点角色运行：不拨号，启动即 Active
func WithServerMode() Option {
	return func(o *options) error {
		o.override(func(c *config.Config) { c.Discovery.Mode = config.ModeServer })
		return nil
	}
}

// WithBootstrap 使用完整地址指定引导节点
//
//	kadnode.New(kadnode.WithBootstrap("/ip4/127.0.0.1/tcp/50000/p2p/<NodeID>"))
func WithBootstrap(addr string) Option {
	return func(o *options) error {
		if _, err := types.ParseAddrInfo(addr); err != nil {
			return err
		}
		o.override(func(c *config.Config) {
			c.Discovery.Mode = config.ModeClient
			c.Discovery.Bootstrap.Addr = addr
			c.Discovery.Bootstrap.PeerID = ""
		})
		return nil
	}
}

// WithBootstrapIDFile 从引导节点写出的 ID 文件读取其 ID，addr 为其监听地址
func WithBootstrapIDFile(path, addr string) Option {
	return func(o *options) error {
		if path == "" {
			return fmt.Errorf("ID 文件路径不能为空")
		}
		o.override(func(c *config.Config) {
			c.Discovery.Mode = config.ModeClient
			c.Discovery.Bootstrap.IDFile = path
			c.Discovery.Bootstrap.Addr = addr
		})
		return nil
	}
}

// WithRefreshInterval 设置路由表刷新间隔
func WithRefreshInterval(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("刷新间隔必须为正数: %s", d)
		}
		o.override(func(c *config.Config) { c.Discovery.DHT.RefreshInterval = config.Duration(d) })
		return nil
	}
}

// ============================================================================
//                              其它选项
// ============================================================================

// WithDataDir 在 dir 下持久化路由表快照
func WithDataDir(dir string) Option {
	return func(o *options) error {
		o.override(func(c *config.Config) {
			c.Storage.DataDir = dir
			c.Storage.PersistRoutingTable = true
		})
		return nil
	}
}

// WithMetricsAddr 在 addr 上提供 /metrics
func WithMetricsAddr(addr string) Option {
	return func(o *options) error {
		o.override(func(c *config.Config) {
			c.Metrics.Enable = true
			c.Metrics.ListenAddr = addr
		})
		return nil
	}
}

// WithLogLevel 设置日志级别
func WithLogLevel(level string) Option {
	return func(o *options) error {
		o.override(func(c *config.Config) { c.Log.Level = level })
		return nil
	}
}

// WithClock 替换时钟，测试中用于注入 clock.Mock
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		o.clock = clk
		return nil
	}
}

// WithFxOptions 追加自定义 fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOptions = append(o.fxOptions, opts...)
		return nil
	}
}
