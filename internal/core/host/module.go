package host

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-kadnode/config"
	"github.com/dep2p/go-kadnode/internal/core/eventbus"
	"github.com/dep2p/go-kadnode/internal/core/identity"
	"github.com/dep2p/go-kadnode/internal/core/metrics"
	"github.com/dep2p/go-kadnode/pkg/types"
)

// Params 模块依赖
type Params struct {
	fx.In

	Config   *config.Config
	Identity *identity.Identity
	Bus      *eventbus.Bus
	Metrics  *metrics.Metrics `optional:"true"`
}

// ConfigFromUnified 从统一配置构造主机参数
func ConfigFromUnified(cfg *config.Config) Config {
	t := cfg.Transport
	return Config{
		DialTimeout:       t.DialTimeout.Duration(),
		HandshakeTimeout:  t.HandshakeTimeout.Duration(),
		KeepAliveInterval: t.KeepAliveInterval.Duration(),
		MaxStreamWindow:   t.MaxStreamWindow,
	}
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("host",
		fx.Provide(provide),
		fx.Invoke(registerLifecycle),
	)
}

func provide(p Params) (*Host, error) {
	return New(p.Identity, ConfigFromUnified(p.Config), p.Bus, p.Metrics)
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, h *Host) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			addrs, err := types.ParseMultiaddrs(cfg.Transport.ListenAddrs)
			if err != nil {
				return err
			}
			return h.Listen(addrs...)
		},
		OnStop: func(context.Context) error {
			return h.Close()
		},
	})
}
