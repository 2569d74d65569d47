package liveness

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-kadnode/config"
	"github.com/dep2p/go-kadnode/internal/core/eventbus"
	"github.com/dep2p/go-kadnode/internal/core/host"
	"github.com/dep2p/go-kadnode/internal/core/metrics"
)

// Params 模块依赖
type Params struct {
	fx.In

	Config  *config.Config
	Host    *host.Host
	Bus     *eventbus.Bus
	Metrics *metrics.Metrics `optional:"true"`
	Clock   clock.Clock
}

// ConfigFromUnified 从统一配置构造参数
func ConfigFromUnified(cfg *config.Config) Config {
	return Config{
		Interval: cfg.Liveness.Interval.Duration(),
		Timeout:  cfg.Liveness.Timeout.Duration(),
		NoDial:   cfg.Discovery.IsServer(),
	}
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("liveness",
		fx.Provide(provide),
		fx.Invoke(func(lc fx.Lifecycle, s *Service) {
			lc.Append(fx.Hook{OnStart: s.Start, OnStop: s.Stop})
		}),
	)
}

func provide(p Params) *Service {
	return New(p.Host, p.Bus, p.Metrics, ConfigFromUnified(p.Config), p.Clock)
}
