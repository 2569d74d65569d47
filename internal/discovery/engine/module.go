package engine

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-kadnode/config"
	"github.com/dep2p/go-kadnode/internal/core/eventbus"
	"github.com/dep2p/go-kadnode/internal/core/host"
	"github.com/dep2p/go-kadnode/internal/core/metrics"
	"github.com/dep2p/go-kadnode/internal/discovery/bootstrap"
	"github.com/dep2p/go-kadnode/internal/discovery/dht"
	"github.com/dep2p/go-kadnode/internal/protocol/liveness"
	"github.com/dep2p/go-kadnode/pkg/types"
)

// Params 模块依赖
type Params struct {
	fx.In

	Config   *config.Config
	Host     *host.Host
	DHT      *dht.DHT
	Bus      *eventbus.Bus
	Clock    clock.Clock
	Source   bootstrap.Source  `optional:"true"`
	Liveness *liveness.Service `optional:"true"`
	Metrics  *metrics.Metrics  `optional:"true"`
}

// ConfigFromUnified 从统一配置构造引擎配置
func ConfigFromUnified(cfg *config.Config) Config {
	d := cfg.Discovery
	mode := types.ModeClient
	if d.IsServer() {
		mode = types.ModeServer
	}
	return Config{
		Mode:                mode,
		MaxDialAttempts:     d.Bootstrap.MaxDialAttempts,
		InitialBackoff:      d.Bootstrap.InitialBackoff.Duration(),
		MaxBackoff:          d.Bootstrap.MaxBackoff.Duration(),
		FailOnUnreachable:   d.Bootstrap.FailOnUnreachable,
		RefreshInterval:     d.DHT.RefreshInterval.Duration(),
		EnableProvide:       d.DHT.EnableProvide,
		PersistRoutingTable: cfg.Storage.PersistRoutingTable,
		ProbeTimeout:        cfg.Liveness.ProbeTimeout.Duration(),
		FailureThreshold:    cfg.Liveness.FailureThreshold,
	}
}

// Module 返回 fx 模块
//
// client 模式且 FailOnUnreachable 时，启动阶段等待加入完成，
// 引导节点不可达会使整个应用启动失败。
func Module() fx.Option {
	return fx.Module("discovery/engine",
		fx.Provide(provide),
		fx.Invoke(registerLifecycle),
	)
}

func provide(p Params) *Engine {
	opts := []Option{
		WithMetrics(p.Metrics),
		WithClock(p.Clock),
		WithBootstrapSource(p.Source),
	}
	if p.Liveness != nil {
		opts = append(opts, WithProber(p.Liveness))
	}
	return New(ConfigFromUnified(p.Config), p.DHT, p.Host, p.Bus, opts...)
}

func registerLifecycle(lc fx.Lifecycle, e *Engine) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := e.Start(ctx); err != nil {
				return err
			}
			if e.cfg.Mode == types.ModeClient && e.cfg.FailOnUnreachable {
				if err := e.WaitJoined(ctx); err != nil {
					_ = e.Stop(context.Background())
					return err
				}
			}
			return nil
		},
		OnStop: e.Stop,
	})
}
