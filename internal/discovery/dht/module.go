package dht

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-kadnode/config"
	"github.com/dep2p/go-kadnode/internal/core/host"
	"github.com/dep2p/go-kadnode/internal/core/metrics"
	"github.com/dep2p/go-kadnode/internal/core/storage/engine"
	"github.com/dep2p/go-kadnode/pkg/types"
)

// Params 模块依赖
type Params struct {
	fx.In

	Config  *config.Config
	Host    *host.Host
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
	Storage engine.Engine    `optional:"true"`
}

// ConfigFromUnified 从统一配置构造 DHT 配置
func ConfigFromUnified(cfg *config.Config) Config {
	d := cfg.Discovery.DHT
	mode := types.ModeClient
	if cfg.Discovery.IsServer() {
		mode = types.ModeServer
	}
	return Config{
		Mode:                mode,
		BucketSize:          d.BucketSize,
		Alpha:               d.Alpha,
		QueryTimeout:        d.QueryTimeout.Duration(),
		RequestTimeout:      d.RequestTimeout.Duration(),
		MaxBootstrapBuckets: d.MaxBootstrapBuckets,
		MinCloseFill:        d.MinCloseFill,
		ProviderTTL:         d.ProviderTTL.Duration(),
		MaxProviderKeys:     d.MaxProviderKeys,
		RateLimitPerSecond:  d.RateLimitPerSecond,
		RateLimitBurst:      d.RateLimitBurst,
		PersistRoutingTable: cfg.Storage.PersistRoutingTable,
	}
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("dht",
		fx.Provide(provide),
		fx.Invoke(func(lc fx.Lifecycle, d *DHT) {
			lc.Append(fx.Hook{OnStart: d.Start, OnStop: d.Stop})
		}),
	)
}

func provide(p Params) (*DHT, error) {
	return New(p.Host, ConfigFromUnified(p.Config),
		WithMetrics(p.Metrics),
		WithClock(p.Clock),
		WithStorage(p.Storage),
	)
}
