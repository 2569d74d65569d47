package kadnode

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-kadnode/config"
	"github.com/dep2p/go-kadnode/internal/core/eventbus"
	"github.com/dep2p/go-kadnode/internal/core/host"
	"github.com/dep2p/go-kadnode/internal/core/identity"
	"github.com/dep2p/go-kadnode/internal/core/metrics"
	"github.com/dep2p/go-kadnode/internal/core/storage"
	"github.com/dep2p/go-kadnode/internal/discovery/bootstrap"
	"github.com/dep2p/go-kadnode/internal/discovery/dht"
	"github.com/dep2p/go-kadnode/internal/discovery/engine"
	"github.com/dep2p/go-kadnode/internal/protocol/liveness"
)

// buildFxApp 构建 Fx 应用
//
// 模块按依赖顺序注册，OnStart 钩子也按此顺序执行：
//  1. Core: EventBus → Metrics → Identity → Host → Storage
//  2. Protocol: Liveness
//  3. Discovery: DHT → Bootstrap（写出 ID 文件）→ Engine（加入网络）
func buildFxApp(cfg *config.Config, o *options, node *Node) (*fx.App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	clk := o.clock
	if clk == nil {
		clk = clock.New()
	}

	modules := []fx.Option{
		fx.Supply(cfg),
		fx.Provide(func() clock.Clock { return clk }),

		eventbus.Module(),
		metrics.Module(),
		identity.Module(),
		host.Module(),
		storage.Module(),

		liveness.Module(),

		dht.Module(),
		bootstrap.Module(),
		engine.Module(),

		fx.Populate(&node.bus, &node.host, &node.dht, &node.liveness, &node.engine),
	}
	modules = append(modules, o.fxOptions...)

	modules = append(modules, fx.WithLogger(func() fxevent.Logger {
		if !cfg.Log.FxEvents {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}
		l, err := zap.NewDevelopment()
		if err != nil {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}
		return &fxevent.ZapLogger{Logger: l.Named("fx")}
	}))

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return app, nil
}

// startTimeout 启动超时：覆盖 ID 文件等待与全部引导拨号重试
func startTimeout(cfg *config.Config) time.Duration {
	bc := cfg.Discovery.Bootstrap
	d := 30 * time.Second
	if cfg.Discovery.IsServer() {
		return d
	}
	backoff := bc.InitialBackoff.Duration()
	for i := 0; i < bc.MaxDialAttempts; i++ {
		d += cfg.Transport.DialTimeout.Duration() + backoff
		backoff = min(backoff*2, bc.MaxBackoff.Duration())
	}
	return d
}
