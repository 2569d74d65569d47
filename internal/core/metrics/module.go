package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-kadnode/config"
	"github.com/dep2p/go-kadnode/pkg/lib/log"
)

var logger = log.Logger("core/metrics")

// Module 返回 fx 模块
//
// Metrics.Enable 为 false 时提供 nil *Metrics。
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(provide),
		fx.Invoke(registerServer),
	)
}

func provide(cfg *config.Config) *Metrics {
	if !cfg.Metrics.Enable {
		return nil
	}
	return New()
}

func registerServer(lc fx.Lifecycle, cfg *config.Config, m *Metrics) {
	if m == nil || cfg.Metrics.ListenAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			l, err := net.Listen("tcp", cfg.Metrics.ListenAddr)
			if err != nil {
				return err
			}
			go func() {
				if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Warn("指标服务退出", "error", err)
				}
			}()
			logger.Info("指标服务已启动", "addr", l.Addr().String())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
