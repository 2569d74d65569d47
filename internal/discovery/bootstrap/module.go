package bootstrap

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-kadnode/config"
	"github.com/dep2p/go-kadnode/internal/core/host"
	"github.com/dep2p/go-kadnode/pkg/lib/log"
)

var logger = log.Logger("discovery/bootstrap")

// Params 模块依赖
type Params struct {
	fx.In

	Config *config.Config
	// Host 保证写出 ID 文件时监听已经就绪
	Host *host.Host
}

// Module 返回 fx 模块
//
// 提供 Source（server 模式下为 nil），server 模式且启用 WriteIDFile 时
// 在启动阶段写出自身 ID。
func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(func(cfg *config.Config, clk clock.Clock) (Source, error) {
			return FromUnified(cfg, clk)
		}),
		fx.Invoke(registerIDFile),
	)
}

func registerIDFile(lc fx.Lifecycle, p Params) {
	bc := p.Config.Discovery.Bootstrap
	if !p.Config.Discovery.IsServer() || !bc.WriteIDFile {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			id := p.Host.ID()
			if err := WriteIDFile(bc.IDFile, id); err != nil {
				return err
			}
			logger.Info("已写出引导节点 ID", "path", bc.IDFile, "id", id.String(), "addrs", p.Host.Addrs())
			return nil
		},
	})
}
