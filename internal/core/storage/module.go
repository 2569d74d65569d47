// Package storage 组装持久化存储
//
// 存储为可选组件：未配置数据目录且未启用内存模式时不创建引擎。
package storage

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-kadnode/config"
	"github.com/dep2p/go-kadnode/internal/core/storage/engine"
	"github.com/dep2p/go-kadnode/internal/core/storage/engine/badger"
	"github.com/dep2p/go-kadnode/pkg/lib/log"
)

var logger = log.Logger("core/storage")

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(provide),
	)
}

// provide 未启用时提供 nil 引擎，使用方需判空
func provide(lc fx.Lifecycle, cfg *config.Config) (engine.Engine, error) {
	eng, err := Open(cfg.Storage)
	if err != nil || eng == nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return eng.Close()
		},
	})
	return eng, nil
}

// Open 按配置打开引擎，未启用时返回 nil
func Open(cfg config.StorageConfig) (engine.Engine, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	eng, err := badger.New(engine.Config{
		Path:     cfg.DBPath(),
		InMemory: cfg.InMemory,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("存储已打开", "path", cfg.DBPath(), "inMemory", cfg.InMemory)
	return eng, nil
}
