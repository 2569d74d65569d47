package identity

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-kadnode/config"
	"github.com/dep2p/go-kadnode/pkg/lib/log"
)

var logger = log.Logger("core/identity")

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config

	// Identity 外部注入的身份（WithIdentity），优先级最高
	Identity *Identity `name:"preset_identity" optional:"true"`
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	Identity *Identity
}

// ProvideIdentity 按优先级提供身份：注入 > 密钥文件 > 新生成
func ProvideIdentity(in ModuleInput) (ModuleOutput, error) {
	if in.Identity != nil {
		return ModuleOutput{Identity: in.Identity}, nil
	}

	var (
		id  *Identity
		err error
	)
	if path := in.Config.Identity.KeyFile; path != "" {
		id, err = LoadOrGenerate(path)
	} else {
		id, err = Generate()
	}
	if err != nil {
		return ModuleOutput{}, err
	}
	logger.Info("节点身份就绪", "nodeID", id.ID().String())
	return ModuleOutput{Identity: id}, nil
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("identity",
		fx.Provide(ProvideIdentity),
	)
}
