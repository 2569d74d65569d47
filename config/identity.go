package config

// IdentityConfig 身份配置
//
// KeyFile 为空时每次启动生成新的 Ed25519 密钥对（普通节点的默认行为）；
// 非空时从 PEM 文件加载，文件不存在则生成并保存（引导节点用于保持 ID 稳定）。
type IdentityConfig struct {
	KeyFile string `json:"key_file,omitempty"`
}

// DefaultIdentityConfig 返回默认身份配置
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{}
}

// Validate 验证身份配置
func (c IdentityConfig) Validate() error {
	return nil
}
