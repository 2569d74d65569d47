package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// FromJSON 从 JSON 加载配置
//
// 未出现的字段保留默认值。mode 为 server 时以引导节点默认值为基础。
func FromJSON(data []byte) (*Config, error) {
	var probe struct {
		Discovery struct {
			Mode string `json:"mode"`
		} `json:"discovery"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := NewConfig()
	if probe.Discovery.Mode == ModeServer {
		cfg = NewBootstrapConfig()
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFile 从 JSON 文件加载配置
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return FromJSON(data)
}

// ToJSON 序列化配置
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
