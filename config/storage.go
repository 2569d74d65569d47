package config

import (
	"errors"
	"path/filepath"
)

// StorageConfig 存储配置
//
// DataDir 为空时不落盘；PersistRoutingTable 要求 DataDir 非空或使用内存模式。
type StorageConfig struct {
	DataDir             string `json:"data_dir,omitempty"`
	InMemory            bool   `json:"in_memory,omitempty"`
	PersistRoutingTable bool   `json:"persist_routing_table,omitempty"`
}

// DefaultStorageConfig 返回默认存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{}
}

// Enabled 是否需要打开存储引擎
func (c StorageConfig) Enabled() bool {
	return c.PersistRoutingTable
}

// Validate 验证存储配置
func (c StorageConfig) Validate() error {
	if c.PersistRoutingTable && c.DataDir == "" && !c.InMemory {
		return errors.New("persist_routing_table requires data_dir or in_memory")
	}
	return nil
}

// DBPath 返回 badger 数据目录
func (c StorageConfig) DBPath() string {
	return filepath.Join(c.DataDir, "routing")
}
