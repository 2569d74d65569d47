// Package engine 定义存储引擎抽象
package engine

import "errors"

var (
	// ErrNotFound 键不存在
	ErrNotFound = errors.New("storage: key not found")
	// ErrClosed 引擎已关闭
	ErrClosed = errors.New("storage: engine closed")
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("storage: invalid config")
)

// Engine 键值存储引擎
type Engine interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)

	// Scan 按前缀遍历，fn 返回 false 时停止
	Scan(prefix []byte, fn func(key, value []byte) bool) error

	// Write 原子地执行一批写操作
	Write(ops []Op) error

	Close() error
}

// Op 批量写操作，Value 为 nil 表示删除
type Op struct {
	Key   []byte
	Value []byte
}

// Config 引擎配置
type Config struct {
	// Path 数据目录，InMemory 时忽略
	Path string
	// InMemory 仅内存存储
	InMemory bool
	// SyncWrites 每次写入是否同步落盘
	SyncWrites bool
}

// Validate 校验配置
func (c Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return ErrInvalidConfig
	}
	return nil
}

// IsNotFound 判断是否为键不存在错误
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
