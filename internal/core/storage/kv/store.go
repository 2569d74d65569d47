// Package kv 提供带前缀隔离的 KV 存储
//
// 键空间约定：
//   - d/r/ - DHT 路由表快照
package kv

import (
	"encoding/json"

	"github.com/dep2p/go-kadnode/internal/core/storage/engine"
)

// Store 带前缀隔离的 KV 存储
type Store struct {
	engine engine.Engine
	prefix []byte
}

// New 创建 Store，所有键自动加上 prefix
func New(eng engine.Engine, prefix []byte) *Store {
	return &Store{engine: eng, prefix: append([]byte(nil), prefix...)}
}

func (s *Store) prefixKey(key []byte) []byte {
	out := make([]byte, 0, len(s.prefix)+len(key))
	out = append(out, s.prefix...)
	return append(out, key...)
}

// Get 读取
func (s *Store) Get(key []byte) ([]byte, error) {
	return s.engine.Get(s.prefixKey(key))
}

// Put 写入
func (s *Store) Put(key, value []byte) error {
	return s.engine.Put(s.prefixKey(key), value)
}

// Delete 删除
func (s *Store) Delete(key []byte) error {
	return s.engine.Delete(s.prefixKey(key))
}

// GetJSON 读取并反序列化
func (s *Store) GetJSON(key []byte, v any) error {
	data, err := s.Get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// PutJSON 序列化并写入
func (s *Store) PutJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(key, data)
}

// Scan 遍历本命名空间，回调中的 key 已去掉前缀
func (s *Store) Scan(fn func(key, value []byte) bool) error {
	return s.engine.Scan(s.prefix, func(k, v []byte) bool {
		return fn(k[len(s.prefix):], v)
	})
}

// Replace 原子地用 entries 替换命名空间内的全部内容
func (s *Store) Replace(entries map[string][]byte) error {
	var ops []engine.Op
	err := s.engine.Scan(s.prefix, func(k, _ []byte) bool {
		if _, keep := entries[string(k[len(s.prefix):])]; !keep {
			ops = append(ops, engine.Op{Key: k})
		}
		return true
	})
	if err != nil {
		return err
	}
	for k, v := range entries {
		ops = append(ops, engine.Op{Key: s.prefixKey([]byte(k)), Value: v})
	}
	return s.engine.Write(ops)
}
