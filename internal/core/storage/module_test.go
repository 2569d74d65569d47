package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-kadnode/config"
)

// TestOpen_Disabled 测试未启用时不创建引擎
func TestOpen_Disabled(t *testing.T) {
	eng, err := Open(config.StorageConfig{DataDir: t.TempDir()})
	require.NoError(t, err)
	assert.Nil(t, eng)
}

// TestOpen_InMemory 测试内存模式
func TestOpen_InMemory(t *testing.T) {
	eng, err := Open(config.StorageConfig{InMemory: true, PersistRoutingTable: true})
	require.NoError(t, err)
	require.NotNil(t, eng)
	defer eng.Close()

	require.NoError(t, eng.Put([]byte("k"), []byte("v")))
	t.Log("✅ 内存模式测试通过")
}
