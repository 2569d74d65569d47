package identity

import (
	"crypto/ed25519"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/dep2p/go-kadnode/pkg/lib/fsutil"
)

const pemTypeEd25519Seed = "ED25519 PRIVATE KEY"

// Save 将私钥种子以 PEM 格式写入文件（0600）
func (i *Identity) Save(path string) error {
	block := &pem.Block{Type: pemTypeEd25519Seed, Bytes: i.priv.Seed()}
	return fsutil.WriteFileAtomic(path, pem.EncodeToMemory(block), 0o600)
}

// Load 从 PEM 文件加载身份
func Load(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypeEd25519Seed {
		return nil, ErrInvalidPEM
	}
	if len(block.Bytes) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: unexpected seed length %d", ErrInvalidKey, len(block.Bytes))
	}
	return FromSeed(block.Bytes)
}

// LoadOrGenerate 加载身份，文件不存在时生成并保存
func LoadOrGenerate(path string) (*Identity, error) {
	id, err := Load(path)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("加载身份失败: %w", err)
	}
	id, err = Generate()
	if err != nil {
		return nil, err
	}
	if err := id.Save(path); err != nil {
		return nil, fmt.Errorf("保存身份失败: %w", err)
	}
	return id, nil
}
