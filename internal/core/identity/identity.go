package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/dep2p/go-kadnode/pkg/types"
)

// ============================================================================
//                              Identity
// ============================================================================

// Identity 节点身份
//
// 创建后不可变，可在多个 goroutine 间共享。
type Identity struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	id   types.NodeID
}

// Generate 生成新的 Ed25519 身份
func Generate() (*Identity, error) {
	return generateFrom(rand.Reader)
}

func generateFrom(r io.Reader) (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityGeneration, err)
	}
	return newIdentity(priv, pub), nil
}

// FromSeed 从 32 字节种子恢复身份
func FromSeed(seed []byte) (*Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes", ErrInvalidKey, ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return newIdentity(priv, priv.Public().(ed25519.PublicKey)), nil
}

func newIdentity(priv ed25519.PrivateKey, pub ed25519.PublicKey) *Identity {
	return &Identity{priv: priv, pub: pub, id: NodeIDFromPublicKey(pub)}
}

// ID 返回节点 ID
func (i *Identity) ID() types.NodeID {
	return i.id
}

// PublicKey 返回公钥副本
func (i *Identity) PublicKey() ed25519.PublicKey {
	out := make(ed25519.PublicKey, len(i.pub))
	copy(out, i.pub)
	return out
}

// Sign 用私钥签名
func (i *Identity) Sign(data []byte) []byte {
	return ed25519.Sign(i.priv, data)
}

// String 只输出 ID，不输出任何密钥材料
func (i *Identity) String() string {
	return "Identity(" + i.id.String() + ")"
}

// GoString 同 String，避免 %#v 打印私钥
func (i *Identity) GoString() string {
	return i.String()
}

// NodeIDFromPublicKey 从公钥派生 NodeID
func NodeIDFromPublicKey(pub ed25519.PublicKey) types.NodeID {
	return types.NodeID(sha256.Sum256(pub))
}

// Verify 用公钥验证签名
func Verify(pub ed25519.PublicKey, data, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, data, sig)
}
