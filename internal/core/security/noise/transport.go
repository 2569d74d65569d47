package noise

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"

	"github.com/flynn/noise"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-kadnode/pkg/types"
)

// Signer 握手所需的身份能力，由 identity.Identity 实现
type Signer interface {
	ID() types.NodeID
	PublicKey() ed25519.PublicKey
	Sign(data []byte) []byte
}

// Transport Noise 安全传输
type Transport struct {
	id          Signer
	static      noise.DHKey
	listenAddrs func() []ma.Multiaddr
}

// New 创建 Noise 传输
//
// listenAddrs 在每次握手时调用，返回写入 payload 的本地监听地址，可为 nil。
func New(id Signer, listenAddrs func() []ma.Multiaddr) (*Transport, error) {
	static, err := cipherSuite.GenerateKeypair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate noise static key: %w", err)
	}
	return &Transport{id: id, static: static, listenAddrs: listenAddrs}, nil
}

// SecureInbound 以响应者身份完成握手
func (t *Transport) SecureInbound(ctx context.Context, conn net.Conn) (*SecureConn, error) {
	return t.runHandshake(ctx, conn, false, types.EmptyNodeID)
}

// SecureOutbound 以发起者身份完成握手，expected 非空时校验对端身份
func (t *Transport) SecureOutbound(ctx context.Context, conn net.Conn, expected types.NodeID) (*SecureConn, error) {
	return t.runHandshake(ctx, conn, true, expected)
}
