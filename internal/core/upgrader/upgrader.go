// Package upgrader 将原始 TCP 连接升级为加密、多路复用的连接
//
// 升级顺序：multistream 协商 /noise → Noise XX 握手 →
// multistream 协商 /yamux/1.0.0 → yamux 会话。
package upgrader

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	mss "github.com/multiformats/go-multistream"

	"github.com/dep2p/go-kadnode/internal/core/muxer/yamux"
	"github.com/dep2p/go-kadnode/internal/core/security/noise"
	"github.com/dep2p/go-kadnode/pkg/protocolids"
	"github.com/dep2p/go-kadnode/pkg/types"
)

// Upgrader 连接升级器
type Upgrader struct {
	security *noise.Transport
	muxer    yamux.Config
	timeout  time.Duration
}

// New 创建升级器，timeout 覆盖协商与握手全过程
func New(security *noise.Transport, muxer yamux.Config, timeout time.Duration) *Upgrader {
	return &Upgrader{security: security, muxer: muxer, timeout: timeout}
}

// Upgrade 升级连接
//
// 出站连接 expected 必须为对端 ID；入站连接传 EmptyNodeID。
// 失败时由调用方关闭 raw。
func (u *Upgrader) Upgrade(ctx context.Context, raw manet.Conn, dir types.Direction, expected types.NodeID) (*Conn, error) {
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}
	server := dir == types.DirInbound

	if err := negotiate(ctx, raw, protocolids.Noise, server); err != nil {
		return nil, fmt.Errorf("negotiate security: %w", err)
	}

	var (
		sc  *noise.SecureConn
		err error
	)
	if server {
		sc, err = u.security.SecureInbound(ctx, raw)
	} else {
		sc, err = u.security.SecureOutbound(ctx, raw, expected)
	}
	if err != nil {
		return nil, err
	}

	if err := negotiate(ctx, sc, protocolids.Yamux, server); err != nil {
		return nil, fmt.Errorf("negotiate muxer: %w", err)
	}
	sess, err := yamux.NewSession(sc, server, u.muxer)
	if err != nil {
		return nil, fmt.Errorf("start muxer: %w", err)
	}

	return &Conn{
		Session:    sess,
		id:         uuid.NewString(),
		dir:        dir,
		secure:     sc,
		localAddr:  raw.LocalMultiaddr(),
		remoteAddr: raw.RemoteMultiaddr(),
	}, nil
}

// negotiate 用 multistream-select 协商单个协议
func negotiate(ctx context.Context, conn net.Conn, proto string, server bool) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
		defer conn.SetDeadline(time.Time{})
	}

	if server {
		m := mss.NewMultistreamMuxer[string]()
		m.AddHandler(proto, nil)
		_, _, err := m.Negotiate(conn)
		return err
	}
	_, err := mss.SelectOneOf([]string{proto}, conn)
	return err
}

// Conn 已升级的连接
type Conn struct {
	*yamux.Session

	id         string
	dir        types.Direction
	secure     *noise.SecureConn
	localAddr  ma.Multiaddr
	remoteAddr ma.Multiaddr
}

// ID 连接唯一标识
func (c *Conn) ID() string { return c.id }

// Direction 连接方向
func (c *Conn) Direction() types.Direction { return c.dir }

// RemotePeer 对端节点 ID
func (c *Conn) RemotePeer() types.NodeID { return c.secure.RemotePeer() }

// RemoteListenAddrs 对端声明的监听地址
func (c *Conn) RemoteListenAddrs() []ma.Multiaddr { return c.secure.RemoteListenAddrs() }

// LocalMultiaddr 本地地址
func (c *Conn) LocalMultiaddr() ma.Multiaddr { return c.localAddr }

// RemoteMultiaddr 对端地址
func (c *Conn) RemoteMultiaddr() ma.Multiaddr { return c.remoteAddr }
