package noise

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-kadnode/internal/core/identity"
	"github.com/dep2p/go-kadnode/pkg/types"
)

func newTransport(t *testing.T, addrs ...string) (*Transport, *identity.Identity) {
	t.Helper()
	id, err := identity.Generate()
	require.NoError(t, err)

	var fn func() []ma.Multiaddr
	if len(addrs) > 0 {
		fn = func() []ma.Multiaddr {
			out := make([]ma.Multiaddr, 0, len(addrs))
			for _, a := range addrs {
				out = append(out, ma.StringCast(a))
			}
			return out
		}
	}
	tpt, err := New(id, fn)
	require.NoError(t, err)
	return tpt, id
}

type result struct {
	conn *SecureConn
	err  error
}

func handshake(t *testing.T, client, server *Transport, expected types.NodeID) (result, result) {
	t.Helper()
	c, s := net.Pipe()
	t.Cleanup(func() { c.Close(); s.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srvCh := make(chan result, 1)
	go func() {
		conn, err := server.SecureInbound(ctx, s)
		if err != nil {
			s.Close()
		}
		srvCh <- result{conn, err}
	}()
	conn, err := client.SecureOutbound(ctx, c, expected)
	if err != nil {
		c.Close()
	}
	return result{conn, err}, <-srvCh
}

// TestHandshake_MutualAuth 测试双向认证与地址交换
func TestHandshake_MutualAuth(t *testing.T) {
	client, clientID := newTransport(t)
	server, serverID := newTransport(t, "/ip4/127.0.0.1/tcp/50000")

	cr, sr := handshake(t, client, server, serverID.ID())
	require.NoError(t, cr.err)
	require.NoError(t, sr.err)

	assert.Equal(t, serverID.ID(), cr.conn.RemotePeer())
	assert.Equal(t, clientID.ID(), sr.conn.RemotePeer())
	assert.Equal(t, clientID.ID(), cr.conn.LocalPeer())
	require.Len(t, cr.conn.RemoteListenAddrs(), 1)
	assert.Equal(t, "/ip4/127.0.0.1/tcp/50000", cr.conn.RemoteListenAddrs()[0].String())
	assert.Empty(t, sr.conn.RemoteListenAddrs())

	t.Log("✅ 双向认证测试通过")
}

// TestHandshake_PeerIDMismatch 测试期望身份不符
func TestHandshake_PeerIDMismatch(t *testing.T) {
	client, _ := newTransport(t)
	server, _ := newTransport(t)

	cr, _ := handshake(t, client, server, types.NodeID{9, 9, 9})
	assert.ErrorIs(t, cr.err, ErrPeerIDMismatch)
}

// TestSecureConn_LargeWrite 测试超过单帧上限的数据
func TestSecureConn_LargeWrite(t *testing.T) {
	client, _ := newTransport(t)
	server, serverID := newTransport(t)

	cr, sr := handshake(t, client, server, serverID.ID())
	require.NoError(t, cr.err)
	require.NoError(t, sr.err)

	data := make([]byte, 3*maxPlaintext+123)
	for i := range data {
		data[i] = byte(i % 251)
	}

	go func() {
		_, _ = cr.conn.Write(data)
	}()

	got := make([]byte, len(data))
	_, err := io.ReadFull(sr.conn, got)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

// TestPayload_RoundTrip 测试 payload 编解码
func TestPayload_RoundTrip(t *testing.T) {
	id, err := identity.Generate()
	require.NoError(t, err)

	p := handshakePayload{
		IdentityKey: id.PublicKey(),
		IdentitySig: []byte("sig"),
		ListenAddrs: []ma.Multiaddr{ma.StringCast("/ip4/10.0.0.1/tcp/1"), ma.StringCast("/ip6/::1/tcp/2")},
	}
	out, err := unmarshalPayload(p.marshal())
	require.NoError(t, err)
	assert.Equal(t, p.IdentityKey, out.IdentityKey)
	assert.Equal(t, p.IdentitySig, out.IdentitySig)
	require.Len(t, out.ListenAddrs, 2)
	assert.True(t, out.ListenAddrs[1].Equal(p.ListenAddrs[1]))

	_, err = unmarshalPayload([]byte{0xff})
	assert.ErrorIs(t, err, ErrInvalidPayload)
	_, err = unmarshalPayload(nil)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
