// Package tcp 提供基于 TCP 的传输层
//
// 地址使用 multiaddr 表示（/ip4/.../tcp/...），拨号与监听由 go-multiaddr/net 完成。
// TCP 不提供加密与多路复用，连接需交给 upgrader 升级。
package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"go.uber.org/multierr"
)

var (
	// ErrClosed 传输已关闭
	ErrClosed = errors.New("tcp: transport closed")
	// ErrUnsupportedAddr 不是 TCP 地址
	ErrUnsupportedAddr = errors.New("tcp: unsupported address")
)

// Transport TCP 传输
type Transport struct {
	dialTimeout time.Duration

	mu        sync.Mutex
	listeners map[manet.Listener]struct{}
	closed    bool
}

// New 创建 TCP 传输
func New(dialTimeout time.Duration) *Transport {
	return &Transport{
		dialTimeout: dialTimeout,
		listeners:   make(map[manet.Listener]struct{}),
	}
}

// CanDial 地址是否为 TCP 地址
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	_, err := addr.ValueForProtocol(ma.P_TCP)
	return err == nil
}

// Dial 建立出站连接
func (t *Transport) Dial(ctx context.Context, raddr ma.Multiaddr) (manet.Conn, error) {
	if t.isClosed() {
		return nil, ErrClosed
	}
	if !t.CanDial(raddr) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAddr, raddr)
	}
	if t.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.dialTimeout)
		defer cancel()
	}
	var d manet.Dialer
	conn, err := d.DialContext(ctx, raddr)
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(interface{ SetKeepAlive(bool) error }); ok {
		_ = tc.SetKeepAlive(true)
	}
	return conn, nil
}

// Listen 在地址上监听
func (t *Transport) Listen(laddr ma.Multiaddr) (manet.Listener, error) {
	if !t.CanDial(laddr) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAddr, laddr)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	l, err := manet.Listen(laddr)
	if err != nil {
		return nil, err
	}
	t.listeners[l] = struct{}{}
	return l, nil
}

// Close 关闭所有监听器
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	var err error
	for l := range t.listeners {
		if cerr := l.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	t.listeners = nil
	return err
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
