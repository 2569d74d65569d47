package host

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-kadnode/internal/core/upgrader"
	"github.com/dep2p/go-kadnode/pkg/types"
)

var errConnClosed = net.ErrClosed

// Connect 确保与节点建立连接
//
// 已连接时立即返回；否则依次尝试地址，首个成功即返回。
// 同一节点的并发调用共享一次拨号。
func (h *Host) Connect(ctx context.Context, ai types.AddrInfo) error {
	if ai.ID == h.ID() {
		return ErrDialSelf
	}
	if h.isClosed() {
		return ErrClosed
	}
	if h.Connected(ai.ID) {
		return nil
	}
	if !ai.HasAddrs() {
		return fmt.Errorf("%w: %s", ErrNoAddresses, ai.ID.ShortString())
	}

	ch := h.dials.DoChan(ai.ID.String(), func() (any, error) {
		if h.Connected(ai.ID) {
			return nil, nil
		}
		return nil, h.dialAddrs(ctx, ai)
	})
	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Host) dialAddrs(ctx context.Context, ai types.AddrInfo) error {
	var lastErr error
	for _, addr := range ai.Addrs {
		if !h.tcp.CanDial(addr) {
			continue
		}
		err := h.dialOne(ctx, ai.ID, addr)
		h.metrics.RecordDial(err)
		if err == nil {
			return nil
		}
		logger.Debug("拨号失败", "peer", ai.ID.ShortString(), "addr", addr.String(), "error", err)
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		return fmt.Errorf("%w: no dialable address for %s", ErrNoAddresses, ai.ID.ShortString())
	}
	return fmt.Errorf("dial %s: %w", ai.ID.ShortString(), lastErr)
}

func (h *Host) dialOne(ctx context.Context, id types.NodeID, addr ma.Multiaddr) error {
	raw, err := h.tcp.Dial(ctx, addr)
	if err != nil {
		return err
	}
	c, err := h.up.Upgrade(ctx, raw, types.DirOutbound, id)
	if err != nil {
		_ = raw.Close()
		return err
	}
	return h.addConn(c)
}

func (h *Host) handleInbound(raw manet.Conn) {
	c, err := h.up.Upgrade(h.ctx, raw, types.DirInbound, types.EmptyNodeID)
	if err != nil {
		logger.Debug("入站连接升级失败", "remote", raw.RemoteMultiaddr().String(), "error", err)
		_ = raw.Close()
		return
	}
	if err := h.addConn(c); err != nil {
		logger.Debug("丢弃入站连接", "error", err)
	}
}

// addConn 登记连接并启动流接收与关闭监听
func (h *Host) addConn(c *upgrader.Conn) error {
	peer := c.RemotePeer()
	if peer == h.ID() {
		_ = c.Close()
		return ErrDialSelf
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = c.Close()
		return ErrClosed
	}
	first := len(h.conns[peer]) == 0
	h.conns[peer] = append(h.conns[peer], c)
	h.wg.Add(2)
	h.mu.Unlock()

	h.metrics.ConnOpened()
	logger.Debug("连接已建立", "peer", peer.ShortString(), "dir", c.Direction().String(), "remote", c.RemoteMultiaddr().String())

	if first {
		h.emit(types.EvtConnectionEstablished{
			PeerID:      peer,
			ConnID:      c.ID(),
			Direction:   c.Direction(),
			RemoteAddr:  c.RemoteMultiaddr(),
			ListenAddrs: c.RemoteListenAddrs(),
			At:          time.Now(),
		})
	}

	go h.acceptStreams(c)
	go h.watchConn(c)
	return nil
}

func (h *Host) watchConn(c *upgrader.Conn) {
	defer h.wg.Done()
	<-c.CloseChan()

	peer := c.RemotePeer()
	h.mu.Lock()
	list := h.conns[peer]
	for i, x := range list {
		if x == c {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	last := len(list) == 0
	if last {
		delete(h.conns, peer)
	} else {
		h.conns[peer] = list
	}
	h.mu.Unlock()

	h.metrics.ConnClosed()
	if last {
		logger.Debug("连接已关闭", "peer", peer.ShortString())
		var cause error
		if h.ctx.Err() != nil {
			cause = ErrClosed
		}
		h.emit(types.EvtConnectionClosed{PeerID: peer, ConnID: c.ID(), Cause: cause, At: time.Now()})
	}
}

// Connected 是否与节点存在连接
func (h *Host) Connected(id types.NodeID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[id]) > 0
}

// ConnectedPeers 当前有连接的节点
func (h *Host) ConnectedPeers() []types.NodeID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]types.NodeID, 0, len(h.conns))
	for id := range h.conns {
		out = append(out, id)
	}
	return out
}

// ClosePeer 关闭与节点的所有连接
func (h *Host) ClosePeer(id types.NodeID) error {
	h.mu.RLock()
	conns := append([]*upgrader.Conn(nil), h.conns[id]...)
	h.mu.RUnlock()
	if len(conns) == 0 {
		return ErrNotConnected
	}
	var err error
	for _, c := range conns {
		if cerr := c.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	}
	return err
}

func (h *Host) connFor(id types.NodeID) *upgrader.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns[id] {
		if !c.IsClosed() {
			return c
		}
	}
	return nil
}
