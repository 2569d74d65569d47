package host

import (
	"context"
	"fmt"
	"net"
	"time"

	mss "github.com/multiformats/go-multistream"

	"github.com/dep2p/go-kadnode/internal/core/upgrader"
	"github.com/dep2p/go-kadnode/pkg/types"
)

// negotiateTimeout 入站流协议协商超时
const negotiateTimeout = 10 * time.Second

// Stream 已协商协议的流
type Stream struct {
	net.Conn

	protocol string
	peer     types.NodeID
}

// Protocol 协商得到的协议
func (s *Stream) Protocol() string { return s.protocol }

// RemotePeer 对端节点 ID
func (s *Stream) RemotePeer() types.NodeID { return s.peer }

// SetStreamHandler 注册协议处理函数
func (h *Host) SetStreamHandler(proto string, handler StreamHandler) {
	h.handlers.Store(proto, handler)
	h.mux.AddHandler(proto, nil)
}

// RemoveStreamHandler 移除协议处理函数
func (h *Host) RemoveStreamHandler(proto string) {
	h.handlers.Delete(proto)
	h.mux.RemoveHandler(proto)
}

// NewStream 在已有连接上打开协议流，protos 按优先级排列
func (h *Host) NewStream(ctx context.Context, peer types.NodeID, protos ...string) (*Stream, error) {
	c := h.connFor(peer)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, peer.ShortString())
	}
	s, err := c.OpenStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.SetDeadline(deadline)
	}
	proto, err := mss.SelectOneOf(protos, s)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %v", ErrNoHandler, err)
	}
	_ = s.SetDeadline(time.Time{})

	return &Stream{Conn: s, protocol: proto, peer: peer}, nil
}

func (h *Host) acceptStreams(c *upgrader.Conn) {
	defer h.wg.Done()
	for {
		s, err := c.AcceptStream()
		if err != nil {
			return
		}
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.handleStream(c, s)
		}()
	}
}

func (h *Host) handleStream(c *upgrader.Conn, s net.Conn) {
	_ = s.SetDeadline(time.Now().Add(negotiateTimeout))
	proto, _, err := h.mux.Negotiate(s)
	if err != nil {
		_ = s.Close()
		return
	}
	_ = s.SetDeadline(time.Time{})

	v, ok := h.handlers.Load(proto)
	if !ok {
		_ = s.Close()
		return
	}
	v.(StreamHandler)(&Stream{Conn: s, protocol: proto, peer: c.RemotePeer()})
}
