package dht

import (
	"context"
	"fmt"
	"sync/atomic"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-kadnode/internal/core/host"
	"github.com/dep2p/go-kadnode/pkg/lib/msgio"
	"github.com/dep2p/go-kadnode/pkg/protocolids"
	"github.com/dep2p/go-kadnode/pkg/types"
)

// Host DHT 依赖的传输能力
type Host interface {
	ID() types.NodeID
	Addrs() []ma.Multiaddr
	Connect(ctx context.Context, ai types.AddrInfo) error
	Connected(id types.NodeID) bool
	NewStream(ctx context.Context, peer types.NodeID, protos ...string) (*host.Stream, error)
	SetStreamHandler(proto string, handler host.StreamHandler)
	RemoveStreamHandler(proto string)
}

// messenger 负责请求发送
type messenger struct {
	host    Host
	reqID   atomic.Uint64
	maxSize int
	// noDial 只向已连接节点发送请求（server 模式）
	noDial bool
}

func newMessenger(h Host, noDial bool) *messenger {
	return &messenger{host: h, maxSize: msgio.DefaultMaxSize, noDial: noDial}
}

func (m *messenger) request(t MessageType) *Message {
	return newRequest(t, m.reqID.Add(1), m.host.ID(), m.host.Addrs())
}

// send 连接对端（如未连接），打开流并完成一次请求响应
//
// noDial 时不发起连接，未连接的节点直接返回 host.ErrNotConnected。
func (m *messenger) send(ctx context.Context, ai types.AddrInfo, req *Message) (*Message, error) {
	if m.noDial {
		if !m.host.Connected(ai.ID) {
			return nil, fmt.Errorf("%s %s: %w", req.Type, ai.ID.ShortString(), host.ErrNotConnected)
		}
	} else if err := m.host.Connect(ctx, ai); err != nil {
		return nil, err
	}

	stream, err := m.host.NewStream(ctx, ai.ID, protocolids.Kad)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetDeadline(deadline)
	}

	data, err := req.Encode()
	if err != nil {
		return nil, err
	}
	if err := msgio.WriteMsg(stream, data); err != nil {
		return nil, fmt.Errorf("write %s: %w", req.Type, err)
	}

	raw, err := msgio.ReadMsg(stream, m.maxSize)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", req.Type, err)
	}
	resp, err := DecodeMessage(raw)
	if err != nil {
		return nil, NewDHTError("decode", ErrInvalidResponse, err.Error())
	}

	switch {
	case resp.Type == MessageTypeError:
		return nil, NewDHTError(req.Type.String(), ErrRemote, resp.Error)
	case resp.RequestID != req.RequestID, resp.Type != req.Type.responseType(), resp.Sender != ai.ID:
		return nil, NewDHTError(req.Type.String(), ErrInvalidResponse, "mismatched response")
	}
	return resp, nil
}
