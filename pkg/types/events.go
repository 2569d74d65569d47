package types

import (
	"time"

	ma "github.com/multiformats/go-multiaddr"
)

// ============================================================================
//                              Event - 事件联合类型
// ============================================================================

// Event 事件总线上流转的事件
//
// 这是一个封闭集合，只有本包定义的事件实现它，
// 消费方用 type switch 穷举处理。
type Event interface {
	// Type 返回事件类型名
	Type() string
	isEvent()
}

// EvtConnectionEstablished 与对端的连接已完成握手
type EvtConnectionEstablished struct {
	PeerID    NodeID
	ConnID    string
	Direction Direction
	// RemoteAddr 连接的对端地址；出站连接即拨号地址
	RemoteAddr ma.Multiaddr
	// ListenAddrs 对端在握手中声明的监听地址
	ListenAddrs []ma.Multiaddr
	At          time.Time
}

// EvtConnectionClosed 与对端的连接已关闭
type EvtConnectionClosed struct {
	PeerID NodeID
	ConnID string
	Cause  error
	At     time.Time
}

// EvtNewListenAddr 本地新增监听地址
type EvtNewListenAddr struct {
	Addr ma.Multiaddr
}

// EvtPing 一次存活探测的结果
type EvtPing struct {
	PeerID NodeID
	RTT    time.Duration
	Err    error
}

// RoutingOutcome 路由表变更类型
type RoutingOutcome string

const (
	RoutingAdded   RoutingOutcome = "added"
	RoutingUpdated RoutingOutcome = "updated"
	RoutingRemoved RoutingOutcome = "removed"
	RoutingEvicted RoutingOutcome = "evicted"
)

// EvtRoutingUpdated 路由表发生变更
type EvtRoutingUpdated struct {
	PeerID  NodeID
	Bucket  int
	Outcome RoutingOutcome
	// Evicted 因本次插入被替换的节点，未发生替换时为空
	Evicted NodeID
}

// EvtQueryProgressed 查询进度或结果
type EvtQueryProgressed struct {
	QueryID string
	Kind    string
	Target  NodeID
	State   string
	// Remaining 引导查询剩余步数
	Remaining int
	Peers     int
	Err       error
}

func (EvtConnectionEstablished) Type() string { return "connection_established" }
func (EvtConnectionClosed) Type() string      { return "connection_closed" }
func (EvtNewListenAddr) Type() string         { return "new_listen_addr" }
func (EvtPing) Type() string                  { return "ping" }
func (EvtRoutingUpdated) Type() string        { return "routing_updated" }
func (EvtQueryProgressed) Type() string       { return "query_progressed" }

func (EvtConnectionEstablished) isEvent() {}
func (EvtConnectionClosed) isEvent()      {}
func (EvtNewListenAddr) isEvent()         {}
func (EvtPing) isEvent()                  {}
func (EvtRoutingUpdated) isEvent()        {}
func (EvtQueryProgressed) isEvent()       {}
