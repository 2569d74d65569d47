package kadnode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-kadnode/config"
	"github.com/dep2p/go-kadnode/internal/core/eventbus"
	"github.com/dep2p/go-kadnode/internal/core/host"
	"github.com/dep2p/go-kadnode/internal/discovery/dht"
	"github.com/dep2p/go-kadnode/internal/discovery/engine"
	"github.com/dep2p/go-kadnode/internal/protocol/liveness"
	"github.com/dep2p/go-kadnode/pkg/lib/log"
	"github.com/dep2p/go-kadnode/pkg/types"
)

var logger = log.Logger("kadnode")

// stopTimeout 关闭超时
const stopTimeout = 10 * time.Second

// Subscription 事件订阅
type Subscription interface {
	// Out 事件通道，订阅关闭后关闭
	Out() <-chan types.Event
	// Dropped 因缓冲区满被丢弃的事件数
	Dropped() int64
	Close() error
}

// Node 节点
//
// 持有 fx 组装出的全部组件，Start 之后才可使用网络相关方法。
type Node struct {
	cfg *config.Config
	app *fx.App

	bus      *eventbus.Bus
	host     *host.Host
	dht      *dht.DHT
	liveness *liveness.Service
	engine   *engine.Engine

	mu      sync.Mutex
	started bool
	closed  bool
}

// New 创建节点，不启动网络
func New(opts ...Option) (*Node, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	cfg := o.toConfig()

	if err := log.Setup(nil, cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}

	n := &Node{cfg: cfg}
	app, err := buildFxApp(cfg, o, n)
	if err != nil {
		return nil, err
	}
	n.app = app
	return n, nil
}

// Start 启动节点
//
// client 模式且 FailOnUnreachable 时阻塞到加入网络，引导节点不可达则返回错误；
// 否则监听就绪后立即返回，加入在后台进行。
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrNodeClosed
	}
	if n.started {
		return ErrAlreadyStarted
	}

	startCtx, cancel := context.WithTimeout(ctx, startTimeout(n.cfg))
	defer cancel()

	if err := n.app.Start(startCtx); err != nil {
		logger.Error("节点启动失败", "error", err)
		n.closed = true
		return fmt.Errorf("start failed: %w", err)
	}
	n.started = true

	logger.Info("节点已启动",
		"id", n.host.ID().String(),
		"mode", n.cfg.Discovery.Mode,
		"addrs", n.host.Addrs(),
		"state", n.engine.State().String())
	return nil
}

// Stop 停止节点，之后不能再次启动
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true
	if !n.started {
		return nil
	}
	n.started = false

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, stopTimeout)
		defer cancel()
	}
	if err := n.app.Stop(ctx); err != nil {
		return fmt.Errorf("stop failed: %w", err)
	}
	logger.Info("节点已停止")
	return nil
}

func (n *Node) running() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.started
}

// ============================================================================
//                              身份与地址
// ============================================================================

// ID 节点 ID
func (n *Node) ID() types.NodeID {
	return n.host.ID()
}

// Mode 运行模式
func (n *Node) Mode() string {
	return n.cfg.Discovery.Mode
}

// Config 返回节点配置的副本
func (n *Node) Config() *config.Config {
	return n.cfg.Clone()
}

// Addrs 对外通告的地址
func (n *Node) Addrs() []string {
	addrs := n.host.Addrs()
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}

// FullAddrs 带 /p2p/<id> 后缀的地址，可直接用作其它节点的引导地址
func (n *Node) FullAddrs() []string {
	return n.host.AddrInfo().FullAddrs()
}

// ============================================================================
//                              发现
// ============================================================================

// State 发现引擎状态
func (n *Node) State() engine.State {
	return n.engine.State()
}

// WaitJoined 等待加入网络
func (n *Node) WaitJoined(ctx context.Context) error {
	if !n.running() {
		return ErrNotStarted
	}
	return n.engine.WaitJoined(ctx)
}

// RoutingTable 路由表中的全部节点
func (n *Node) RoutingTable() []types.AddrInfo {
	return addrInfos(n.engine.RoutingTable().Peers())
}

// RoutingTableSize 路由表节点数
func (n *Node) RoutingTableSize() int {
	return n.engine.RoutingTable().Size()
}

// Lookup 查找距 target 最近的节点，结果同时写入路由表
func (n *Node) Lookup(ctx context.Context, target types.NodeID) ([]types.AddrInfo, error) {
	if !n.running() {
		return nil, ErrNotStarted
	}
	peers, err := n.engine.Lookup(ctx, target)
	return addrInfos(peers), err
}

// FindProviders 查找发布了 key 的节点
func (n *Node) FindProviders(ctx context.Context, key types.NodeID) ([]types.AddrInfo, error) {
	if !n.running() {
		return nil, ErrNotStarted
	}
	peers, err := n.dht.FindProviders(ctx, key)
	return addrInfos(peers), err
}

// Refresh 立即触发一次路由表刷新
func (n *Node) Refresh() {
	n.engine.RefreshNow()
}

// ============================================================================
//                              连接
// ============================================================================

// Connect 连接节点
func (n *Node) Connect(ctx context.Context, ai types.AddrInfo) error {
	if !n.running() {
		return ErrNotStarted
	}
	return n.host.Connect(ctx, ai)
}

// ConnectedPeers 当前已连接的节点
func (n *Node) ConnectedPeers() []types.NodeID {
	return n.host.ConnectedPeers()
}

// Ping 测量到已连接节点的往返时延
func (n *Node) Ping(ctx context.Context, id types.NodeID) (time.Duration, error) {
	if !n.running() {
		return 0, ErrNotStarted
	}
	return n.liveness.Ping(ctx, id)
}

// ============================================================================
//                              事件
// ============================================================================

// Subscribe 订阅事件，不传参数时订阅全部类型
//
// 订阅是有损的：消费方处理过慢时事件被丢弃并计入 Dropped。
func (n *Node) Subscribe(evts ...types.Event) (Subscription, error) {
	if len(evts) == 0 {
		evts = []types.Event{
			types.EvtConnectionEstablished{},
			types.EvtConnectionClosed{},
			types.EvtNewListenAddr{},
			types.EvtPing{},
			types.EvtRoutingUpdated{},
			types.EvtQueryProgressed{},
		}
	}
	sub, err := n.bus.Subscribe(evts, eventbus.BufSize(256), eventbus.Name("kadnode"))
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func addrInfos(recs []dht.PeerRecord) []types.AddrInfo {
	out := make([]types.AddrInfo, len(recs))
	for i, r := range recs {
		out[i] = r.AddrInfo()
	}
	return out
}
