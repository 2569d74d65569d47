package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dep2p/go-kadnode/internal/core/eventbus"
	"github.com/dep2p/go-kadnode/internal/core/metrics"
	"github.com/dep2p/go-kadnode/internal/discovery/bootstrap"
	"github.com/dep2p/go-kadnode/internal/discovery/dht"
	"github.com/dep2p/go-kadnode/pkg/lib/log"
	"github.com/dep2p/go-kadnode/pkg/types"
)

var logger = log.Logger("discovery/engine")

// recentQueries 最近查询目标的去重容量
const recentQueries = 1024

// Router 路由表与查询能力
type Router interface {
	RoutingTable() *dht.RoutingTable
	FindClosestPeers(ctx context.Context, target types.NodeID) *dht.Query
	Bootstrap(ctx context.Context, progress func(dht.Query)) *dht.Query
	Provide(ctx context.Context, key types.NodeID) *dht.Query
	SaveSnapshot() error
}

// Dialer 建立连接
type Dialer interface {
	ID() types.NodeID
	Connect(ctx context.Context, ai types.AddrInfo) error
}

// Prober 新鲜度探测：重新连接并确认对端存活
type Prober interface {
	Probe(ctx context.Context, ai types.AddrInfo) error
}

// Option 引擎选项
type Option func(*Engine)

// WithProber 设置探测器；未设置时桶满直接替换，连接关闭直接删除
func WithProber(p Prober) Option {
	return func(e *Engine) { e.prober = p }
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock 设置时钟
func WithClock(clk clock.Clock) Option {
	return func(e *Engine) {
		if clk != nil {
			e.clock = clk
		}
	}
}

// WithBootstrapSource 设置引导来源，client 模式必需
func WithBootstrapSource(src bootstrap.Source) Option {
	return func(e *Engine) { e.source = src }
}

// Engine 节点发现引擎
type Engine struct {
	cfg     Config
	self    types.NodeID
	router  Router
	rt      *dht.RoutingTable
	dialer  Dialer
	prober  Prober
	bus     *eventbus.Bus
	metrics *metrics.Metrics
	clock   clock.Clock
	source  bootstrap.Source

	state  atomic.Int32
	joined chan struct{}
	failed chan struct{}

	mu      sync.Mutex
	joinErr error
	boot    *bootstrap.Config

	// 以下字段只在事件循环中访问
	dialing       bool
	bootstrapping bool
	providing     bool
	joinComplete  bool
	inflight      map[types.NodeID]bool
	probing       map[types.NodeID]bool
	recent        *expirable.LRU[types.NodeID, struct{}]

	inbox     chan any
	refreshCh chan struct{}
	sub       *eventbus.Subscription

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
}

// New 创建引擎
func New(cfg Config, router Router, dialer Dialer, bus *eventbus.Bus, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg.withDefaults(),
		self:      dialer.ID(),
		router:    router,
		rt:        router.RoutingTable(),
		dialer:    dialer,
		bus:       bus,
		clock:     clock.New(),
		joined:    make(chan struct{}),
		failed:    make(chan struct{}),
		inflight:  make(map[types.NodeID]bool),
		probing:   make(map[types.NodeID]bool),
		inbox:     make(chan any, 64),
		refreshCh: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.recent = expirable.NewLRU[types.NodeID, struct{}](recentQueries, nil, e.cfg.RefreshInterval)
	return e
}

// Start 启动事件循环；client 模式解析引导配置并开始拨号
//
// 不等待加入完成，需要时使用 WaitJoined。
func (e *Engine) Start(ctx context.Context) (err error) {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer func() {
		if err != nil {
			e.started.Store(false)
		}
	}()

	if e.cfg.Mode == types.ModeClient {
		if e.source == nil {
			return ErrNoBootstrap
		}
		boot, err := e.source.Load(ctx)
		if err != nil {
			return err
		}
		e.mu.Lock()
		e.boot = &boot
		e.mu.Unlock()
	}

	sub, err := e.bus.Subscribe([]types.Event{
		types.EvtConnectionEstablished{},
		types.EvtConnectionClosed{},
		types.EvtNewListenAddr{},
		types.EvtPing{},
	}, eventbus.BufSize(64), eventbus.Lossless(), eventbus.Name("discovery/engine"))
	if err != nil {
		return err
	}
	e.sub = sub
	e.ctx, e.cancel = context.WithCancel(context.Background())

	if e.cfg.Mode == types.ModeServer {
		e.activate()
		logger.Info("以 server 模式启动", "self", e.self.ShortString())
	} else {
		e.dialing = true
		e.spawn(e.dialBootstrap)
	}

	e.wg.Add(1)
	go e.loop()
	return nil
}

// Stop 停止事件循环与所有后台任务
func (e *Engine) Stop(context.Context) error {
	if !e.started.CompareAndSwap(true, false) {
		return nil
	}
	e.cancel()
	// 先关闭订阅，避免发布方阻塞在已退出的循环上
	err := e.sub.Close()
	e.wg.Wait()
	return err
}

// State 当前状态
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Joined 进入 Active 时关闭
func (e *Engine) Joined() <-chan struct{} {
	return e.joined
}

// JoinErr 最近一次引导失败的原因
func (e *Engine) JoinErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.joinErr
}

// WaitJoined 等待加入网络或引导彻底失败
func (e *Engine) WaitJoined(ctx context.Context) error {
	select {
	case <-e.joined:
		return nil
	case <-e.failed:
		return e.JoinErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BootstrapPeer 解析后的引导节点，server 模式为 nil
func (e *Engine) BootstrapPeer() *bootstrap.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.boot
}

// RoutingTable 返回路由表
func (e *Engine) RoutingTable() *dht.RoutingTable {
	return e.rt
}

// RefreshNow 立即触发一次刷新
func (e *Engine) RefreshNow() {
	select {
	case e.refreshCh <- struct{}{}:
	default:
	}
}

// Lookup 同步执行 ClosestPeers 查询，结果同样会写入路由表
func (e *Engine) Lookup(ctx context.Context, target types.NodeID) ([]dht.PeerRecord, error) {
	if !e.started.Load() {
		return nil, ErrNotStarted
	}
	q := e.router.FindClosestPeers(ctx, target)
	e.post(queryDone{q: q, external: true})
	return q.Peers, q.Err
}

// activate 切换到 Active，只生效一次
func (e *Engine) activate() bool {
	if !e.state.CompareAndSwap(int32(StateJoining), int32(StateActive)) {
		return false
	}
	close(e.joined)
	return true
}

// spawn 在引擎上下文中运行后台任务
func (e *Engine) spawn(fn func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn(e.ctx)
	}()
}

// post 把结果交回事件循环；引擎停止时丢弃
func (e *Engine) post(msg any) {
	select {
	case e.inbox <- msg:
	case <-e.ctx.Done():
	}
}

func (e *Engine) emit(evt types.Event) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Emit(evt); err != nil {
		logger.Debug("发布事件失败", "event", evt.Type(), "error", err)
	}
}
