package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-kadnode/internal/core/eventbus"
	"github.com/dep2p/go-kadnode/internal/discovery/bootstrap"
	"github.com/dep2p/go-kadnode/internal/discovery/dht"
	"github.com/dep2p/go-kadnode/pkg/types"
)

// ============================================================================
//                              测试替身
// ============================================================================

// fakeRouter 使用真实路由表，记录查询调用
type fakeRouter struct {
	rt *dht.RoutingTable

	mu         sync.Mutex
	closest    []types.NodeID
	bootstraps int
	provides   int
	snapshots  int
	peers      []dht.PeerRecord
	fail       map[types.NodeID]error
	// hold 对该目标的下一次查询阻塞到通道关闭
	hold map[types.NodeID]chan struct{}
}

func newFakeRouter(self types.NodeID, k, minCloseFill int, clk clock.Clock) *fakeRouter {
	return &fakeRouter{
		rt:   dht.NewRoutingTable(self, k, minCloseFill, clk),
		fail: make(map[types.NodeID]error),
		hold: make(map[types.NodeID]chan struct{}),
	}
}

func (r *fakeRouter) RoutingTable() *dht.RoutingTable { return r.rt }

func (r *fakeRouter) FindClosestPeers(ctx context.Context, target types.NodeID) *dht.Query {
	r.mu.Lock()
	r.closest = append(r.closest, target)
	if ch, ok := r.hold[target]; ok {
		delete(r.hold, target)
		r.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
		}
		r.mu.Lock()
	}
	defer r.mu.Unlock()

	q := dht.NewQuery(dht.KindClosestPeers, target, time.Now())
	if err := r.fail[target]; err != nil {
		q.State, q.Err = dht.StateFailed, err
		return q
	}
	q.State = dht.StateCompleted
	q.Peers = append([]dht.PeerRecord(nil), r.peers...)
	return q
}

func (r *fakeRouter) Bootstrap(_ context.Context, progress func(dht.Query)) *dht.Query {
	r.mu.Lock()
	r.bootstraps++
	r.mu.Unlock()

	q := dht.NewQuery(dht.KindBootstrap, r.rt.Local(), time.Now())
	q.Remaining = 1
	progress(*q)
	q.Remaining = 0
	q.State = dht.StateCompleted
	return q
}

func (r *fakeRouter) Provide(_ context.Context, key types.NodeID) *dht.Query {
	r.mu.Lock()
	r.provides++
	r.mu.Unlock()
	q := dht.NewQuery(dht.KindProvide, key, time.Now())
	q.State = dht.StateCompleted
	return q
}

func (r *fakeRouter) SaveSnapshot() error {
	r.mu.Lock()
	r.snapshots++
	r.mu.Unlock()
	return nil
}

func (r *fakeRouter) closestCount(target types.NodeID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, id := range r.closest {
		if id == target {
			n++
		}
	}
	return n
}

func (r *fakeRouter) counts() (bootstraps, provides, snapshots int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bootstraps, r.provides, r.snapshots
}

// fakeDialer 前 failures 次拨号失败，成功时在总线上发布连接事件
type fakeDialer struct {
	self     types.NodeID
	bus      *eventbus.Bus
	failures int32
	attempts atomic.Int32
}

func (d *fakeDialer) ID() types.NodeID { return d.self }

func (d *fakeDialer) Connect(_ context.Context, ai types.AddrInfo) error {
	n := d.attempts.Add(1)
	if n <= d.failures {
		return errors.New("connection refused")
	}
	return d.bus.Emit(types.EvtConnectionEstablished{
		PeerID:      ai.ID,
		Direction:   types.DirOutbound,
		RemoteAddr:  ai.Addrs[0],
		ListenAddrs: ai.Addrs,
		At:          time.Now(),
	})
}

// fakeProber 按节点返回探测结果
type fakeProber struct {
	mu   sync.Mutex
	dead map[types.NodeID]bool
}

func (p *fakeProber) Probe(_ context.Context, ai types.AddrInfo) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dead[ai.ID] {
		return errors.New("probe failed")
	}
	return nil
}

func (p *fakeProber) setDead(id types.NodeID, dead bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dead[id] = dead
}

type fixture struct {
	eng    *Engine
	router *fakeRouter
	dialer *fakeDialer
	bus    *eventbus.Bus
	clock  *clock.Mock
	boot   bootstrap.Config
}

type fixtureOpts struct {
	cfg          Config
	failures     int32
	k            int
	minCloseFill int
	prober       Prober
}

func newFixture(t *testing.T, o fixtureOpts) *fixture {
	t.Helper()
	if o.k == 0 {
		o.k = 20
	}
	bus := eventbus.NewBus()
	t.Cleanup(func() { _ = bus.Close() })

	clk := clock.NewMock()
	self := types.RandomNodeID()
	f := &fixture{
		router: newFakeRouter(self, o.k, o.minCloseFill, clk),
		dialer: &fakeDialer{self: self, bus: bus, failures: o.failures},
		bus:    bus,
		clock:  clk,
		boot: bootstrap.Config{
			PeerID: types.RandomNodeID(),
			Addr:   ma.StringCast("/ip4/127.0.0.1/tcp/50000"),
		},
	}

	opts := []Option{WithClock(clk), WithBootstrapSource(bootstrap.StaticSource{Config: f.boot})}
	if o.prober != nil {
		opts = append(opts, WithProber(o.prober))
	}
	f.eng = New(o.cfg, f.router, f.dialer, bus, opts...)
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.eng.Start(context.Background()))
	t.Cleanup(func() { _ = f.eng.Stop(context.Background()) })
}

// advance 持续推进模拟时钟，直到返回的函数被调用
func (f *fixture) advance(step time.Duration) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			f.clock.Add(step)
			time.Sleep(2 * time.Millisecond)
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func subscribe(t *testing.T, bus *eventbus.Bus, evts ...types.Event) *eventbus.Subscription {
	t.Helper()
	sub, err := bus.Subscribe(evts, eventbus.BufSize(256))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	return sub
}

// waitRouting 等待某节点的某类路由事件
func waitRouting(t *testing.T, sub *eventbus.Subscription, id types.NodeID, outcome types.RoutingOutcome) types.EvtRoutingUpdated {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case evt := <-sub.Out():
			if e, ok := evt.(types.EvtRoutingUpdated); ok && e.PeerID == id && e.Outcome == outcome {
				return e
			}
		case <-timeout:
			t.Fatalf("等待路由事件超时: %s %s", id.ShortString(), outcome)
			return types.EvtRoutingUpdated{}
		}
	}
}

func serverConfig() Config {
	cfg := DefaultConfig()
	cfg.Mode = types.ModeServer
	cfg.EnableProvide = false
	return cfg
}

func connect(t *testing.T, bus *eventbus.Bus, id types.NodeID) {
	t.Helper()
	require.NoError(t, bus.Emit(types.EvtConnectionEstablished{
		PeerID:      id,
		Direction:   types.DirInbound,
		ListenAddrs: []ma.Multiaddr{ma.StringCast("/ip4/127.0.0.1/tcp/4001")},
		At:          time.Now(),
	}))
}

// ============================================================================
//                              加入流程
// ============================================================================

// TestEngine_Join 测试 client 模式加入网络
func TestEngine_Join(t *testing.T) {
	f := newFixture(t, fixtureOpts{cfg: DefaultConfig()})
	assert.Equal(t, StateJoining, f.eng.State())
	f.start(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.eng.WaitJoined(ctx))
	assert.Equal(t, StateActive, f.eng.State())

	_, ok := f.eng.RoutingTable().Get(f.boot.PeerID)
	assert.True(t, ok, "引导节点应在路由表中")

	self := f.dialer.self
	require.Eventually(t, func() bool {
		b, p, _ := f.router.counts()
		return b == 1 && p == 1 && f.router.closestCount(self) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, f.boot.PeerID, f.eng.BootstrapPeer().PeerID)
	t.Log("✅ 加入流程测试通过")
}

// TestEngine_BootstrapUnreachable 测试重试耗尽后启动失败
func TestEngine_BootstrapUnreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDialAttempts = 3
	cfg.InitialBackoff = time.Second
	cfg.MaxBackoff = 2 * time.Second
	f := newFixture(t, fixtureOpts{cfg: cfg, failures: 100})
	f.start(t)

	stop := f.advance(time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := f.eng.WaitJoined(ctx)
	stop()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBootstrapUnreachable)
	assert.ErrorIs(t, err, ErrDialFailed)
	assert.Contains(t, err.Error(), f.boot.String())
	assert.Equal(t, int32(3), f.dialer.attempts.Load())
	assert.Equal(t, StateJoining, f.eng.State())
	t.Log("✅ 引导不可达测试通过")
}

// TestEngine_RetryOnRefresh 测试不强制失败时在刷新周期重新拨号
func TestEngine_RetryOnRefresh(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDialAttempts = 2
	cfg.InitialBackoff = time.Second
	cfg.MaxBackoff = time.Second
	cfg.FailOnUnreachable = false
	f := newFixture(t, fixtureOpts{cfg: cfg, failures: 3})
	f.start(t)

	stop := f.advance(time.Second)
	defer stop()

	require.Eventually(t, func() bool { return f.eng.JoinErr() != nil }, 2*time.Second, 5*time.Millisecond)
	f.eng.RefreshNow()

	select {
	case <-f.eng.Joined():
	case <-time.After(3 * time.Second):
		t.Fatal("未能在重试后加入")
	}
	assert.Equal(t, int32(4), f.dialer.attempts.Load())
	t.Log("✅ 刷新重试测试通过")
}

// TestEngine_MalformedIDFile 测试 ID 文件内容错误
func TestEngine_MalformedIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bootstrap.id")
	require.NoError(t, os.WriteFile(path, []byte("not-a-node-id\n"), 0o644))

	bus := eventbus.NewBus()
	defer bus.Close()
	self := types.RandomNodeID()
	eng := New(DefaultConfig(), newFakeRouter(self, 20, 1, clock.NewMock()), &fakeDialer{self: self, bus: bus}, bus,
		WithBootstrapSource(bootstrap.FileSource{Path: path, Addr: ma.StringCast("/ip4/127.0.0.1/tcp/50000")}))

	err := eng.Start(context.Background())
	assert.ErrorIs(t, err, bootstrap.ErrMalformedBootstrapID)
}

// TestEngine_ClientWithoutSource 测试 client 模式缺少引导来源
func TestEngine_ClientWithoutSource(t *testing.T) {
	bus := eventbus.NewBus()
	defer bus.Close()
	self := types.RandomNodeID()
	eng := New(DefaultConfig(), newFakeRouter(self, 20, 1, clock.NewMock()), &fakeDialer{self: self, bus: bus}, bus)
	assert.ErrorIs(t, eng.Start(context.Background()), ErrNoBootstrap)
	// 启动失败后 Stop 为空操作
	assert.NoError(t, eng.Stop(context.Background()))
}

// ============================================================================
//                              Active 阶段
// ============================================================================

// TestEngine_ServerMode 测试 server 模式启动即 Active
func TestEngine_ServerMode(t *testing.T) {
	f := newFixture(t, fixtureOpts{cfg: serverConfig()})
	f.start(t)

	select {
	case <-f.eng.Joined():
	default:
		t.Fatal("server 模式应立即 Active")
	}
	assert.Nil(t, f.eng.BootstrapPeer())
	assert.Zero(t, f.dialer.attempts.Load())
	assert.ErrorIs(t, f.eng.Start(context.Background()), ErrAlreadyStarted)
}

// TestEngine_ConnectedPeerLookup 测试新连接触发查询并去重
func TestEngine_ConnectedPeerLookup(t *testing.T) {
	f := newFixture(t, fixtureOpts{cfg: serverConfig()})
	sub := subscribe(t, f.bus, types.EvtRoutingUpdated{})
	f.start(t)

	x, y := types.RandomNodeID(), types.RandomNodeID()
	connect(t, f.bus, x)
	waitRouting(t, sub, x, types.RoutingAdded)
	connect(t, f.bus, x)
	connect(t, f.bus, y)
	waitRouting(t, sub, y, types.RoutingAdded)

	require.Eventually(t, func() bool { return f.router.closestCount(y) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.router.closestCount(x), "刷新周期内同一目标只查询一次")
	assert.Equal(t, 2, f.eng.RoutingTable().Size())
	t.Log("✅ 连接触发查询测试通过")
}

// TestEngine_LookupKeepsInflight 测试 API 查询结束不会解除引擎自身查询的去重
func TestEngine_LookupKeepsInflight(t *testing.T) {
	f := newFixture(t, fixtureOpts{cfg: serverConfig()})
	self := f.dialer.self
	release := make(chan struct{})
	defer close(release)
	f.router.mu.Lock()
	f.router.hold[self] = release
	f.router.mu.Unlock()
	sub := subscribe(t, f.bus, types.EvtQueryProgressed{})
	f.start(t)

	// 刷新发起的自身查询被挂起
	f.eng.RefreshNow()
	require.Eventually(t, func() bool { return f.router.closestCount(self) == 1 }, 2*time.Second, 5*time.Millisecond)

	// 同一目标的 API 查询完成，并等待引擎处理完结果
	peers, err := f.eng.Lookup(context.Background(), self)
	require.NoError(t, err)
	require.Empty(t, peers)
	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case evt := <-sub.Out():
			e := evt.(types.EvtQueryProgressed)
			done = e.Kind == dht.KindClosestPeers.String() && e.Target == self && e.State == dht.StateCompleted.String()
		case <-timeout:
			t.Fatal("等待查询完成事件超时")
		}
	}

	// 挂起的查询仍在进行，再次刷新不应重复发起
	f.eng.RefreshNow()
	assert.Never(t, func() bool { return f.router.closestCount(self) > 2 }, 200*time.Millisecond, 10*time.Millisecond)
	t.Log("✅ API 查询不影响去重测试通过")
}

// TestEngine_QueryResultsInserted 测试查询结果写入路由表
func TestEngine_QueryResultsInserted(t *testing.T) {
	f := newFixture(t, fixtureOpts{cfg: serverConfig()})
	found := dht.PeerRecord{ID: types.RandomNodeID(), Addrs: []ma.Multiaddr{ma.StringCast("/ip4/10.0.0.1/tcp/1")}}
	f.router.peers = []dht.PeerRecord{found}
	f.start(t)

	peers, err := f.eng.Lookup(context.Background(), types.RandomNodeID())
	require.NoError(t, err)
	require.Len(t, peers, 1)

	require.Eventually(t, func() bool {
		_, ok := f.eng.RoutingTable().Get(found.ID)
		return ok
	}, 2*time.Second, 5*time.Millisecond)
}

// TestEngine_FailedQueryEvent 测试失败查询对外发布事件
func TestEngine_FailedQueryEvent(t *testing.T) {
	f := newFixture(t, fixtureOpts{cfg: serverConfig()})
	x := types.RandomNodeID()
	f.router.fail[x] = dht.ErrQueryTimeout
	sub := subscribe(t, f.bus, types.EvtQueryProgressed{})
	f.start(t)

	connect(t, f.bus, x)

	timeout := time.After(2 * time.Second)
	for {
		select {
		case evt := <-sub.Out():
			e := evt.(types.EvtQueryProgressed)
			if e.Target == x && e.State == dht.StateFailed.String() {
				assert.ErrorIs(t, e.Err, dht.ErrQueryTimeout)
				assert.Equal(t, dht.KindClosestPeers.String(), e.Kind)
				t.Log("✅ 失败查询事件测试通过")
				return
			}
		case <-timeout:
			t.Fatal("未收到失败查询事件")
		}
	}
}

// TestEngine_RefreshTick 测试周期刷新
func TestEngine_RefreshTick(t *testing.T) {
	cfg := serverConfig()
	cfg.EnableProvide = true
	cfg.PersistRoutingTable = true
	f := newFixture(t, fixtureOpts{cfg: cfg})
	f.start(t)

	self := f.dialer.self
	f.clock.Add(cfg.RefreshInterval)
	require.Eventually(t, func() bool {
		b, _, s := f.router.counts()
		return f.router.closestCount(self) == 1 && b == 1 && s == 1
	}, 2*time.Second, 5*time.Millisecond)

	// 引导查询完成后开始广播 provider 记录
	require.Eventually(t, func() bool {
		_, p, _ := f.router.counts()
		return p == 1
	}, 2*time.Second, 5*time.Millisecond)

	// 上一轮查询可能仍在进行，重复触发直到新一轮生效
	require.Eventually(t, func() bool {
		f.eng.RefreshNow()
		_, p, s := f.router.counts()
		return f.router.closestCount(self) >= 2 && p >= 2 && s >= 2
	}, 2*time.Second, 10*time.Millisecond)
	t.Log("✅ 周期刷新测试通过")
}

// ============================================================================
//                              探测与驱逐
// ============================================================================

// TestEngine_ClosedPeerProbe 测试连接关闭后的探测
func TestEngine_ClosedPeerProbe(t *testing.T) {
	prober := &fakeProber{dead: make(map[types.NodeID]bool)}
	f := newFixture(t, fixtureOpts{cfg: serverConfig(), prober: prober})
	sub := subscribe(t, f.bus, types.EvtRoutingUpdated{})
	f.start(t)

	alive, dead := types.RandomNodeID(), types.RandomNodeID()
	prober.setDead(dead, true)
	connect(t, f.bus, alive)
	connect(t, f.bus, dead)
	waitRouting(t, sub, dead, types.RoutingAdded)

	require.NoError(t, f.bus.Emit(types.EvtConnectionClosed{PeerID: alive}))
	require.NoError(t, f.bus.Emit(types.EvtConnectionClosed{PeerID: dead}))

	evt := waitRouting(t, sub, dead, types.RoutingRemoved)
	assert.Equal(t, dht.BucketIndex(f.dialer.self, dead), evt.Bucket)

	_, ok := f.eng.RoutingTable().Get(alive)
	assert.True(t, ok, "探测成功的节点应保留")
	_, ok = f.eng.RoutingTable().Get(dead)
	assert.False(t, ok)
	t.Log("✅ 连接关闭探测测试通过")
}

// TestEngine_ClosedNearestRetained 测试最近邻桶不被删空
func TestEngine_ClosedNearestRetained(t *testing.T) {
	f := newFixture(t, fixtureOpts{cfg: serverConfig(), minCloseFill: 1})
	sub := subscribe(t, f.bus, types.EvtRoutingUpdated{})
	f.start(t)

	x := types.RandomNodeID()
	connect(t, f.bus, x)
	waitRouting(t, sub, x, types.RoutingAdded)

	require.NoError(t, f.bus.Emit(types.EvtConnectionClosed{PeerID: x}))
	// 用第二个节点的插入事件作为处理完关闭事件的屏障
	y := dht.RandomIDInBucket(f.dialer.self, 0)
	if dht.BucketIndex(f.dialer.self, x) == 0 {
		y = dht.RandomIDInBucket(f.dialer.self, 1)
	}
	connect(t, f.bus, y)
	waitRouting(t, sub, y, types.RoutingAdded)

	_, ok := f.eng.RoutingTable().Get(x)
	assert.True(t, ok, "唯一的最近邻节点应被保留")
}

// TestEngine_PingFailures 测试连续 ping 失败触发探测
func TestEngine_PingFailures(t *testing.T) {
	cfg := serverConfig()
	cfg.FailureThreshold = 2
	prober := &fakeProber{dead: make(map[types.NodeID]bool)}
	f := newFixture(t, fixtureOpts{cfg: cfg, prober: prober})
	sub := subscribe(t, f.bus, types.EvtRoutingUpdated{})
	f.start(t)

	x := types.RandomNodeID()
	prober.setDead(x, true)
	connect(t, f.bus, x)
	waitRouting(t, sub, x, types.RoutingAdded)

	pingErr := errors.New("timeout")
	require.NoError(t, f.bus.Emit(types.EvtPing{PeerID: x, Err: pingErr}))
	require.NoError(t, f.bus.Emit(types.EvtPing{PeerID: x, Err: pingErr}))

	waitRouting(t, sub, x, types.RoutingRemoved)
	_, ok := f.eng.RoutingTable().Get(x)
	assert.False(t, ok)
}

// TestEngine_BucketFullProbe 测试桶满时探测最久未见节点
func TestEngine_BucketFullProbe(t *testing.T) {
	prober := &fakeProber{dead: make(map[types.NodeID]bool)}
	f := newFixture(t, fixtureOpts{cfg: serverConfig(), prober: prober, k: 1})
	sub := subscribe(t, f.bus, types.EvtRoutingUpdated{})
	f.start(t)

	self := f.dialer.self
	a := dht.RandomIDInBucket(self, 0)
	b := dht.RandomIDInBucket(self, 0)
	c := dht.RandomIDInBucket(self, 0)
	barrier := dht.RandomIDInBucket(self, 1)

	connect(t, f.bus, a)
	waitRouting(t, sub, a, types.RoutingAdded)

	// a 存活：b 被拒绝
	connect(t, f.bus, b)
	connect(t, f.bus, barrier)
	waitRouting(t, sub, barrier, types.RoutingAdded)
	require.Eventually(t, func() bool {
		_, okA := f.eng.RoutingTable().Get(a)
		_, okB := f.eng.RoutingTable().Get(b)
		return okA && !okB
	}, 2*time.Second, 5*time.Millisecond)

	// a 失联：c 替换 a
	prober.setDead(a, true)
	connect(t, f.bus, c)
	waitRouting(t, sub, a, types.RoutingEvicted)
	evt := waitRouting(t, sub, c, types.RoutingAdded)
	assert.Equal(t, a, evt.Evicted)

	_, ok := f.eng.RoutingTable().Get(a)
	assert.False(t, ok)
	t.Log("✅ 桶满探测测试通过")
}

// TestEngine_BucketFullNoProber 测试无探测器时直接替换
func TestEngine_BucketFullNoProber(t *testing.T) {
	f := newFixture(t, fixtureOpts{cfg: serverConfig(), k: 1})
	sub := subscribe(t, f.bus, types.EvtRoutingUpdated{})
	f.start(t)

	self := f.dialer.self
	a := dht.RandomIDInBucket(self, 3)
	b := dht.RandomIDInBucket(self, 3)
	connect(t, f.bus, a)
	waitRouting(t, sub, a, types.RoutingAdded)
	connect(t, f.bus, b)
	evt := waitRouting(t, sub, b, types.RoutingAdded)
	assert.Equal(t, a, evt.Evicted)
}

// TestEngine_LookupBeforeStart 测试未启动时查询
func TestEngine_LookupBeforeStart(t *testing.T) {
	f := newFixture(t, fixtureOpts{cfg: serverConfig()})
	_, err := f.eng.Lookup(context.Background(), types.RandomNodeID())
	assert.ErrorIs(t, err, ErrNotStarted)
}

// TestEngineError 测试错误包装
func TestEngineError(t *testing.T) {
	cause := errors.New("refused")
	err := &EngineError{Op: "dial", Addr: "/ip4/1.2.3.4/tcp/1", Err: ErrDialFailed, Cause: cause}
	assert.ErrorIs(t, err, ErrDialFailed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "engine dial /ip4/1.2.3.4/tcp/1: engine: dial failed: refused", err.Error())
}
