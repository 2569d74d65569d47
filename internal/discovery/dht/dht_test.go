package dht

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-kadnode/internal/core/host"
	"github.com/dep2p/go-kadnode/internal/core/identity"
	"github.com/dep2p/go-kadnode/internal/core/storage/engine"
	"github.com/dep2p/go-kadnode/internal/core/storage/engine/badger"
	"github.com/dep2p/go-kadnode/pkg/lib/msgio"
	"github.com/dep2p/go-kadnode/pkg/protocolids"
	"github.com/dep2p/go-kadnode/pkg/types"
)

func newTestHost(t *testing.T) *host.Host {
	t.Helper()
	id, err := identity.Generate()
	require.NoError(t, err)
	h, err := host.New(id, host.DefaultConfig(), nil, nil)
	require.NoError(t, err)
	require.NoError(t, h.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0")))
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func newTestDHT(t *testing.T, cfg Config, opts ...Option) *DHT {
	t.Helper()
	d, err := New(newTestHost(t), cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { _ = d.Stop(context.Background()) })
	return d
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.QueryTimeout = 5 * time.Second
	cfg.RequestTimeout = 2 * time.Second
	return cfg
}

// know 让 a 的路由表包含 b
func know(a, b *DHT) {
	a.rt.Insert(PeerRecord{ID: b.self, Addrs: b.host.Addrs()})
}

func ids(recs []PeerRecord) []types.NodeID {
	out := make([]types.NodeID, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

// TestDHT_FindClosestPeers_Singleton 测试只有引导节点时的查询结果
func TestDHT_FindClosestPeers_Singleton(t *testing.T) {
	a := newTestDHT(t, testConfig())
	b := newTestDHT(t, testConfig())
	know(a, b)
	know(b, a)

	q := b.FindClosestPeers(context.Background(), b.self)
	require.Equal(t, StateCompleted, q.State, "err: %v", q.Err)
	assert.Equal(t, []types.NodeID{a.self}, ids(q.Peers))

	t.Log("✅ 单节点查询测试通过")
}

// TestDHT_FindClosestPeers_Transitive 测试经由引导节点的传递发现
func TestDHT_FindClosestPeers_Transitive(t *testing.T) {
	a := newTestDHT(t, testConfig())
	b := newTestDHT(t, testConfig())
	c := newTestDHT(t, testConfig())
	know(a, b)
	know(a, c)
	know(c, a)

	q := c.FindClosestPeers(context.Background(), c.self)
	require.Equal(t, StateCompleted, q.State, "err: %v", q.Err)
	got := ids(q.Peers)
	assert.Contains(t, got, a.self)
	assert.Contains(t, got, b.self)
	assert.NotContains(t, got, c.self)

	for i := 1; i < len(q.Peers); i++ {
		assert.True(t, closer(q.Peers[i-1].ID, q.Peers[i].ID, c.self))
	}

	// 查询结果不直接写入路由表
	_, ok := c.rt.Get(b.self)
	assert.False(t, ok)
}

// TestDHT_FindClosestPeers_Empty 测试空路由表
func TestDHT_FindClosestPeers_Empty(t *testing.T) {
	a := newTestDHT(t, testConfig())
	q := a.FindClosestPeers(context.Background(), types.RandomNodeID())
	assert.Equal(t, StateFailed, q.State)
	assert.ErrorIs(t, q.Err, ErrNoNearbyPeers)
}

// TestDHT_QueryTimeout 测试对端不响应时查询超时
func TestDHT_QueryTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.QueryTimeout = 300 * time.Millisecond
	a := newTestDHT(t, cfg)

	silent := newTestHost(t)
	silent.SetStreamHandler(protocolids.Kad, func(s *host.Stream) {
		_, _ = msgio.ReadMsg(s, msgio.DefaultMaxSize)
		time.Sleep(2 * time.Second)
		_ = s.Close()
	})
	a.rt.Insert(PeerRecord{ID: silent.ID(), Addrs: silent.Addrs()})

	q := a.FindClosestPeers(context.Background(), types.RandomNodeID())
	assert.Equal(t, StateFailed, q.State)
	assert.ErrorIs(t, q.Err, ErrQueryTimeout)
	assert.Equal(t, "failed", q.Event().State)
}

// TestDHT_Bootstrap 测试引导查询进度
func TestDHT_Bootstrap(t *testing.T) {
	a := newTestDHT(t, testConfig())
	b := newTestDHT(t, testConfig())
	c := newTestDHT(t, testConfig())
	know(a, b)
	know(a, c)
	know(b, a)

	var remaining []int
	q := b.Bootstrap(context.Background(), func(p Query) {
		remaining = append(remaining, p.Remaining)
	})
	require.Equal(t, StateCompleted, q.State, "err: %v", q.Err)
	require.NotEmpty(t, remaining)
	assert.Equal(t, 0, remaining[len(remaining)-1])
	assert.Equal(t, 0, q.Remaining)
	assert.Contains(t, ids(q.Peers), c.self)
}

// TestDHT_ProvideAndFind 测试 provider 发布与查询
func TestDHT_ProvideAndFind(t *testing.T) {
	a := newTestDHT(t, testConfig())
	b := newTestDHT(t, testConfig())
	c := newTestDHT(t, testConfig())
	know(b, a)
	know(c, a)

	q := b.Provide(context.Background(), b.self)
	require.Equal(t, StateCompleted, q.State, "err: %v", q.Err)
	assert.Equal(t, []types.NodeID{a.self}, ids(q.Peers))
	assert.Len(t, a.providers.Get(b.self), 1)

	provs, err := c.FindProviders(context.Background(), b.self)
	require.NoError(t, err)
	require.Len(t, provs, 1)
	assert.Equal(t, b.self, provs[0].ID)
	assert.NotEmpty(t, provs[0].Addrs)
}

// TestDHT_ProvideFailure 测试没有节点时广播失败
func TestDHT_ProvideFailure(t *testing.T) {
	a := newTestDHT(t, testConfig())
	q := a.Provide(context.Background(), a.self)
	assert.Equal(t, StateFailed, q.State)
	assert.ErrorIs(t, q.Err, ErrProvideFailed)
}

// TestDHT_Ping 测试 DHT PING
func TestDHT_Ping(t *testing.T) {
	a := newTestDHT(t, testConfig())
	b := newTestDHT(t, testConfig())
	require.NoError(t, a.Ping(context.Background(), types.AddrInfo{ID: b.self, Addrs: b.host.Addrs()}))

	require.NoError(t, b.Stop(context.Background()))
	err := a.Ping(context.Background(), types.AddrInfo{ID: b.self, Addrs: b.host.Addrs()})
	assert.Error(t, err)
}

// TestDHT_ServerModeNoDial 测试 server 模式只向已连接节点发请求
func TestDHT_ServerModeNoDial(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = types.ModeServer
	a := newTestDHT(t, cfg)
	b := newTestDHT(t, testConfig())
	know(a, b)

	err := a.Ping(context.Background(), types.AddrInfo{ID: b.self, Addrs: b.host.Addrs()})
	assert.ErrorIs(t, err, host.ErrNotConnected)
	q := a.FindClosestPeers(context.Background(), b.self)
	assert.Equal(t, StateFailed, q.State)
	assert.False(t, a.host.Connected(b.self), "server 模式不应拨号")

	// 对端连入后请求走已有连接
	require.NoError(t, b.host.Connect(context.Background(), types.AddrInfo{ID: a.self, Addrs: a.host.Addrs()}))
	require.Eventually(t, func() bool { return a.host.Connected(b.self) }, time.Second, 10*time.Millisecond)
	require.NoError(t, a.Ping(context.Background(), types.AddrInfo{ID: b.self, Addrs: b.host.Addrs()}))

	t.Log("✅ ServerModeNoDial 测试通过")
}

// TestHandler_Rejects 测试处理器拒绝无效请求
func TestHandler_Rejects(t *testing.T) {
	d := newTestDHT(t, testConfig())
	h := d.handler
	from := types.RandomNodeID()

	_, err := h.handle(from, newRequest(MessageTypePing, 1, types.RandomNodeID(), nil))
	assert.ErrorIs(t, err, ErrSenderMismatch)

	_, err = h.handle(from, newRequest(MessageTypeFindNodeResponse, 2, from, nil))
	assert.ErrorIs(t, err, ErrUnsupportedMessage)

	_, err = h.handle(from, newRequest(MessageTypeAddProvider, 3, from, nil))
	assert.ErrorIs(t, err, ErrEmptyKey)

	resp, err := h.handle(from, newRequest(MessageTypePing, 4, from, nil))
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

// TestRateLimiter_Concurrent 测试同一来源并发首个请求共享一个限流器
func TestRateLimiter_Concurrent(t *testing.T) {
	rl := newRateLimiter(0.001, 5)
	peer := types.RandomNodeID()

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow(peer) {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(5), allowed.Load())
}

// TestRateLimiter 测试来源限流
func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(1, 2)
	peer := types.RandomNodeID()
	assert.True(t, rl.Allow(peer))
	assert.True(t, rl.Allow(peer))
	assert.False(t, rl.Allow(peer))
	assert.True(t, rl.Allow(types.RandomNodeID()))
}

// TestDHT_Snapshot 测试路由表快照
func TestDHT_Snapshot(t *testing.T) {
	eng, err := badger.New(engine.Config{InMemory: true})
	require.NoError(t, err)
	defer eng.Close()

	cfg := testConfig()
	cfg.PersistRoutingTable = true

	h := newTestHost(t)
	d, err := New(h, cfg, WithStorage(eng))
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))

	peers := []types.NodeID{types.RandomNodeID(), types.RandomNodeID(), types.RandomNodeID()}
	for _, id := range peers {
		d.rt.Insert(PeerRecord{ID: id, Addrs: []ma.Multiaddr{ma.StringCast("/ip4/10.0.0.1/tcp/4001")}})
	}
	require.NoError(t, d.Stop(context.Background()))

	restored, err := New(h, cfg, WithStorage(eng))
	require.NoError(t, err)
	require.NoError(t, restored.Start(context.Background()))
	defer restored.Stop(context.Background())

	assert.Equal(t, len(peers), restored.rt.Size())
	for _, id := range peers {
		p, ok := restored.rt.Get(id)
		require.True(t, ok)
		assert.Equal(t, "/ip4/10.0.0.1/tcp/4001", p.Addrs[0].String())
	}
}

// TestConfig_Validate 测试配置校验
func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Alpha = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.MinCloseFill = cfg.BucketSize + 1
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	_, err := New(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilHost)
}
