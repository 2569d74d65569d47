package kadnode

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-kadnode/config"
	"github.com/dep2p/go-kadnode/internal/discovery/bootstrap"
	"github.com/dep2p/go-kadnode/internal/discovery/engine"
	"github.com/dep2p/go-kadnode/pkg/types"
)

const loopback = "/ip4/127.0.0.1/tcp/0"

func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Transport.ListenAddrs = []string{loopback}
	cfg.Discovery.DHT.MinCloseFill = 0
	cfg.Discovery.DHT.QueryTimeout = config.Duration(10 * time.Second)
	cfg.Discovery.DHT.RequestTimeout = config.Duration(2 * time.Second)
	cfg.Discovery.Bootstrap.InitialBackoff = config.Duration(20 * time.Millisecond)
	cfg.Discovery.Bootstrap.MaxBackoff = config.Duration(40 * time.Millisecond)
	cfg.Liveness.ProbeTimeout = config.Duration(2 * time.Second)
	cfg.Metrics.Enable = false
	cfg.Log.Level = "warn"
	return cfg
}

func startNode(t *testing.T, opts ...Option) *Node {
	t.Helper()
	n, err := New(opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	require.NoError(t, n.Start(ctx))
	t.Cleanup(func() { _ = n.Stop(context.Background()) })
	return n
}

func startBootstrapNode(t *testing.T, idFile string) *Node {
	t.Helper()
	cfg := testConfig()
	cfg.Discovery.Mode = config.ModeServer
	cfg.Discovery.Bootstrap.IDFile = idFile
	cfg.Discovery.Bootstrap.WriteIDFile = true
	return startNode(t, WithConfig(cfg))
}

func contains(peers []types.AddrInfo, id types.NodeID) bool {
	for _, p := range peers {
		if p.ID == id {
			return true
		}
	}
	return false
}

// TestNode_ThreeNodeDiscovery 测试引导节点与两个普通节点的相互发现
func TestNode_ThreeNodeDiscovery(t *testing.T) {
	idFile := filepath.Join(t.TempDir(), "bootstrap.id")
	a := startBootstrapNode(t, idFile)
	assert.Equal(t, engine.StateActive, a.State())

	// 引导节点启动后写出 ID 文件
	id, err := bootstrap.ReadIDFile(idFile)
	require.NoError(t, err)
	require.Equal(t, a.ID(), id)

	bootAddr := a.Addrs()[0]
	b := startNode(t, WithConfig(testConfig()), WithBootstrapIDFile(idFile, bootAddr))
	assert.Equal(t, engine.StateActive, b.State())
	assert.True(t, contains(b.RoutingTable(), a.ID()), "B 应在加入时插入引导节点")
	assert.Equal(t, 1, b.RoutingTableSize(), "加入后 B 的路由表只有引导节点")

	c := startNode(t, WithConfig(testConfig()), WithBootstrapIDFile(idFile, bootAddr))

	require.Eventually(t, func() bool {
		return contains(c.RoutingTable(), a.ID()) && contains(c.RoutingTable(), b.ID())
	}, 10*time.Second, 50*time.Millisecond, "C 应经由 A 发现 B")

	require.Eventually(t, func() bool {
		return contains(b.RoutingTable(), c.ID())
	}, 10*time.Second, 50*time.Millisecond, "B 应在 C 连接后发现 C")

	require.Eventually(t, func() bool {
		return contains(a.RoutingTable(), b.ID()) && contains(a.RoutingTable(), c.ID())
	}, 10*time.Second, 50*time.Millisecond)

	for _, n := range []*Node{a, b, c} {
		assert.False(t, contains(n.RoutingTable(), n.ID()), "路由表不应包含自身")
	}

	t.Log("✅ 三节点发现测试通过")
}

// TestNode_LookupAndProviders 测试查询与 provider 发现
func TestNode_LookupAndProviders(t *testing.T) {
	a := startBootstrapNode(t, filepath.Join(t.TempDir(), "bootstrap.id"))
	b := startNode(t, WithConfig(testConfig()), WithBootstrap(a.FullAddrs()[0]))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	peers, err := b.Lookup(ctx, b.ID())
	require.NoError(t, err)
	assert.True(t, contains(peers, a.ID()))

	// B 加入后发布自身 provider 记录
	require.Eventually(t, func() bool {
		provs, err := a.FindProviders(ctx, b.ID())
		return err == nil && contains(provs, b.ID())
	}, 10*time.Second, 50*time.Millisecond)

	rtt, err := b.Ping(ctx, a.ID())
	require.NoError(t, err)
	assert.Positive(t, rtt)
}

// TestNode_PeerDepartureRemoved 测试节点离开后被移出路由表
func TestNode_PeerDepartureRemoved(t *testing.T) {
	a := startBootstrapNode(t, filepath.Join(t.TempDir(), "bootstrap.id"))
	sub, err := a.Subscribe(types.EvtRoutingUpdated{})
	require.NoError(t, err)
	defer sub.Close()

	b, err := New(WithConfig(testConfig()), WithBootstrap(a.FullAddrs()[0]))
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))

	require.Eventually(t, func() bool { return contains(a.RoutingTable(), b.ID()) },
		5*time.Second, 20*time.Millisecond)

	require.NoError(t, b.Stop(context.Background()))

	timeout := time.After(10 * time.Second)
	for {
		select {
		case evt := <-sub.Out():
			e := evt.(types.EvtRoutingUpdated)
			if e.PeerID == b.ID() && e.Outcome == types.RoutingRemoved {
				assert.False(t, contains(a.RoutingTable(), b.ID()))
				t.Log("✅ 节点离开测试通过")
				return
			}
		case <-timeout:
			t.Fatal("等待移除事件超时")
		}
	}
}

// TestNode_ServerDoesNotDial 测试 server 模式节点不主动拨号
//
// B 仍在监听但断开了与 A 的连接：A 的探测与刷新查询都只能使用已有连接，
// 因此 B 被判定离开并移除，A 不会重新连接 B。
func TestNode_ServerDoesNotDial(t *testing.T) {
	a := startBootstrapNode(t, filepath.Join(t.TempDir(), "bootstrap.id"))
	sub, err := a.Subscribe(types.EvtConnectionEstablished{}, types.EvtRoutingUpdated{})
	require.NoError(t, err)
	defer sub.Close()

	b := startNode(t, WithConfig(testConfig()), WithBootstrap(a.FullAddrs()[0]))
	require.Eventually(t, func() bool { return contains(a.RoutingTable(), b.ID()) },
		5*time.Second, 20*time.Millisecond)

	// 只停止 B 的发现引擎，保留监听
	require.NoError(t, b.engine.Stop(context.Background()))
	require.NoError(t, b.host.ClosePeer(a.ID()))

	removed := false
	timeout := time.After(10 * time.Second)
	for !removed {
		select {
		case evt := <-sub.Out():
			switch e := evt.(type) {
			case types.EvtConnectionEstablished:
				require.NotEqual(t, types.DirOutbound, e.Direction, "server 节点不应主动拨号 %s", e.PeerID.ShortString())
			case types.EvtRoutingUpdated:
				if e.PeerID == b.ID() && e.Outcome == types.RoutingRemoved {
					removed = true
				}
			}
		case <-timeout:
			t.Fatal("等待移除事件超时")
		}
	}

	// 刷新查询同样不能拨号
	a.Refresh()
	deadline := time.After(500 * time.Millisecond)
	for {
		select {
		case evt := <-sub.Out():
			if e, ok := evt.(types.EvtConnectionEstablished); ok {
				require.NotEqual(t, types.DirOutbound, e.Direction, "server 节点不应主动拨号 %s", e.PeerID.ShortString())
			}
		case <-deadline:
			assert.False(t, a.host.Connected(b.ID()))
			t.Log("✅ server 模式不拨号测试通过")
			return
		}
	}
}

// TestNode_BootstrapUnreachable 测试引导节点不可达时启动失败
func TestNode_BootstrapUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.Discovery.Bootstrap.MaxDialAttempts = 2
	cfg.Transport.DialTimeout = config.Duration(time.Second)

	// 占用后立即释放的端口上没有监听者
	a := startBootstrapNode(t, filepath.Join(t.TempDir(), "bootstrap.id"))
	addr := a.FullAddrs()[0]
	require.NoError(t, a.Stop(context.Background()))

	n, err := New(WithConfig(cfg), WithBootstrap(addr))
	require.NoError(t, err)
	err = n.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), engine.ErrBootstrapUnreachable.Error())

	assert.ErrorIs(t, n.Start(context.Background()), ErrNodeClosed)
}

// TestNode_MalformedIDFile 测试 ID 文件内容错误时启动失败
func TestNode_MalformedIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bootstrap.id")
	require.NoError(t, os.WriteFile(path, []byte("garbage!\n"), 0o644))

	n, err := New(WithConfig(testConfig()), WithBootstrapIDFile(path, "/ip4/127.0.0.1/tcp/50000"))
	require.NoError(t, err)
	err = n.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), bootstrap.ErrMalformedBootstrapID.Error())
}

// TestNode_Lifecycle 测试未启动与重复启动
func TestNode_Lifecycle(t *testing.T) {
	cfg := testConfig()
	cfg.Discovery.Mode = config.ModeServer
	n, err := New(WithConfig(cfg))
	require.NoError(t, err)

	_, err = n.Lookup(context.Background(), types.RandomNodeID())
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, n.WaitJoined(context.Background()), ErrNotStarted)

	require.NoError(t, n.Start(context.Background()))
	assert.ErrorIs(t, n.Start(context.Background()), ErrAlreadyStarted)
	assert.Equal(t, config.ModeServer, n.Mode())
	require.NoError(t, n.WaitJoined(context.Background()))

	require.NoError(t, n.Stop(context.Background()))
	require.NoError(t, n.Stop(context.Background()))
	assert.ErrorIs(t, n.Start(context.Background()), ErrNodeClosed)
}

// TestOptions_Order 测试 WithConfig 不覆盖其它选项
func TestOptions_Order(t *testing.T) {
	o := newOptions()
	for _, opt := range []Option{
		WithListenAddrs("/ip4/127.0.0.1/tcp/4001"),
		WithConfig(config.NewBootstrapConfig()),
		WithRefreshInterval(time.Minute),
	} {
		require.NoError(t, opt(o))
	}
	cfg := o.toConfig()
	assert.Equal(t, []string{"/ip4/127.0.0.1/tcp/4001"}, cfg.Transport.ListenAddrs)
	assert.True(t, cfg.Discovery.IsServer())
	assert.Equal(t, time.Minute, cfg.Discovery.DHT.RefreshInterval.Duration())

	assert.Error(t, WithBootstrap("/ip4/127.0.0.1/tcp/1")(newOptions()))
	assert.Error(t, WithListenAddrs("not-an-addr")(newOptions()))
	assert.Error(t, WithRefreshInterval(0)(newOptions()))
}

// TestNew_InvalidConfig 测试配置校验
func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Discovery.DHT.BucketSize = 0
	_, err := New(WithConfig(cfg))
	assert.Error(t, err)
}
