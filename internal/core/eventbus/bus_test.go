package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-kadnode/pkg/types"
)

func recv(t *testing.T, sub *Subscription) types.Event {
	t.Helper()
	select {
	case evt, ok := <-sub.Out():
		require.True(t, ok, "订阅已关闭")
		return evt
	case <-time.After(time.Second):
		t.Fatal("等待事件超时")
		return nil
	}
}

// TestBus_SubscribeEmit 测试按类型投递
func TestBus_SubscribeEmit(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub, err := bus.Subscribe([]types.Event{types.EvtConnectionEstablished{}, types.EvtConnectionClosed{}})
	require.NoError(t, err)

	id := types.NodeID{1}
	require.NoError(t, bus.Emit(types.EvtNewListenAddr{}))
	require.NoError(t, bus.Emit(types.EvtConnectionEstablished{PeerID: id}))
	require.NoError(t, bus.Emit(types.EvtConnectionClosed{PeerID: id}))

	evt := recv(t, sub)
	est, ok := evt.(types.EvtConnectionEstablished)
	require.True(t, ok)
	assert.Equal(t, id, est.PeerID)
	_, ok = recv(t, sub).(types.EvtConnectionClosed)
	assert.True(t, ok)

	assert.True(t, bus.HasSubscribers(types.EvtConnectionClosed{}))
	assert.False(t, bus.HasSubscribers(types.EvtPing{}))

	t.Log("✅ SubscribeEmit 测试通过")
}

// TestBus_NoTypes 测试空订阅
func TestBus_NoTypes(t *testing.T) {
	_, err := NewBus().Subscribe(nil)
	assert.ErrorIs(t, err, ErrNoEventTypes)
}

// TestSubscription_LossyDrops 测试有损订阅丢弃
func TestSubscription_LossyDrops(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub, err := bus.Subscribe([]types.Event{types.EvtPing{}}, BufSize(1))
	require.NoError(t, err)

	require.NoError(t, bus.Emit(types.EvtPing{}))
	require.NoError(t, bus.Emit(types.EvtPing{}))
	require.NoError(t, bus.Emit(types.EvtPing{}))
	assert.Equal(t, int64(2), sub.Dropped())
}

// TestSubscription_LosslessBlocks 测试无损订阅阻塞发布方
func TestSubscription_LosslessBlocks(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub, err := bus.Subscribe([]types.Event{types.EvtPing{}}, BufSize(1), Lossless())
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			_ = bus.Emit(types.EvtPing{RTT: time.Duration(i)})
		}
	}()

	for i := 0; i < 5; i++ {
		evt := recv(t, sub).(types.EvtPing)
		assert.Equal(t, time.Duration(i), evt.RTT)
	}
	wg.Wait()
	assert.Zero(t, sub.Dropped())
}

// TestSubscription_CloseUnblocksEmitter 测试关闭订阅解除阻塞
func TestSubscription_CloseUnblocksEmitter(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub, err := bus.Subscribe([]types.Event{types.EvtPing{}}, BufSize(1), Lossless())
	require.NoError(t, err)
	require.NoError(t, bus.Emit(types.EvtPing{}))

	done := make(chan struct{})
	go func() {
		_ = bus.Emit(types.EvtPing{})
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, sub.Close())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit 未被解除阻塞")
	}
	assert.False(t, bus.HasSubscribers(types.EvtPing{}))
}

// TestBus_Close 测试关闭总线
func TestBus_Close(t *testing.T) {
	bus := NewBus()
	sub, err := bus.Subscribe([]types.Event{types.EvtPing{}, types.EvtNewListenAddr{}})
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	_, ok := <-sub.Out()
	assert.False(t, ok)
	assert.ErrorIs(t, bus.Emit(types.EvtPing{}), ErrClosed)
	_, err = bus.Subscribe([]types.Event{types.EvtPing{}})
	assert.ErrorIs(t, err, ErrClosed)
	require.NoError(t, sub.Close())
}
