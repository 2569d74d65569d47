package eventbus

import (
	"errors"
	"reflect"
	"sync"

	"github.com/dep2p/go-kadnode/pkg/lib/log"
	"github.com/dep2p/go-kadnode/pkg/types"
)

var logger = log.Logger("core/eventbus")

var (
	// ErrClosed 事件总线已关闭
	ErrClosed = errors.New("eventbus: closed")
	// ErrNoEventTypes 订阅时未指定事件类型
	ErrNoEventTypes = errors.New("eventbus: no event types")
)

// defaultBuffer 订阅默认缓冲区大小
const defaultBuffer = 64

// ============================================================================
//                              Bus
// ============================================================================

// Bus 事件总线
type Bus struct {
	mu     sync.RWMutex
	sinks  map[reflect.Type][]*Subscription
	closed bool
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{sinks: make(map[reflect.Type][]*Subscription)}
}

// SubscriptionOpt 订阅选项
type SubscriptionOpt func(*subSettings)

type subSettings struct {
	buffer   int
	lossless bool
	name     string
}

// BufSize 设置缓冲区大小
func BufSize(n int) SubscriptionOpt {
	return func(s *subSettings) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// Lossless 缓冲区满时阻塞发布方而不是丢弃
func Lossless() SubscriptionOpt {
	return func(s *subSettings) { s.lossless = true }
}

// Name 订阅者名称，用于丢弃告警日志
func Name(name string) SubscriptionOpt {
	return func(s *subSettings) { s.name = name }
}

// Subscribe 订阅一组事件类型
//
//	sub, _ := bus.Subscribe([]types.Event{types.EvtConnectionEstablished{}, types.EvtConnectionClosed{}})
func (b *Bus) Subscribe(events []types.Event, opts ...SubscriptionOpt) (*Subscription, error) {
	if len(events) == 0 {
		return nil, ErrNoEventTypes
	}
	settings := subSettings{buffer: defaultBuffer}
	for _, opt := range opts {
		opt(&settings)
	}

	sub := &Subscription{
		bus:      b,
		name:     settings.name,
		lossless: settings.lossless,
		out:      make(chan types.Event, settings.buffer),
		done:     make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	for _, evt := range events {
		typ := reflect.TypeOf(evt)
		sub.types = append(sub.types, typ)
		b.sinks[typ] = append(b.sinks[typ], sub)
	}
	return sub, nil
}

// Emit 发布事件
func (b *Bus) Emit(evt types.Event) error {
	if evt == nil {
		return nil
	}
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	sinks := append([]*Subscription(nil), b.sinks[reflect.TypeOf(evt)]...)
	b.mu.RUnlock()

	for _, s := range sinks {
		s.deliver(evt)
	}
	return nil
}

// HasSubscribers 是否有订阅者关注该事件类型
func (b *Bus) HasSubscribers(evt types.Event) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sinks[reflect.TypeOf(evt)]) > 0
}

// Close 关闭总线及所有订阅
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	seen := make(map[*Subscription]struct{})
	var subs []*Subscription
	for _, list := range b.sinks {
		for _, s := range list {
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				subs = append(subs, s)
			}
		}
	}
	b.sinks = make(map[reflect.Type][]*Subscription)
	b.mu.Unlock()

	for _, s := range subs {
		s.shutdown()
	}
	return nil
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, typ := range sub.types {
		list := b.sinks[typ]
		for i, s := range list {
			if s == sub {
				b.sinks[typ] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(b.sinks[typ]) == 0 {
			delete(b.sinks, typ)
		}
	}
}
