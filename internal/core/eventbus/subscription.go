package eventbus

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-kadnode/pkg/types"
)

// Subscription 一个订阅
type Subscription struct {
	bus      *Bus
	name     string
	lossless bool
	types    []reflect.Type

	out  chan types.Event
	done chan struct{}

	// mu 保护 out 的关闭：投递持读锁，关闭持写锁
	mu      sync.RWMutex
	once    sync.Once
	dropped atomic.Int64
}

// Out 事件输出通道，订阅关闭后被关闭
func (s *Subscription) Out() <-chan types.Event {
	return s.out
}

// Dropped 因缓冲区满被丢弃的事件数
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close 取消订阅
func (s *Subscription) Close() error {
	s.bus.remove(s)
	s.shutdown()
	return nil
}

func (s *Subscription) shutdown() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		close(s.out)
		s.mu.Unlock()
	})
}

func (s *Subscription) deliver(evt types.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	select {
	case <-s.done:
		return
	default:
	}

	if s.lossless {
		select {
		case s.out <- evt:
		case <-s.done:
		}
		return
	}

	select {
	case s.out <- evt:
	default:
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			logger.Warn("订阅者消费过慢，事件被丢弃", "subscriber", s.name, "event", evt.Type(), "dropped", n)
		}
	}
}
