package host

import (
	"context"
	"errors"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	mss "github.com/multiformats/go-multistream"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"

	"github.com/dep2p/go-kadnode/internal/core/eventbus"
	"github.com/dep2p/go-kadnode/internal/core/identity"
	"github.com/dep2p/go-kadnode/internal/core/metrics"
	"github.com/dep2p/go-kadnode/internal/core/muxer/yamux"
	"github.com/dep2p/go-kadnode/internal/core/security/noise"
	"github.com/dep2p/go-kadnode/internal/core/transport/tcp"
	"github.com/dep2p/go-kadnode/internal/core/upgrader"
	"github.com/dep2p/go-kadnode/pkg/lib/log"
	"github.com/dep2p/go-kadnode/pkg/types"
)

var logger = log.Logger("core/host")

var (
	// ErrClosed 主机已关闭
	ErrClosed = errors.New("host: closed")
	// ErrDialSelf 拨号自己
	ErrDialSelf = errors.New("host: dial to self")
	// ErrNoAddresses 没有可拨号的地址
	ErrNoAddresses = errors.New("host: no addresses")
	// ErrNotConnected 与对端无连接
	ErrNotConnected = errors.New("host: not connected")
	// ErrNoHandler 对端不支持协议
	ErrNoHandler = errors.New("host: protocol not supported")
)

// Config 主机参数
type Config struct {
	DialTimeout       time.Duration
	HandshakeTimeout  time.Duration
	KeepAliveInterval time.Duration
	MaxStreamWindow   uint32
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{
		DialTimeout:       15 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		KeepAliveInterval: 30 * time.Second,
		MaxStreamWindow:   1 << 20,
	}
}

// StreamHandler 入站流处理函数，负责关闭流
type StreamHandler func(*Stream)

// Host 传输会话
type Host struct {
	id      *identity.Identity
	cfg     Config
	tcp     *tcp.Transport
	up      *upgrader.Upgrader
	bus     *eventbus.Bus
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mux      *mss.MultistreamMuxer[string]
	handlers sync.Map // protocol -> StreamHandler

	dials singleflight.Group

	mu        sync.RWMutex
	conns     map[types.NodeID][]*upgrader.Conn
	listeners []manet.Listener
	addrs     []ma.Multiaddr
	closed    bool
}

// New 创建主机，bus 与 m 可为 nil
func New(id *identity.Identity, cfg Config, bus *eventbus.Bus, m *metrics.Metrics) (*Host, error) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Host{
		id:      id,
		cfg:     cfg,
		tcp:     tcp.New(cfg.DialTimeout),
		bus:     bus,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		mux:     mss.NewMultistreamMuxer[string](),
		conns:   make(map[types.NodeID][]*upgrader.Conn),
	}

	sec, err := noise.New(id, h.Addrs)
	if err != nil {
		cancel()
		return nil, err
	}
	h.up = upgrader.New(sec, yamux.Config{
		KeepAliveInterval: cfg.KeepAliveInterval,
		MaxStreamWindow:   cfg.MaxStreamWindow,
	}, cfg.HandshakeTimeout)
	return h, nil
}

// ID 本地节点 ID
func (h *Host) ID() types.NodeID {
	return h.id.ID()
}

// AddrInfo 本地节点的 ID 与公告地址
func (h *Host) AddrInfo() types.AddrInfo {
	return types.AddrInfo{ID: h.ID(), Addrs: h.Addrs()}
}

// Close 关闭监听器与所有连接，等待后台 goroutine 退出
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	var conns []*upgrader.Conn
	for _, cs := range h.conns {
		conns = append(conns, cs...)
	}
	h.mu.Unlock()

	h.cancel()
	err := h.tcp.Close()
	for _, c := range conns {
		err = multierr.Append(err, ignoreClosed(c.Close()))
	}
	h.wg.Wait()
	return err
}

func (h *Host) isClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

func (h *Host) emit(evt types.Event) {
	if h.bus == nil {
		return
	}
	if err := h.bus.Emit(evt); err != nil && !errors.Is(err, eventbus.ErrClosed) {
		logger.Debug("发布事件失败", "event", evt.Type(), "error", err)
	}
}

func ignoreClosed(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	// yamux 重复关闭返回 nil，这里只过滤已关闭的底层连接
	if errors.Is(err, errConnClosed) {
		return nil
	}
	return err
}
