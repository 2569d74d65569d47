package liveness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-kadnode/internal/core/eventbus"
	"github.com/dep2p/go-kadnode/internal/core/host"
	"github.com/dep2p/go-kadnode/internal/core/metrics"
	"github.com/dep2p/go-kadnode/pkg/lib/log"
	"github.com/dep2p/go-kadnode/pkg/lib/msgio"
	"github.com/dep2p/go-kadnode/pkg/protocolids"
	"github.com/dep2p/go-kadnode/pkg/types"
)

var logger = log.Logger("protocol/liveness")

// maxMessageSize ping 消息很小
const maxMessageSize = 4 << 10

// Host 存活探测依赖的传输能力
type Host interface {
	ID() types.NodeID
	Connect(ctx context.Context, ai types.AddrInfo) error
	Connected(id types.NodeID) bool
	NewStream(ctx context.Context, peer types.NodeID, protos ...string) (*host.Stream, error)
	SetStreamHandler(proto string, handler host.StreamHandler)
	RemoveStreamHandler(proto string)
	ConnectedPeers() []types.NodeID
}

// Config 服务参数
type Config struct {
	// Interval 心跳间隔，0 表示不做周期探测
	Interval time.Duration
	// Timeout 单次 ping 超时
	Timeout time.Duration
	// NoDial 探测只使用已有连接，未连接即视为失败（server 模式）
	NoDial bool
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{Interval: 15 * time.Second, Timeout: 5 * time.Second}
}

// Status 节点的存活状态
type Status struct {
	LastRTT             time.Duration
	LastSeen            time.Time
	ConsecutiveFailures int
}

// Service 存活探测服务
type Service struct {
	host    Host
	bus     *eventbus.Bus
	metrics *metrics.Metrics
	cfg     Config
	clock   clock.Clock

	mu     sync.RWMutex
	status map[types.NodeID]*Status

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建服务，bus 与 m 可为 nil
func New(h Host, bus *eventbus.Bus, m *metrics.Metrics, cfg Config, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		host:    h,
		bus:     bus,
		metrics: m,
		cfg:     cfg,
		clock:   clk,
		status:  make(map[types.NodeID]*Status),
	}
}

// Start 注册协议处理并启动心跳
func (s *Service) Start(_ context.Context) error {
	s.host.SetStreamHandler(protocolids.Ping, s.handlePing)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	if s.cfg.Interval > 0 {
		s.wg.Add(1)
		go s.heartbeat(ctx)
	}
	return nil
}

// Stop 停止服务
func (s *Service) Stop(_ context.Context) error {
	s.host.RemoveStreamHandler(protocolids.Ping)
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}

// Ping 对已连接节点发一次 ping，返回往返时延
func (s *Service) Ping(ctx context.Context, peer types.NodeID) (time.Duration, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	rtt, err := s.ping(ctx, peer)
	s.record(peer, rtt, err)
	return rtt, err
}

// Probe 新鲜度探测：必要时重新连接，再 ping 一次
//
// NoDial 时不重新连接，连接已断开直接返回 host.ErrNotConnected。
func (s *Service) Probe(ctx context.Context, ai types.AddrInfo) error {
	if s.cfg.NoDial {
		if !s.host.Connected(ai.ID) {
			s.record(ai.ID, 0, host.ErrNotConnected)
			return fmt.Errorf("probe %s: %w", ai.ID.ShortString(), host.ErrNotConnected)
		}
		_, err := s.Ping(ctx, ai.ID)
		return err
	}
	if err := s.host.Connect(ctx, ai); err != nil {
		s.record(ai.ID, 0, err)
		return fmt.Errorf("probe connect: %w", err)
	}
	_, err := s.Ping(ctx, ai.ID)
	return err
}

// Status 返回节点的存活状态
func (s *Service) Status(peer types.NodeID) (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.status[peer]
	if !ok {
		return Status{}, false
	}
	return *st, true
}

func (s *Service) ping(ctx context.Context, peer types.NodeID) (time.Duration, error) {
	stream, err := s.host.NewStream(ctx, peer, protocolids.Ping)
	if err != nil {
		return 0, err
	}
	defer stream.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetDeadline(deadline)
	}

	start := s.clock.Now()
	req := newPingRequest(start)
	data, err := encode(req)
	if err != nil {
		return 0, err
	}
	if err := msgio.WriteMsg(stream, data); err != nil {
		return 0, fmt.Errorf("write ping: %w", err)
	}
	raw, err := msgio.ReadMsg(stream, maxMessageSize)
	if err != nil {
		return 0, fmt.Errorf("read pong: %w", err)
	}
	pong, err := decode[PongResponse](raw)
	if err != nil {
		return 0, fmt.Errorf("decode pong: %w", err)
	}
	if pong.ID != req.ID {
		return 0, ErrPongMismatch
	}
	return s.clock.Since(start), nil
}

func (s *Service) handlePing(stream *host.Stream) {
	defer stream.Close()
	_ = stream.SetDeadline(time.Now().Add(s.timeout()))

	raw, err := msgio.ReadMsg(stream, maxMessageSize)
	if err != nil {
		return
	}
	req, err := decode[PingRequest](raw)
	if err != nil {
		logger.Debug("无效的 ping 请求", "peer", stream.RemotePeer().ShortString(), "error", err)
		return
	}
	data, err := encode(&PongResponse{ID: req.ID, Timestamp: s.clock.Now().UnixNano()})
	if err != nil {
		return
	}
	_ = msgio.WriteMsg(stream, data)
}

func (s *Service) timeout() time.Duration {
	if s.cfg.Timeout > 0 {
		return s.cfg.Timeout
	}
	return DefaultConfig().Timeout
}

func (s *Service) record(peer types.NodeID, rtt time.Duration, err error) {
	s.mu.Lock()
	st, ok := s.status[peer]
	if !ok {
		st = &Status{}
		s.status[peer] = st
	}
	if err == nil {
		st.LastRTT = rtt
		st.LastSeen = s.clock.Now()
		st.ConsecutiveFailures = 0
	} else {
		st.ConsecutiveFailures++
	}
	s.mu.Unlock()

	if err == nil {
		s.metrics.RecordPing(rtt)
	}
	if s.bus != nil {
		_ = s.bus.Emit(types.EvtPing{PeerID: peer, RTT: rtt, Err: err})
	}
}

// Forget 清除节点状态
func (s *Service) Forget(peer types.NodeID) {
	s.mu.Lock()
	delete(s.status, peer)
	s.mu.Unlock()
}

func (s *Service) heartbeat(ctx context.Context) {
	defer s.wg.Done()
	ticker := s.clock.Ticker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pingAll(ctx)
		}
	}
}

func (s *Service) pingAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, peer := range s.host.ConnectedPeers() {
		wg.Add(1)
		go func(p types.NodeID) {
			defer wg.Done()
			if rtt, err := s.Ping(ctx, p); err != nil {
				logger.Debug("ping 失败", "peer", p.ShortString(), "error", err)
			} else {
				logger.Debug("ping 成功", "peer", p.ShortString(), "rtt", rtt)
			}
		}(peer)
	}
	wg.Wait()
}
