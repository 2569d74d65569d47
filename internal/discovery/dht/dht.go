package dht

import (
	"context"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-kadnode/internal/core/metrics"
	"github.com/dep2p/go-kadnode/internal/core/storage/engine"
	"github.com/dep2p/go-kadnode/internal/core/storage/kv"
	"github.com/dep2p/go-kadnode/pkg/lib/log"
	"github.com/dep2p/go-kadnode/pkg/protocolids"
	"github.com/dep2p/go-kadnode/pkg/types"
)

var logger = log.Logger("discovery/dht")

// routingPrefix 路由表快照的键前缀
const routingPrefix = "d/r/"

// Option DHT 选项
type Option func(*DHT)

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *DHT) { d.metrics = m }
}

// WithClock 设置时钟
func WithClock(clk clock.Clock) Option {
	return func(d *DHT) {
		if clk != nil {
			d.clock = clk
		}
	}
}

// WithStorage 设置快照存储；为 nil 时不持久化
func WithStorage(eng engine.Engine) Option {
	return func(d *DHT) {
		if eng != nil {
			d.snapshot = kv.New(eng, []byte(routingPrefix))
		}
	}
}

// DHT 分布式哈希表
type DHT struct {
	cfg  Config
	self types.NodeID
	host Host

	rt        *RoutingTable
	providers *ProviderStore
	handler   *Handler
	msgr      *messenger

	metrics  *metrics.Metrics
	clock    clock.Clock
	snapshot *kv.Store

	started atomic.Bool
}

// New 创建 DHT
func New(h Host, cfg Config, opts ...Option) (*DHT, error) {
	if h == nil {
		return nil, ErrNilHost
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &DHT{
		cfg:   cfg,
		self:  h.ID(),
		host:  h,
		clock: clock.New(),
		msgr:  newMessenger(h, cfg.Mode == types.ModeServer),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.rt = NewRoutingTable(d.self, cfg.BucketSize, cfg.MinCloseFill, d.clock)
	d.providers = NewProviderStore(cfg.MaxProviderKeys, cfg.ProviderTTL, d.clock)
	d.handler = NewHandler(d)
	return d, nil
}

// Start 注册协议处理器，并在启用持久化时加载路由表快照
func (d *DHT) Start(_ context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return nil
	}
	d.host.SetStreamHandler(protocolids.Kad, d.handler.HandleStream)

	if d.cfg.PersistRoutingTable {
		n, err := d.LoadSnapshot()
		if err != nil {
			logger.Warn("加载路由表快照失败", "error", err)
		} else if n > 0 {
			logger.Info("已加载路由表快照", "peers", n)
		}
	}

	logger.Info("DHT 已启动", "mode", d.cfg.Mode.String(), "self", d.self.ShortString())
	return nil
}

// Stop 注销协议处理器，并在启用持久化时保存快照
func (d *DHT) Stop(_ context.Context) error {
	if !d.started.CompareAndSwap(true, false) {
		return nil
	}
	d.host.RemoveStreamHandler(protocolids.Kad)
	if d.cfg.PersistRoutingTable {
		return d.SaveSnapshot()
	}
	return nil
}

// Self 本地节点 ID
func (d *DHT) Self() types.NodeID { return d.self }

// Mode 运行模式
func (d *DHT) Mode() types.Mode { return d.cfg.Mode }

// Config 返回配置
func (d *DHT) Config() Config { return d.cfg }

// RoutingTable 返回路由表
func (d *DHT) RoutingTable() *RoutingTable { return d.rt }

// Providers 返回 provider 存储
func (d *DHT) Providers() *ProviderStore { return d.providers }

// closestExcluding 返回距 target 最近的 K 个节点，排除 exclude
func (d *DHT) closestExcluding(target, exclude types.NodeID) []PeerRecord {
	peers := d.rt.Closest(target, d.cfg.BucketSize+1)
	out := peers[:0]
	for _, p := range peers {
		if p.ID != exclude {
			out = append(out, p)
		}
	}
	if len(out) > d.cfg.BucketSize {
		out = out[:d.cfg.BucketSize]
	}
	return out
}
