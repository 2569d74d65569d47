package dht

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-kadnode/internal/core/host"
	"github.com/dep2p/go-kadnode/pkg/lib/msgio"
	"github.com/dep2p/go-kadnode/pkg/types"
)

// limiterIdleTTL 空闲限流器的回收时间
const limiterIdleTTL = 10 * time.Minute

// maxLimiters 同时跟踪的来源节点数
const maxLimiters = 4096

// rateLimiter 按来源节点限流
type rateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters *expirable.LRU[types.NodeID, *rate.Limiter]
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	return &rateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: expirable.NewLRU[types.NodeID, *rate.Limiter](maxLimiters, nil, limiterIdleTTL),
	}
}

// Allow 检查来源是否仍有配额
func (rl *rateLimiter) Allow(sender types.NodeID) bool {
	rl.mu.Lock()
	l, ok := rl.limiters.Get(sender)
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters.Add(sender, l)
	}
	rl.mu.Unlock()
	return l.Allow()
}

// Handler DHT 请求处理器
//
// 处理器只读路由表，不把请求方写入路由表。
type Handler struct {
	dht     *DHT
	limiter *rateLimiter
}

// NewHandler 创建处理器
func NewHandler(d *DHT) *Handler {
	return &Handler{
		dht:     d,
		limiter: newRateLimiter(d.cfg.RateLimitPerSecond, d.cfg.RateLimitBurst),
	}
}

// HandleStream 处理一个入站流：读一个请求，写一个响应
func (h *Handler) HandleStream(stream *host.Stream) {
	defer stream.Close()
	_ = stream.SetDeadline(time.Now().Add(h.dht.cfg.RequestTimeout))

	raw, err := msgio.ReadMsg(stream, msgio.DefaultMaxSize)
	if err != nil {
		logger.Debug("读取请求失败", "peer", stream.RemotePeer().ShortString(), "error", err)
		return
	}
	req, err := DecodeMessage(raw)
	if err != nil {
		logger.Debug("解码请求失败", "peer", stream.RemotePeer().ShortString(), "error", err)
		return
	}

	resp, err := h.handle(stream.RemotePeer(), req)
	h.dht.metrics.RecordInbound(req.Type.String(), err)
	if err != nil {
		resp = newErrorResponse(req, h.dht.self, err)
	}

	data, err := resp.Encode()
	if err != nil {
		return
	}
	if err := msgio.WriteMsg(stream, data); err != nil {
		logger.Debug("写入响应失败", "peer", stream.RemotePeer().ShortString(), "error", err)
	}
}

func (h *Handler) handle(from types.NodeID, req *Message) (*Message, error) {
	if req.Sender != from {
		return nil, ErrSenderMismatch
	}
	if !h.limiter.Allow(from) {
		return nil, ErrRateLimitExceeded
	}

	switch req.Type {
	case MessageTypeFindNode:
		return h.handleFindNode(req), nil
	case MessageTypePing:
		resp := newResponse(req, h.dht.self)
		resp.Success = true
		return resp, nil
	case MessageTypeAddProvider:
		return h.handleAddProvider(req)
	case MessageTypeGetProviders:
		return h.handleGetProviders(req), nil
	default:
		return nil, ErrUnsupportedMessage
	}
}

func (h *Handler) handleFindNode(req *Message) *Message {
	resp := newResponse(req, h.dht.self)
	resp.CloserPeers = toPeerInfos(h.dht.closestExcluding(req.Target, req.Sender))
	return resp
}

func (h *Handler) handleAddProvider(req *Message) (*Message, error) {
	if req.Key.IsEmpty() {
		return nil, ErrEmptyKey
	}
	h.dht.providers.Add(req.Key, PeerRecord{
		ID:       req.Sender,
		Addrs:    parseAddrs(req.SenderAddrs),
		LastSeen: h.dht.clock.Now(),
	}, time.Duration(req.TTL)*time.Second)
	resp := newResponse(req, h.dht.self)
	resp.Success = true
	return resp, nil
}

func (h *Handler) handleGetProviders(req *Message) *Message {
	resp := newResponse(req, h.dht.self)
	resp.Providers = toPeerInfos(h.dht.providers.Get(req.Key))
	resp.CloserPeers = toPeerInfos(h.dht.closestExcluding(req.Key, req.Sender))
	return resp
}
