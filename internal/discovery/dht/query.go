package dht

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-kadnode/pkg/types"
)

// ============================================================================
//                              查询模型
// ============================================================================

// QueryKind 查询类型
type QueryKind int

const (
	// KindClosestPeers 查找距目标最近的节点
	KindClosestPeers QueryKind = iota
	// KindBootstrap 刷新所有桶
	KindBootstrap
	// KindProvide 发布 provider 记录
	KindProvide
)

// String 返回类型名称
func (k QueryKind) String() string {
	switch k {
	case KindClosestPeers:
		return "closest_peers"
	case KindBootstrap:
		return "bootstrap"
	case KindProvide:
		return "provide"
	default:
		return "unknown"
	}
}

// QueryState 查询状态
type QueryState int

const (
	// StateInProgress 进行中
	StateInProgress QueryState = iota
	// StateCompleted 已完成
	StateCompleted
	// StateFailed 失败
	StateFailed
)

// String 返回状态名称
func (s QueryState) String() string {
	switch s {
	case StateInProgress:
		return "in_progress"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Query 一次查询
type Query struct {
	ID     string
	Kind   QueryKind
	Target types.NodeID
	State  QueryState
	Err    error
	// Peers 查询得到的节点，按距离升序，不含本地节点
	Peers []PeerRecord
	// Remaining 引导查询剩余的查找数
	Remaining int
	Started   time.Time
	Duration  time.Duration
}

// NewQuery 创建查询
func NewQuery(kind QueryKind, target types.NodeID, now time.Time) *Query {
	return &Query{ID: uuid.NewString(), Kind: kind, Target: target, State: StateInProgress, Started: now}
}

// Event 转换为进度事件
func (q *Query) Event() types.EvtQueryProgressed {
	return types.EvtQueryProgressed{
		QueryID:   q.ID,
		Kind:      q.Kind.String(),
		Target:    q.Target,
		State:     q.State.String(),
		Remaining: q.Remaining,
		Peers:     len(q.Peers),
		Err:       q.Err,
	}
}

func (q *Query) finish(err error, now time.Time) {
	q.Duration = now.Sub(q.Started)
	if err != nil {
		q.State = StateFailed
		q.Err = err
		return
	}
	q.State = StateCompleted
}

// run 在 QueryTimeout 内执行 fn 并记录结果
func (d *DHT) run(ctx context.Context, q *Query, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.QueryTimeout)
	defer cancel()

	err := fn(ctx)
	if err != nil && expired(ctx) {
		err = NewDHTError(q.Kind.String(), ErrQueryTimeout, q.Target.ShortString())
	}
	q.finish(err, d.clock.Now())
	d.metrics.RecordQuery(q.Kind.String(), err, q.Duration)

	if err != nil {
		logger.Debug("查询失败", "kind", q.Kind.String(), "target", q.Target.ShortString(), "error", err)
	} else {
		logger.Debug("查询完成", "kind", q.Kind.String(), "target", q.Target.ShortString(), "peers", len(q.Peers))
	}
}

// expired 上下文是否已过期；流的读写截止时间可能先于 ctx 触发
func expired(ctx context.Context) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	deadline, ok := ctx.Deadline()
	return ok && !time.Now().Before(deadline)
}

// ============================================================================
//                              迭代查找
// ============================================================================

type lookupPeer struct {
	rec       PeerRecord
	queried   bool
	responded bool
	failed    bool
}

// lookup 迭代查找距 target 最近的节点
//
// 每轮取最近 K 个候选中尚未查询的至多 Alpha 个并发请求，
// 没有可查询的候选时结束。上下文取消时返回已有结果和错误。
func (d *DHT) lookup(ctx context.Context, target types.NodeID) ([]PeerRecord, error) {
	seeds := d.rt.Closest(target, d.cfg.BucketSize)
	if len(seeds) == 0 {
		return nil, ErrNoNearbyPeers
	}

	var mu sync.Mutex
	peers := make(map[types.NodeID]*lookupPeer, len(seeds))
	for _, s := range seeds {
		peers[s.ID] = &lookupPeer{rec: s}
	}

	var lastErr error
	for {
		if err := ctx.Err(); err != nil {
			return d.lookupResult(peers, target), err
		}

		batch := d.nextBatch(peers, target)
		if len(batch) == 0 {
			break
		}

		var g errgroup.Group
		g.SetLimit(d.cfg.Alpha)
		for _, p := range batch {
			p := p
			p.queried = true
			ai := p.rec.AddrInfo()
			g.Go(func() error {
				closer, err := d.findNode(ctx, ai, target)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					p.failed = true
					lastErr = err
					return nil
				}
				p.responded = true
				p.rec.LastSeen = d.clock.Now()
				for _, c := range closer {
					if c.ID == d.self {
						continue
					}
					if existing, ok := peers[c.ID]; ok {
						existing.rec.Addrs = types.MergeAddrs(existing.rec.Addrs, c.Addrs)
						continue
					}
					peers[c.ID] = &lookupPeer{rec: c}
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	result := d.lookupResult(peers, target)
	if len(result) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return result, nil
}

// nextBatch 最近 K 个未失败候选中尚未查询的节点，至多 Alpha 个
func (d *DHT) nextBatch(peers map[types.NodeID]*lookupPeer, target types.NodeID) []*lookupPeer {
	live := d.sortedLive(peers, target)
	if len(live) > d.cfg.BucketSize {
		live = live[:d.cfg.BucketSize]
	}
	var batch []*lookupPeer
	for _, p := range live {
		if !p.queried {
			batch = append(batch, p)
			if len(batch) == d.cfg.Alpha {
				break
			}
		}
	}
	return batch
}

func (d *DHT) sortedLive(peers map[types.NodeID]*lookupPeer, target types.NodeID) []*lookupPeer {
	live := make([]*lookupPeer, 0, len(peers))
	for _, p := range peers {
		if !p.failed {
			live = append(live, p)
		}
	}
	sortLookupPeers(live, target)
	return live
}

func (d *DHT) lookupResult(peers map[types.NodeID]*lookupPeer, target types.NodeID) []PeerRecord {
	live := d.sortedLive(peers, target)
	if len(live) > d.cfg.BucketSize {
		live = live[:d.cfg.BucketSize]
	}
	out := make([]PeerRecord, len(live))
	for i, p := range live {
		out[i] = p.rec.clone()
	}
	return out
}

func (d *DHT) findNode(ctx context.Context, ai types.AddrInfo, target types.NodeID) ([]PeerRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()

	req := d.msgr.request(MessageTypeFindNode)
	req.Target = target
	resp, err := d.msgr.send(ctx, ai, req)
	if err != nil {
		return nil, err
	}
	return toPeerRecords(resp.CloserPeers, time.Time{}), nil
}

// ============================================================================
//                              对外查询
// ============================================================================

// FindClosestPeers 执行 ClosestPeers 查询
func (d *DHT) FindClosestPeers(ctx context.Context, target types.NodeID) *Query {
	q := NewQuery(KindClosestPeers, target, d.clock.Now())
	d.run(ctx, q, func(ctx context.Context) error {
		peers, err := d.lookup(ctx, target)
		q.Peers = peers
		return err
	})
	return q
}

// Bootstrap 刷新所有桶：先查找自身，再对每个已用到的桶下标查找一个随机 ID
//
// 每完成一次查找调用一次 progress，Remaining 递减到 0。
func (d *DHT) Bootstrap(ctx context.Context, progress func(Query)) *Query {
	q := NewQuery(KindBootstrap, d.self, d.clock.Now())

	targets := []types.NodeID{d.self}
	depth := d.rt.DeepestBucket() + 1
	if depth > d.cfg.MaxBootstrapBuckets {
		depth = d.cfg.MaxBootstrapBuckets
	}
	for cpl := 0; cpl < depth; cpl++ {
		targets = append(targets, RandomIDInBucket(d.self, cpl))
	}
	q.Remaining = len(targets)

	d.run(ctx, q, func(ctx context.Context) error {
		var (
			mu        sync.Mutex
			found     = make(map[types.NodeID]PeerRecord)
			succeeded int
			firstErr  error
		)

		var g errgroup.Group
		g.SetLimit(2)
		for _, target := range targets {
			target := target
			g.Go(func() error {
				peers, err := d.lookup(ctx, target)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
				} else {
					succeeded++
				}
				for _, p := range peers {
					found[p.ID] = p
				}
				q.Remaining--
				if progress != nil {
					snap := *q
					snap.Peers = nil
					progress(snap)
				}
				return nil
			})
		}
		_ = g.Wait()

		q.Peers = make([]PeerRecord, 0, len(found))
		for _, p := range found {
			q.Peers = append(q.Peers, p)
		}
		SortByDistance(q.Peers, d.self)

		if succeeded == 0 {
			return firstErr
		}
		return nil
	})
	return q
}

// Provide 在距 key 最近的节点上发布本节点为 provider
//
// 至少一个节点接受即视为成功。
func (d *DHT) Provide(ctx context.Context, key types.NodeID) *Query {
	q := NewQuery(KindProvide, key, d.clock.Now())
	d.run(ctx, q, func(ctx context.Context) error {
		d.providers.Add(key, PeerRecord{ID: d.self, Addrs: d.host.Addrs(), LastSeen: d.clock.Now()}, 0)

		peers, err := d.lookup(ctx, key)
		if err != nil {
			return NewDHTError("provide", ErrProvideFailed, err.Error())
		}

		var (
			mu       sync.Mutex
			accepted []PeerRecord
			lastErr  error
		)
		var g errgroup.Group
		g.SetLimit(d.cfg.Alpha)
		for _, p := range peers {
			p := p
			g.Go(func() error {
				err := d.addProvider(ctx, p.AddrInfo(), key)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					lastErr = err
					return nil
				}
				accepted = append(accepted, p)
				return nil
			})
		}
		_ = g.Wait()

		SortByDistance(accepted, key)
		q.Peers = accepted
		if len(accepted) == 0 {
			msg := "no peer accepted the record"
			if lastErr != nil {
				msg = lastErr.Error()
			}
			return NewDHTError("provide", ErrProvideFailed, msg)
		}
		return nil
	})
	return q
}

func (d *DHT) addProvider(ctx context.Context, ai types.AddrInfo, key types.NodeID) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()

	req := d.msgr.request(MessageTypeAddProvider)
	req.Key = key
	req.TTL = uint32(d.cfg.ProviderTTL / time.Second)
	resp, err := d.msgr.send(ctx, ai, req)
	if err != nil {
		return err
	}
	if !resp.Success {
		return NewDHTError("add_provider", ErrRemote, resp.Error)
	}
	return nil
}

// FindProviders 查询 key 的 provider，合并本地记录与距 key 最近节点上的记录
func (d *DHT) FindProviders(ctx context.Context, key types.NodeID) ([]PeerRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.QueryTimeout)
	defer cancel()
	start := d.clock.Now()

	var mu sync.Mutex
	found := make(map[types.NodeID]PeerRecord)
	for _, p := range d.providers.Get(key) {
		found[p.ID] = p
	}

	peers, err := d.lookup(ctx, key)
	if err == nil {
		var g errgroup.Group
		g.SetLimit(d.cfg.Alpha)
		for _, p := range peers {
			p := p
			g.Go(func() error {
				provs, err := d.getProviders(ctx, p.AddrInfo(), key)
				if err != nil {
					return nil
				}
				mu.Lock()
				for _, pr := range provs {
					if existing, ok := found[pr.ID]; ok {
						pr.Addrs = types.MergeAddrs(existing.Addrs, pr.Addrs)
					}
					found[pr.ID] = pr
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	out := make([]PeerRecord, 0, len(found))
	for _, p := range found {
		out = append(out, p)
	}
	SortByDistance(out, key)
	if len(out) == 0 && err != nil {
		d.metrics.RecordQuery("find_providers", err, d.clock.Since(start))
		return nil, err
	}
	d.metrics.RecordQuery("find_providers", nil, d.clock.Since(start))
	return out, nil
}

func (d *DHT) getProviders(ctx context.Context, ai types.AddrInfo, key types.NodeID) ([]PeerRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()

	req := d.msgr.request(MessageTypeGetProviders)
	req.Key = key
	resp, err := d.msgr.send(ctx, ai, req)
	if err != nil {
		return nil, err
	}
	return toPeerRecords(resp.Providers, time.Time{}), nil
}

// Ping 通过 DHT 协议检查节点连通性
func (d *DHT) Ping(ctx context.Context, ai types.AddrInfo) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()

	resp, err := d.msgr.send(ctx, ai, d.msgr.request(MessageTypePing))
	if err != nil {
		return err
	}
	if !resp.Success {
		return NewDHTError("ping", ErrInvalidResponse, "ping not acknowledged")
	}
	return nil
}

func sortLookupPeers(ps []*lookupPeer, target types.NodeID) {
	sort.Slice(ps, func(i, j int) bool {
		return closer(ps[i].rec.ID, ps[j].rec.ID, target)
	})
}
