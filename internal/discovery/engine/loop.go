package engine

import (
	"context"

	"github.com/dep2p/go-kadnode/internal/discovery/dht"
	"github.com/dep2p/go-kadnode/pkg/types"
)

// ============================================================================
//                              循环消息
// ============================================================================

// dialDone 一轮引导拨号结束
type dialDone struct {
	err error
}

// queryDone 查询结束
type queryDone struct {
	q *dht.Query
	// external API 调用方发起的查询，不占用 inflight
	external bool
}

// bootstrapProgress 引导查询完成了其中一次查找
type bootstrapProgress struct {
	q dht.Query
}

// probeReason 探测原因
type probeReason int

const (
	probeClosed probeReason = iota
	probePingFailures
	probeEviction
)

func (r probeReason) String() string {
	switch r {
	case probeClosed:
		return "connection_closed"
	case probePingFailures:
		return "ping_failures"
	case probeEviction:
		return "bucket_full"
	default:
		return "unknown"
	}
}

// probeDone 探测结束
type probeDone struct {
	peer     types.NodeID
	reason   probeReason
	newcomer dht.PeerRecord
	err      error
}

// ============================================================================
//                              事件循环
// ============================================================================

func (e *Engine) loop() {
	defer e.wg.Done()

	ticker := e.clock.Ticker(e.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case evt, ok := <-e.sub.Out():
			if !ok {
				return
			}
			e.handleEvent(evt)
		case msg := <-e.inbox:
			e.handleMsg(msg)
		case <-ticker.C:
			e.refresh()
		case <-e.refreshCh:
			e.refresh()
		}
	}
}

func (e *Engine) handleEvent(evt types.Event) {
	switch evt := evt.(type) {
	case types.EvtConnectionEstablished:
		e.onConnected(evt)
	case types.EvtConnectionClosed:
		e.onClosed(evt)
	case types.EvtPing:
		e.onPing(evt)
	case types.EvtNewListenAddr:
		logger.Debug("新的监听地址", "addr", evt.Addr.String())
	case types.EvtRoutingUpdated, types.EvtQueryProgressed:
		// 引擎自身的输出
	default:
		logger.Warn("未知事件", "event", evt.Type())
	}
}

func (e *Engine) handleMsg(msg any) {
	switch m := msg.(type) {
	case dialDone:
		e.onDialDone(m)
	case queryDone:
		e.onQueryDone(m.q, m.external)
	case bootstrapProgress:
		e.emit(m.q.Event())
	case probeDone:
		e.onProbeDone(m)
	}
}

// ============================================================================
//                              连接事件
// ============================================================================

func (e *Engine) onConnected(evt types.EvtConnectionEstablished) {
	rec := dht.PeerRecord{ID: evt.PeerID, Addrs: evt.ListenAddrs, LastSeen: evt.At}

	if e.State() == StateJoining {
		if boot := e.BootstrapPeer(); boot != nil && boot.PeerID == evt.PeerID {
			rec.Addrs = types.MergeAddrs(rec.Addrs, boot.AddrInfo().Addrs)
			e.join(rec)
			return
		}
		e.insert(rec)
		return
	}

	e.insert(rec)
	e.queryClosest(evt.PeerID, false)
}

func (e *Engine) onClosed(evt types.EvtConnectionClosed) {
	rec, ok := e.rt.Get(evt.PeerID)
	if !ok {
		return
	}
	logger.Debug("连接关闭，等待探测", "peer", evt.PeerID.ShortString(), "cause", evt.Cause)
	e.probe(rec, probeClosed, dht.PeerRecord{})
}

func (e *Engine) onPing(evt types.EvtPing) {
	if evt.Err == nil {
		e.rt.Touch(evt.PeerID, e.clock.Now())
		return
	}
	n := e.rt.MarkFailed(evt.PeerID)
	if n < e.cfg.FailureThreshold {
		return
	}
	if rec, ok := e.rt.Get(evt.PeerID); ok {
		e.probe(rec, probePingFailures, dht.PeerRecord{})
	}
}

// ============================================================================
//                              加入流程
// ============================================================================

func (e *Engine) onDialDone(m dialDone) {
	e.dialing = false
	if m.err == nil {
		e.mu.Lock()
		e.joinErr = nil
		e.mu.Unlock()
		if e.State() == StateJoining {
			if boot := e.BootstrapPeer(); boot != nil {
				e.join(dht.PeerRecord{ID: boot.PeerID, Addrs: boot.AddrInfo().Addrs})
			}
		}
		return
	}

	e.mu.Lock()
	e.joinErr = m.err
	e.mu.Unlock()
	logger.Error("无法连接引导节点", "error", m.err)

	select {
	case <-e.failed:
	default:
		close(e.failed)
	}
}

// join 插入引导节点并进入 Active
func (e *Engine) join(boot dht.PeerRecord) {
	e.insert(boot)
	if !e.activate() {
		return
	}
	logger.Info("已加入网络", "bootstrap", boot.ID.ShortString(), "self", e.self.ShortString())

	e.startBootstrap()
	e.queryClosest(e.self, true)
}

func (e *Engine) refresh() {
	if e.State() != StateActive {
		if !e.cfg.FailOnUnreachable && !e.dialing && e.JoinErr() != nil {
			logger.Info("重新尝试连接引导节点")
			e.dialing = true
			e.spawn(e.dialBootstrap)
		}
		return
	}

	e.queryClosest(e.self, true)
	if !e.joinComplete {
		e.startBootstrap()
	}
	if e.cfg.EnableProvide && e.joinComplete {
		e.startProvide()
	}
	if e.cfg.PersistRoutingTable {
		e.spawn(func(context.Context) {
			if err := e.router.SaveSnapshot(); err != nil {
				logger.Warn("保存路由表快照失败", "error", err)
			}
		})
	}
}

// ============================================================================
//                              查询结果
// ============================================================================

func (e *Engine) onQueryDone(q *dht.Query, external bool) {
	switch {
	case external:
	case q.Kind == dht.KindClosestPeers:
		delete(e.inflight, q.Target)
	case q.Kind == dht.KindBootstrap:
		e.bootstrapping = false
	case q.Kind == dht.KindProvide:
		e.providing = false
	}

	if q.Kind != dht.KindProvide {
		for _, p := range q.Peers {
			e.insert(p)
		}
	}
	e.emit(q.Event())

	switch {
	case q.Kind == dht.KindBootstrap && q.State == dht.StateCompleted:
		if !e.joinComplete {
			e.joinComplete = true
			logger.Info("引导查询完成", "peers", e.rt.Size())
			if e.cfg.EnableProvide {
				e.startProvide()
			}
		}
	case q.Kind == dht.KindProvide && q.State == dht.StateFailed:
		logger.Warn("provider 广播失败", "error", q.Err)
	case q.State == dht.StateFailed:
		logger.Debug("查询失败", "kind", q.Kind.String(), "target", q.Target.ShortString(), "error", q.Err)
	}
}

// ============================================================================
//                              探测结果
// ============================================================================

func (e *Engine) onProbeDone(m probeDone) {
	delete(e.probing, m.peer)
	alive := m.err == nil

	if m.reason == probeEviction {
		res := e.rt.ResolveEviction(m.peer, alive, m.newcomer)
		e.report(m.newcomer.ID, res)
		return
	}

	if alive {
		e.rt.Touch(m.peer, e.clock.Now())
		return
	}

	logger.Debug("探测失败", "peer", m.peer.ShortString(), "reason", m.reason.String(), "error", m.err)
	bucket := e.rt.BucketFor(m.peer)
	if !e.rt.Remove(m.peer) {
		logger.Debug("保留最近邻节点", "peer", m.peer.ShortString())
		return
	}
	e.metrics.RecordRoutingChange(string(types.RoutingRemoved))
	e.metrics.SetRoutingTableSize(e.rt.Size())
	e.emit(types.EvtRoutingUpdated{PeerID: m.peer, Bucket: bucket, Outcome: types.RoutingRemoved})
}

// ============================================================================
//                              路由表写入
// ============================================================================

// insert 插入节点；桶满时探测候选节点，没有探测器时直接替换
func (e *Engine) insert(rec dht.PeerRecord) {
	res := e.rt.Insert(rec)
	if res.Outcome == dht.OutcomeBucketFull {
		if e.prober == nil {
			res = e.rt.InsertOrEvict(rec)
		} else {
			e.probe(*res.Candidate, probeEviction, rec)
			return
		}
	}
	e.report(rec.ID, res)
}

func (e *Engine) report(id types.NodeID, res dht.InsertResult) {
	var outcome types.RoutingOutcome
	switch res.Outcome {
	case dht.OutcomeAdded:
		outcome = types.RoutingAdded
	case dht.OutcomeUpdated:
		outcome = types.RoutingUpdated
	default:
		return
	}

	evt := types.EvtRoutingUpdated{PeerID: id, Bucket: res.Bucket, Outcome: outcome}
	if res.Evicted != nil {
		evt.Evicted = res.Evicted.ID
		e.metrics.RecordRoutingChange(string(types.RoutingEvicted))
		e.emit(types.EvtRoutingUpdated{PeerID: res.Evicted.ID, Bucket: res.Bucket, Outcome: types.RoutingEvicted})
	}
	if outcome == types.RoutingAdded {
		logger.Debug("路由表新增节点", "peer", id.ShortString(), "bucket", res.Bucket, "size", e.rt.Size())
	}
	e.metrics.RecordRoutingChange(string(outcome))
	e.metrics.SetRoutingTableSize(e.rt.Size())
	e.emit(evt)
}
