package engine

import (
	"context"
	"errors"

	"github.com/dep2p/go-kadnode/internal/discovery/dht"
	"github.com/dep2p/go-kadnode/pkg/types"
)

// errNoProber 未配置探测器时视为对端不可达
var errNoProber = errors.New("engine: no prober configured")

// dialBootstrap 以指数退避拨号引导节点
func (e *Engine) dialBootstrap(ctx context.Context) {
	boot := e.BootstrapPeer()
	if boot == nil {
		e.post(dialDone{err: ErrNoBootstrap})
		return
	}
	ai := boot.AddrInfo()
	addr := boot.String()

	backoff := e.cfg.InitialBackoff
	attempts := max(e.cfg.MaxDialAttempts, 1)
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		err := e.dialer.Connect(ctx, ai)
		if err == nil {
			logger.Info("已连接引导节点", "addr", addr, "attempt", attempt)
			e.post(dialDone{})
			return
		}
		if ctx.Err() != nil {
			return
		}
		lastErr = &EngineError{Op: "dial", Addr: addr, Err: ErrDialFailed, Cause: err}
		logger.Warn("拨号引导节点失败", "addr", addr, "attempt", attempt, "max", attempts, "error", err)

		if attempt == attempts {
			break
		}
		t := e.clock.Timer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		backoff *= 2
		if e.cfg.MaxBackoff > 0 && backoff > e.cfg.MaxBackoff {
			backoff = e.cfg.MaxBackoff
		}
	}

	e.post(dialDone{err: &EngineError{Op: "bootstrap", Addr: addr, Err: ErrBootstrapUnreachable, Cause: lastErr}})
}

// queryClosest 发起 ClosestPeers 查询
//
// 同一目标同时只有一个查询；force 为 false 时还会跳过一个刷新周期内查过的目标。
func (e *Engine) queryClosest(target types.NodeID, force bool) {
	if e.inflight[target] {
		return
	}
	if !force && e.recent.Contains(target) {
		return
	}
	e.inflight[target] = true
	e.recent.Add(target, struct{}{})

	e.emit(types.EvtQueryProgressed{
		Kind:   dht.KindClosestPeers.String(),
		Target: target,
		State:  dht.StateInProgress.String(),
	})
	e.spawn(func(ctx context.Context) {
		e.post(queryDone{q: e.router.FindClosestPeers(ctx, target)})
	})
}

func (e *Engine) startBootstrap() {
	if e.bootstrapping {
		return
	}
	e.bootstrapping = true
	e.spawn(func(ctx context.Context) {
		q := e.router.Bootstrap(ctx, func(q dht.Query) {
			e.post(bootstrapProgress{q: q})
		})
		e.post(queryDone{q: q})
	})
}

func (e *Engine) startProvide() {
	if e.providing {
		return
	}
	e.providing = true
	e.spawn(func(ctx context.Context) {
		e.post(queryDone{q: e.router.Provide(ctx, e.self)})
	})
}

// probe 异步探测节点存活；未配置探测器时直接按失败处理
func (e *Engine) probe(rec dht.PeerRecord, reason probeReason, newcomer dht.PeerRecord) {
	if e.probing[rec.ID] {
		return
	}
	if e.prober == nil {
		e.onProbeDone(probeDone{peer: rec.ID, reason: reason, newcomer: newcomer, err: errNoProber})
		return
	}
	e.probing[rec.ID] = true

	ai := rec.AddrInfo()
	e.spawn(func(ctx context.Context) {
		pctx, cancel := context.WithTimeout(ctx, e.cfg.ProbeTimeout)
		defer cancel()
		err := e.prober.Probe(pctx, ai)
		e.post(probeDone{peer: ai.ID, reason: reason, newcomer: newcomer, err: err})
	})
}
