package dht

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-kadnode/pkg/types"
)

// ============================================================================
//                              节点记录
// ============================================================================

// PeerRecord 路由表中的一个节点
type PeerRecord struct {
	ID        types.NodeID
	Addrs     []ma.Multiaddr
	LastSeen  time.Time
	FailCount int
}

// AddrInfo 转换为拨号信息
func (r PeerRecord) AddrInfo() types.AddrInfo {
	return types.AddrInfo{ID: r.ID, Addrs: r.Addrs}
}

func (r *PeerRecord) clone() PeerRecord {
	out := *r
	out.Addrs = append([]ma.Multiaddr(nil), r.Addrs...)
	return out
}

// ============================================================================
//                              插入结果
// ============================================================================

// Outcome 插入结果类型
type Outcome int

const (
	// OutcomeAdded 新增
	OutcomeAdded Outcome = iota
	// OutcomeUpdated 已存在，刷新 LastSeen
	OutcomeUpdated
	// OutcomeBucketFull 桶满，需要对 Candidate 做新鲜度探测
	OutcomeBucketFull
	// OutcomeRejected 拒绝（本地 ID，或候选节点仍然存活）
	OutcomeRejected
)

// String 返回结果名称
func (o Outcome) String() string {
	switch o {
	case OutcomeAdded:
		return "added"
	case OutcomeUpdated:
		return "updated"
	case OutcomeBucketFull:
		return "bucket_full"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// InsertResult 插入结果
type InsertResult struct {
	Outcome Outcome
	Bucket  int
	// Candidate 桶满时最久未见的节点
	Candidate *PeerRecord
	// Evicted 被替换掉的节点
	Evicted *PeerRecord
}

// ============================================================================
//                              K 桶
// ============================================================================

// kbucket 单个 K 桶，entries 按最近活跃排序，首个元素最新
type kbucket struct {
	mu           sync.Mutex
	entries      []*PeerRecord
	replacements []*PeerRecord
	n            atomic.Int32
}

func (b *kbucket) indexOf(id types.NodeID) int {
	for i, e := range b.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (b *kbucket) moveToFront(i int) {
	e := b.entries[i]
	copy(b.entries[1:i+1], b.entries[:i])
	b.entries[0] = e
}

func (b *kbucket) pushFront(rec *PeerRecord) {
	b.entries = append(b.entries, nil)
	copy(b.entries[1:], b.entries)
	b.entries[0] = rec
	b.n.Store(int32(len(b.entries)))
}

func (b *kbucket) removeAt(i int) *PeerRecord {
	e := b.entries[i]
	b.entries = append(b.entries[:i], b.entries[i+1:]...)
	b.n.Store(int32(len(b.entries)))
	return e
}

func (b *kbucket) addReplacement(rec *PeerRecord, limit int) {
	for i, r := range b.replacements {
		if r.ID == rec.ID {
			b.replacements = append(b.replacements[:i], b.replacements[i+1:]...)
			break
		}
	}
	b.replacements = append([]*PeerRecord{rec}, b.replacements...)
	if len(b.replacements) > limit {
		b.replacements = b.replacements[:limit]
	}
}

func (b *kbucket) takeReplacement(id types.NodeID) *PeerRecord {
	for i, r := range b.replacements {
		if r.ID == id {
			b.replacements = append(b.replacements[:i], b.replacements[i+1:]...)
			return r
		}
	}
	return nil
}

// ============================================================================
//                              路由表
// ============================================================================

// RoutingTable Kademlia 路由表
//
// 每个桶一把锁，不存在全局锁。本地 ID 永远不会出现在表中。
type RoutingTable struct {
	local        types.NodeID
	k            int
	minCloseFill int
	clock        clock.Clock

	buckets [KeySize]*kbucket
	size    atomic.Int64
}

// NewRoutingTable 创建路由表
func NewRoutingTable(local types.NodeID, k, minCloseFill int, clk clock.Clock) *RoutingTable {
	if clk == nil {
		clk = clock.New()
	}
	rt := &RoutingTable{local: local, k: k, minCloseFill: minCloseFill, clock: clk}
	for i := range rt.buckets {
		rt.buckets[i] = &kbucket{}
	}
	return rt
}

// Local 本地 ID
func (rt *RoutingTable) Local() types.NodeID { return rt.local }

// BucketSize 桶容量 K
func (rt *RoutingTable) BucketSize() int { return rt.k }

// BucketFor 返回 id 所在桶下标
func (rt *RoutingTable) BucketFor(id types.NodeID) int {
	return BucketIndex(rt.local, id)
}

// Insert 插入或刷新节点
//
// 桶满时不改动桶成员，新节点进入替换缓存，返回最久未见的节点作为驱逐候选。
func (rt *RoutingTable) Insert(rec PeerRecord) InsertResult {
	if rec.ID == rt.local || rec.ID.IsEmpty() {
		return InsertResult{Outcome: OutcomeRejected}
	}
	idx := rt.BucketFor(rec.ID)
	b := rt.buckets[idx]
	now := rt.now(rec.LastSeen)

	b.mu.Lock()
	defer b.mu.Unlock()

	if i := b.indexOf(rec.ID); i >= 0 {
		e := b.entries[i]
		e.Addrs = types.MergeAddrs(rec.Addrs, e.Addrs)
		if now.After(e.LastSeen) {
			e.LastSeen = now
		}
		e.FailCount = 0
		b.moveToFront(i)
		return InsertResult{Outcome: OutcomeUpdated, Bucket: idx}
	}

	entry := rec.clone()
	entry.LastSeen = now
	entry.FailCount = 0

	if len(b.entries) < rt.k {
		b.takeReplacement(rec.ID)
		b.pushFront(&entry)
		rt.size.Add(1)
		return InsertResult{Outcome: OutcomeAdded, Bucket: idx}
	}

	b.addReplacement(&entry, rt.k)
	candidate := b.entries[len(b.entries)-1].clone()
	return InsertResult{Outcome: OutcomeBucketFull, Bucket: idx, Candidate: &candidate}
}

// ResolveEviction 根据对驱逐候选的探测结果完成插入
//
// alive 为 true 时保留候选并刷新其 LastSeen，拒绝新节点；
// 否则移除候选并加入新节点。
func (rt *RoutingTable) ResolveEviction(candidate types.NodeID, alive bool, rec PeerRecord) InsertResult {
	if rec.ID == rt.local || rec.ID.IsEmpty() {
		return InsertResult{Outcome: OutcomeRejected}
	}
	idx := rt.BucketFor(rec.ID)
	b := rt.buckets[idx]
	now := rt.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	ci := b.indexOf(candidate)
	if alive {
		if ci >= 0 {
			b.entries[ci].LastSeen = now
			b.entries[ci].FailCount = 0
			b.moveToFront(ci)
		}
		return InsertResult{Outcome: OutcomeRejected, Bucket: idx}
	}

	var evicted *PeerRecord
	if ci >= 0 && BucketIndex(rt.local, candidate) == idx {
		e := b.removeAt(ci).clone()
		evicted = &e
		rt.size.Add(-1)
	}

	if i := b.indexOf(rec.ID); i >= 0 {
		b.entries[i].LastSeen = now
		b.moveToFront(i)
		return InsertResult{Outcome: OutcomeUpdated, Bucket: idx, Evicted: evicted}
	}
	if len(b.entries) >= rt.k {
		return InsertResult{Outcome: OutcomeRejected, Bucket: idx, Evicted: evicted}
	}

	b.takeReplacement(rec.ID)
	entry := rec.clone()
	entry.LastSeen = now
	entry.FailCount = 0
	b.pushFront(&entry)
	rt.size.Add(1)
	return InsertResult{Outcome: OutcomeAdded, Bucket: idx, Evicted: evicted}
}

// InsertOrEvict 无探测能力时的插入策略：桶满则直接替换最久未见的节点
func (rt *RoutingTable) InsertOrEvict(rec PeerRecord) InsertResult {
	res := rt.Insert(rec)
	if res.Outcome != OutcomeBucketFull {
		return res
	}
	return rt.ResolveEviction(res.Candidate.ID, false, rec)
}

// Remove 移除节点
//
// 有替换缓存时用最新的替换节点补位。最近邻桶在没有替换节点时
// 不会被删到 minCloseFill 以下，此时返回 false。
func (rt *RoutingTable) Remove(id types.NodeID) bool {
	idx := rt.BucketFor(id)
	b := rt.buckets[idx]

	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.indexOf(id)
	if i < 0 {
		b.takeReplacement(id)
		return false
	}

	if len(b.replacements) > 0 {
		b.removeAt(i)
		next := b.replacements[0]
		b.replacements = b.replacements[1:]
		b.pushFront(next)
		return true
	}

	if idx == rt.closestNonEmpty() && len(b.entries) <= rt.minCloseFill {
		return false
	}

	b.removeAt(i)
	rt.size.Add(-1)
	return true
}

// closestNonEmpty 共同前缀最长的非空桶下标，没有时返回 -1
func (rt *RoutingTable) closestNonEmpty() int {
	for i := KeySize - 1; i >= 0; i-- {
		if rt.buckets[i].n.Load() > 0 {
			return i
		}
	}
	return -1
}

// Touch 刷新节点的 LastSeen
func (rt *RoutingTable) Touch(id types.NodeID, at time.Time) bool {
	b := rt.buckets[rt.BucketFor(id)]
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.indexOf(id)
	if i < 0 {
		return false
	}
	if at.After(b.entries[i].LastSeen) {
		b.entries[i].LastSeen = at
	}
	b.entries[i].FailCount = 0
	b.moveToFront(i)
	return true
}

// MarkFailed 递增失败计数，返回当前值；节点不存在时返回 0
func (rt *RoutingTable) MarkFailed(id types.NodeID) int {
	b := rt.buckets[rt.BucketFor(id)]
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.indexOf(id)
	if i < 0 {
		return 0
	}
	b.entries[i].FailCount++
	return b.entries[i].FailCount
}

// Get 查找节点
func (rt *RoutingTable) Get(id types.NodeID) (PeerRecord, bool) {
	b := rt.buckets[rt.BucketFor(id)]
	b.mu.Lock()
	defer b.mu.Unlock()

	if i := b.indexOf(id); i >= 0 {
		return b.entries[i].clone(), true
	}
	return PeerRecord{}, false
}

// Closest 返回距 target 最近的至多 count 个节点
func (rt *RoutingTable) Closest(target types.NodeID, count int) []PeerRecord {
	if count <= 0 {
		return nil
	}
	all := rt.Peers()
	SortByDistance(all, target)
	if len(all) > count {
		all = all[:count]
	}
	return all
}

// Peers 返回所有节点的副本
func (rt *RoutingTable) Peers() []PeerRecord {
	out := make([]PeerRecord, 0, rt.Size())
	for _, b := range rt.buckets {
		if b.n.Load() == 0 {
			continue
		}
		b.mu.Lock()
		for _, e := range b.entries {
			out = append(out, e.clone())
		}
		b.mu.Unlock()
	}
	return out
}

// Size 节点总数
func (rt *RoutingTable) Size() int {
	return int(rt.size.Load())
}

// BucketSizes 返回非空桶下标到节点数的映射
func (rt *RoutingTable) BucketSizes() map[int]int {
	out := make(map[int]int)
	for i, b := range rt.buckets {
		if n := b.n.Load(); n > 0 {
			out[i] = int(n)
		}
	}
	return out
}

// DeepestBucket 最大的非空桶下标
func (rt *RoutingTable) DeepestBucket() int {
	return rt.closestNonEmpty()
}

func (rt *RoutingTable) now(seen time.Time) time.Time {
	if seen.IsZero() {
		return rt.clock.Now()
	}
	return seen
}
