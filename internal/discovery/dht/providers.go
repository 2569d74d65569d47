package dht

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dep2p/go-kadnode/pkg/types"
)

// maxProvidersPerKey 单个 key 保留的 provider 数
const maxProvidersPerKey = 20

// providerEntry 单条 provider 记录及其过期时间
type providerEntry struct {
	rec     PeerRecord
	expires time.Time
}

// ProviderStore provider 记录存储
//
// 每条记录单独过期；key 本身在最后一次发布后 ttl 内保留，超过 maxKeys 时按 LRU 淘汰。
type ProviderStore struct {
	ttl   time.Duration
	clock clock.Clock

	mu    sync.Mutex
	cache *expirable.LRU[types.NodeID, []providerEntry]
}

// NewProviderStore 创建存储，clk 为 nil 时使用系统时钟
func NewProviderStore(maxKeys int, ttl time.Duration, clk clock.Clock) *ProviderStore {
	if clk == nil {
		clk = clock.New()
	}
	return &ProviderStore{
		ttl:   ttl,
		clock: clk,
		cache: expirable.NewLRU[types.NodeID, []providerEntry](maxKeys, nil, ttl),
	}
}

// Add 添加或刷新 provider；ttl 非正数或超过存储上限时取上限
func (s *ProviderStore) Add(key types.NodeID, provider PeerRecord, ttl time.Duration) {
	if ttl <= 0 || ttl > s.ttl {
		ttl = s.ttl
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	existing, _ := s.cache.Get(key)
	next := make([]providerEntry, 0, len(existing)+1)
	next = append(next, providerEntry{rec: provider.clone(), expires: now.Add(ttl)})
	for _, e := range existing {
		if e.rec.ID != provider.ID && now.Before(e.expires) && len(next) < maxProvidersPerKey {
			next = append(next, e)
		}
	}
	s.cache.Add(key, next)
}

// Get 返回 key 下未过期的 provider 列表
func (s *ProviderStore) Get(key types.NodeID) []PeerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.cache.Get(key)
	if !ok {
		return nil
	}
	now := s.clock.Now()
	var out []PeerRecord
	live := entries[:0:0]
	for _, e := range entries {
		if !now.Before(e.expires) {
			continue
		}
		live = append(live, e)
		out = append(out, e.rec.clone())
	}
	switch {
	case len(live) == 0:
		s.cache.Remove(key)
	case len(live) < len(entries):
		s.cache.Add(key, live)
	}
	return out
}

// Len key 数量
func (s *ProviderStore) Len() int {
	return s.cache.Len()
}
