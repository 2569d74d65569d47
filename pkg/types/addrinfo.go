package types

import (
	"errors"
	"fmt"
	"strings"

	ma "github.com/multiformats/go-multiaddr"
)

// ErrInvalidAddrInfo 无效的地址信息
var ErrInvalidAddrInfo = errors.New("types: invalid addr info")

// p2pSuffix 完整地址中节点 ID 的分隔符
//
// NodeID 不是 multihash，不能交给 multiaddr 的 /p2p 协议解析，这里按字符串切分。
const p2pSuffix = "/p2p/"

// AddrInfo 节点 ID 与其可拨号地址
type AddrInfo struct {
	ID    NodeID
	Addrs []ma.Multiaddr
}

// String 返回可读表示
func (ai AddrInfo) String() string {
	return fmt.Sprintf("{%s: %v}", ai.ID.ShortString(), ai.Addrs)
}

// HasAddrs 是否有地址
func (ai AddrInfo) HasAddrs() bool {
	return len(ai.Addrs) > 0
}

// FullAddrs 返回带 /p2p/<id> 后缀的地址字符串
func (ai AddrInfo) FullAddrs() []string {
	out := make([]string, 0, len(ai.Addrs))
	for _, a := range ai.Addrs {
		out = append(out, a.String()+p2pSuffix+ai.ID.String())
	}
	return out
}

// ParseAddrInfo 解析 "/ip4/1.2.3.4/tcp/50000/p2p/<NodeID>" 形式的完整地址
func ParseAddrInfo(s string) (AddrInfo, error) {
	s = strings.TrimSpace(s)
	idx := strings.LastIndex(s, p2pSuffix)
	if idx <= 0 {
		return AddrInfo{}, fmt.Errorf("%w: missing %s component in %q", ErrInvalidAddrInfo, p2pSuffix, s)
	}
	id, err := ParseNodeID(s[idx+len(p2pSuffix):])
	if err != nil {
		return AddrInfo{}, fmt.Errorf("%w: %v", ErrInvalidAddrInfo, err)
	}
	addr, err := ma.NewMultiaddr(s[:idx])
	if err != nil {
		return AddrInfo{}, fmt.Errorf("%w: %v", ErrInvalidAddrInfo, err)
	}
	return AddrInfo{ID: id, Addrs: []ma.Multiaddr{addr}}, nil
}

// ParseMultiaddrs 批量解析 multiaddr 字符串
func ParseMultiaddrs(ss []string) ([]ma.Multiaddr, error) {
	out := make([]ma.Multiaddr, 0, len(ss))
	for _, s := range ss {
		a, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, fmt.Errorf("parse multiaddr %q: %w", s, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// MergeAddrs 合并地址列表并去重，保持先出现的顺序
func MergeAddrs(lists ...[]ma.Multiaddr) []ma.Multiaddr {
	seen := make(map[string]struct{})
	var out []ma.Multiaddr
	for _, l := range lists {
		for _, a := range l {
			if a == nil {
				continue
			}
			k := string(a.Bytes())
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}
