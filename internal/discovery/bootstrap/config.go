package bootstrap

import (
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-kadnode/pkg/types"
)

// Config 引导节点，解析后不再变化
type Config struct {
	PeerID types.NodeID
	Addr   ma.Multiaddr
}

// AddrInfo 转换为拨号信息
func (c Config) AddrInfo() types.AddrInfo {
	return types.AddrInfo{ID: c.PeerID, Addrs: []ma.Multiaddr{c.Addr}}
}

// String 返回 /ip4/.../p2p/<id> 形式
func (c Config) String() string {
	return c.AddrInfo().FullAddrs()[0]
}
