package types

import "fmt"

// Mode 节点运行模式
type Mode int

const (
	// ModeClient 普通节点：通过引导节点加入网络，同样应答查询
	ModeClient Mode = iota
	// ModeServer 服务端（引导节点）：监听固定端口，不主动拨号加入
	ModeServer
)

// String 返回模式名
func (m Mode) String() string {
	switch m {
	case ModeServer:
		return "server"
	case ModeClient:
		return "client"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode 解析模式字符串
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "client":
		return ModeClient, nil
	case "server", "bootstrap":
		return ModeServer, nil
	}
	return ModeClient, fmt.Errorf("types: unknown mode %q", s)
}

// Direction 连接方向
type Direction int

const (
	// DirOutbound 本地发起
	DirOutbound Direction = iota
	// DirInbound 远端发起
	DirInbound
)

// String 返回方向名
func (d Direction) String() string {
	if d == DirInbound {
		return "inbound"
	}
	return "outbound"
}
