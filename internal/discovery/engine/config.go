package engine

import (
	"time"

	"github.com/dep2p/go-kadnode/pkg/types"
)

// Config 引擎配置
type Config struct {
	// Mode server 模式启动即为 Active，不拨号
	Mode types.Mode

	// MaxDialAttempts 引导拨号最大尝试次数
	MaxDialAttempts int
	// InitialBackoff 首次重试等待，之后每次翻倍
	InitialBackoff time.Duration
	// MaxBackoff 重试等待上限
	MaxBackoff time.Duration
	// FailOnUnreachable 为 false 时引导失败后保持 Joining，并在每个刷新周期重新拨号
	FailOnUnreachable bool

	// RefreshInterval 周期刷新间隔
	RefreshInterval time.Duration
	// EnableProvide 加入完成后及每次刷新时发布自身 provider 记录
	EnableProvide bool
	// PersistRoutingTable 每次刷新时保存路由表快照
	PersistRoutingTable bool

	// ProbeTimeout 探测超时
	ProbeTimeout time.Duration
	// FailureThreshold ping 连续失败多少次后触发探测
	FailureThreshold int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Mode:              types.ModeClient,
		MaxDialAttempts:   5,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        8 * time.Second,
		FailOnUnreachable: true,
		RefreshInterval:   30 * time.Second,
		EnableProvide:     true,
		ProbeTimeout:      10 * time.Second,
		FailureThreshold:  3,
	}
}

// State 引擎状态
type State int32

const (
	// StateJoining 尚未与引导节点建立连接
	StateJoining State = iota
	// StateActive 已加入网络
	StateActive
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// withDefaults 用默认值补齐非正数的时间与计数参数
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = d.RefreshInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	return c
}
