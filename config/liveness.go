package config

import (
	"errors"
	"time"
)

// LivenessConfig 存活探测配置
type LivenessConfig struct {
	// Interval 对已连接节点的 ping 间隔
	Interval Duration `json:"interval"`

	// Timeout 单次 ping 超时
	Timeout Duration `json:"timeout"`

	// ProbeTimeout 连接关闭后的重连探测超时
	ProbeTimeout Duration `json:"probe_timeout"`

	// FailureThreshold 连续失败多少次后触发探测
	FailureThreshold int `json:"failure_threshold"`
}

// DefaultLivenessConfig 返回默认存活探测配置
func DefaultLivenessConfig() LivenessConfig {
	return LivenessConfig{
		Interval:         Duration(15 * time.Second),
		Timeout:          Duration(5 * time.Second),
		ProbeTimeout:     Duration(10 * time.Second),
		FailureThreshold: 3,
	}
}

// Validate 验证存活探测配置
func (c LivenessConfig) Validate() error {
	if c.Interval <= 0 || c.Timeout <= 0 || c.ProbeTimeout <= 0 {
		return errors.New("intervals and timeouts must be positive")
	}
	if c.FailureThreshold < 1 {
		return errors.New("failure_threshold must be at least 1")
	}
	return nil
}
