package config

import (
	"errors"
	"net"
)

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enable 是否注册 Prometheus 指标
	Enable bool `json:"enable"`

	// ListenAddr /metrics HTTP 地址，为空则不启动 HTTP 服务
	ListenAddr string `json:"listen_addr,omitempty"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Enable: true}
}

// Validate 验证指标配置
func (c MetricsConfig) Validate() error {
	if c.ListenAddr == "" {
		return nil
	}
	if !c.Enable {
		return errors.New("listen_addr requires enable")
	}
	_, _, err := net.SplitHostPort(c.ListenAddr)
	return err
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`

	// FxEvents 输出 fx 依赖注入生命周期事件
	FxEvents bool `json:"fx_events,omitempty"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{Level: "info", Format: "text"}
}

// Validate 验证日志配置
func (c LogConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.New("unknown level " + c.Level)
	}
	switch c.Format {
	case "", "text", "json":
	default:
		return errors.New("unknown format " + c.Format)
	}
	return nil
}
