// Package yamux 提供基于 hashicorp/yamux 的流多路复用
package yamux

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/hashicorp/yamux"
)

// Config 多路复用参数
type Config struct {
	KeepAliveInterval time.Duration
	MaxStreamWindow   uint32
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{KeepAliveInterval: 30 * time.Second, MaxStreamWindow: 1 << 20}
}

func (c Config) yamux() *yamux.Config {
	cfg := yamux.DefaultConfig()
	cfg.AcceptBacklog = 256
	cfg.EnableKeepAlive = true
	if c.KeepAliveInterval > 0 {
		cfg.KeepAliveInterval = c.KeepAliveInterval
	}
	if c.MaxStreamWindow > 0 {
		cfg.MaxStreamWindowSize = c.MaxStreamWindow
	}
	cfg.ConnectionWriteTimeout = 10 * time.Second
	cfg.LogOutput = io.Discard
	return cfg
}

// Session 多路复用会话
type Session struct {
	s *yamux.Session
}

// NewSession 在已加密连接上建立会话，server 决定流 ID 奇偶
func NewSession(conn net.Conn, server bool, cfg Config) (*Session, error) {
	var (
		s   *yamux.Session
		err error
	)
	if server {
		s, err = yamux.Server(conn, cfg.yamux())
	} else {
		s, err = yamux.Client(conn, cfg.yamux())
	}
	if err != nil {
		return nil, err
	}
	return &Session{s: s}, nil
}

// OpenStream 打开新流，ctx 取消时放弃等待
func (m *Session) OpenStream(ctx context.Context) (net.Conn, error) {
	type result struct {
		s   *yamux.Stream
		err error
	}
	ch := make(chan result, 1)
	go func() {
		s, err := m.s.OpenStream()
		ch <- result{s, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return r.s, nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.s != nil {
				_ = r.s.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// AcceptStream 接受对端打开的流
func (m *Session) AcceptStream() (net.Conn, error) {
	return m.s.AcceptStream()
}

// NumStreams 当前流数量
func (m *Session) NumStreams() int {
	return m.s.NumStreams()
}

// CloseChan 会话关闭时关闭
func (m *Session) CloseChan() <-chan struct{} {
	return m.s.CloseChan()
}

// IsClosed 是否已关闭
func (m *Session) IsClosed() bool {
	return m.s.IsClosed()
}

// Close 关闭会话及底层连接
func (m *Session) Close() error {
	return m.s.Close()
}
