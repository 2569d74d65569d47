package bootstrap

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-kadnode/config"
	"github.com/dep2p/go-kadnode/pkg/types"
)

// Source 引导配置来源
type Source interface {
	Load(ctx context.Context) (Config, error)
}

// StaticSource 固定配置
type StaticSource struct {
	Config Config
}

// Load 返回固定配置
func (s StaticSource) Load(context.Context) (Config, error) {
	if s.Config.PeerID.IsEmpty() || s.Config.Addr == nil {
		return Config{}, ErrNoBootstrapPeers
	}
	return s.Config, nil
}

// FileSource 地址来自配置，ID 来自引导节点写出的文件
type FileSource struct {
	Path string
	Addr ma.Multiaddr

	// Wait 文件尚不存在时的最长等待时间，0 表示不等待
	Wait time.Duration
	// PollInterval 等待期间的检查间隔
	PollInterval time.Duration
	// Clock 为 nil 时使用系统时钟
	Clock clock.Clock
}

// Load 读取 ID 文件
func (s FileSource) Load(ctx context.Context) (Config, error) {
	if s.Addr == nil {
		return Config{}, ErrNoBootstrapPeers
	}

	clk := s.Clock
	if clk == nil {
		clk = clock.New()
	}
	var deadline time.Time
	if s.Wait > 0 {
		deadline = clk.Now().Add(s.Wait)
	}
	poll := s.PollInterval
	if poll <= 0 {
		poll = 200 * time.Millisecond
	}

	for {
		id, err := ReadIDFile(s.Path)
		if err == nil {
			return Config{PeerID: id, Addr: s.Addr}, nil
		}
		if !errors.Is(err, fs.ErrNotExist) || deadline.IsZero() || !clk.Now().Before(deadline) {
			return Config{}, err
		}

		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		case <-clk.After(poll):
		}
	}
}

// FromUnified 根据统一配置选择来源
//
// Addr 自带 /p2p/<id> 时直接使用；否则 PeerID 优先于 IDFile。server 模式不需要引导节点，返回 nil。
func FromUnified(cfg *config.Config, clk clock.Clock) (Source, error) {
	if cfg.Discovery.IsServer() {
		return nil, nil
	}
	bc := cfg.Discovery.Bootstrap

	if strings.Contains(bc.Addr, "/p2p/") {
		ai, err := types.ParseAddrInfo(bc.Addr)
		if err != nil {
			return nil, NewBootstrapError("config", "", ErrInvalidAddr, err.Error())
		}
		return StaticSource{Config: Config{PeerID: ai.ID, Addr: ai.Addrs[0]}}, nil
	}

	addr, err := ma.NewMultiaddr(bc.Addr)
	if err != nil {
		return nil, NewBootstrapError("config", "", ErrInvalidAddr, bc.Addr)
	}

	if bc.PeerID != "" {
		id, err := types.ParseNodeID(bc.PeerID)
		if err != nil {
			return nil, NewBootstrapError("config", "", ErrMalformedBootstrapID, bc.PeerID)
		}
		return StaticSource{Config: Config{PeerID: id, Addr: addr}}, nil
	}
	return FileSource{Path: bc.IDFile, Addr: addr, Clock: clk}, nil
}
