package host

import (
	"errors"
	"net"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-kadnode/pkg/types"
)

// Listen 在给定地址上监听，每个实际监听地址发布一次 EvtNewListenAddr
func (h *Host) Listen(addrs ...ma.Multiaddr) error {
	for _, a := range addrs {
		l, err := h.tcp.Listen(a)
		if err != nil {
			return err
		}

		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			_ = l.Close()
			return ErrClosed
		}
		h.listeners = append(h.listeners, l)
		resolved := resolveListenAddr(l.Multiaddr())
		h.addrs = types.MergeAddrs(h.addrs, resolved)
		h.mu.Unlock()

		logger.Info("开始监听", "addr", l.Multiaddr().String())
		for _, r := range resolved {
			h.emit(types.EvtNewListenAddr{Addr: r})
		}

		h.wg.Add(1)
		go h.acceptLoop(l)
	}
	return nil
}

// Addrs 对外公告地址（未指定地址已展开为本机接口地址）
func (h *Host) Addrs() []ma.Multiaddr {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]ma.Multiaddr(nil), h.addrs...)
}

// ListenAddrs 实际监听地址
func (h *Host) ListenAddrs() []ma.Multiaddr {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]ma.Multiaddr, 0, len(h.listeners))
	for _, l := range h.listeners {
		out = append(out, l.Multiaddr())
	}
	return out
}

// resolveListenAddr 将 0.0.0.0 / :: 展开为本机接口地址
func resolveListenAddr(addr ma.Multiaddr) []ma.Multiaddr {
	if !manet.IsIPUnspecified(addr) {
		return []ma.Multiaddr{addr}
	}
	ifaces, err := manet.InterfaceMultiaddrs()
	if err != nil {
		logger.Warn("获取接口地址失败", "error", err)
		return []ma.Multiaddr{addr}
	}
	resolved, err := manet.ResolveUnspecifiedAddresses([]ma.Multiaddr{addr}, ifaces)
	if err != nil || len(resolved) == 0 {
		return []ma.Multiaddr{addr}
	}
	// 链路本地地址对端通常无法拨通
	out := make([]ma.Multiaddr, 0, len(resolved))
	for _, r := range resolved {
		if !manet.IsIP6LinkLocal(r) {
			out = append(out, r)
		}
	}
	return out
}

func (h *Host) acceptLoop(l manet.Listener) {
	defer h.wg.Done()
	for {
		raw, err := l.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && h.ctx.Err() == nil {
				logger.Warn("接受连接失败", "error", err)
			}
			return
		}
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.handleInbound(raw)
		}()
	}
}
