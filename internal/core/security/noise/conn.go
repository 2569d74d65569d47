package noise

import (
	"crypto/ed25519"
	"fmt"
	"net"
	"sync"

	"github.com/flynn/noise"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-kadnode/pkg/types"
)

// maxPlaintext 单帧明文上限：帧长 65535 减去 16 字节 AEAD 标签
const maxPlaintext = 65535 - 16

// SecureConn Noise 加密连接
type SecureConn struct {
	net.Conn

	sendCS *noise.CipherState
	recvCS *noise.CipherState

	localPeer   types.NodeID
	remotePeer  types.NodeID
	remoteKey   ed25519.PublicKey
	listenAddrs []ma.Multiaddr

	readMu  sync.Mutex
	writeMu sync.Mutex
	readBuf []byte
}

// LocalPeer 本地节点 ID
func (c *SecureConn) LocalPeer() types.NodeID { return c.localPeer }

// RemotePeer 对端节点 ID
func (c *SecureConn) RemotePeer() types.NodeID { return c.remotePeer }

// RemotePublicKey 对端身份公钥
func (c *SecureConn) RemotePublicKey() ed25519.PublicKey { return c.remoteKey }

// RemoteListenAddrs 对端在握手中声明的监听地址
func (c *SecureConn) RemoteListenAddrs() []ma.Multiaddr { return c.listenAddrs }

// Read 读取并解密
func (c *SecureConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for len(c.readBuf) == 0 {
		frame, err := readFrame(c.Conn)
		if err != nil {
			return 0, err
		}
		plain, err := c.recvCS.Decrypt(nil, nil, frame)
		if err != nil {
			return 0, fmt.Errorf("decrypt: %w", err)
		}
		c.readBuf = plain
	}

	n := copy(p, c.readBuf)
	c.readBuf = c.readBuf[n:]
	return n, nil
}

// Write 加密并写入，超过单帧上限时分片
func (c *SecureConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	written := 0
	for written < len(p) {
		end := written + maxPlaintext
		if end > len(p) {
			end = len(p)
		}
		cipher, err := c.sendCS.Encrypt(nil, nil, p[written:end])
		if err != nil {
			return written, fmt.Errorf("encrypt: %w", err)
		}
		if err := writeFrame(c.Conn, cipher); err != nil {
			return written, err
		}
		written = end
	}
	return written, nil
}
