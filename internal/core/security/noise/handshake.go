package noise

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/flynn/noise"

	"github.com/dep2p/go-kadnode/internal/core/identity"
	"github.com/dep2p/go-kadnode/pkg/types"
)

// payloadSigPrefix 签名前缀，与 libp2p-noise 相同
const payloadSigPrefix = "noise-libp2p-static-key:"

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// runHandshake 执行 Noise XX 握手
//
// expected 为空时接受任意对端（入站连接）。
func (t *Transport) runHandshake(ctx context.Context, conn net.Conn, initiator bool, expected types.NodeID) (*SecureConn, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, err
		}
		defer conn.SetDeadline(time.Time{})
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     initiator,
		StaticKeypair: t.static,
	})
	if err != nil {
		return nil, fmt.Errorf("create handshake state: %w", err)
	}

	local := t.localPayload()

	var (
		sendCS, recvCS *noise.CipherState
		remote         []byte
	)
	if initiator {
		sendCS, recvCS, remote, err = initiatorRounds(conn, hs, local)
	} else {
		sendCS, recvCS, remote, err = responderRounds(conn, hs, local)
	}
	if err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}

	payload, err := unmarshalPayload(remote)
	if err != nil {
		return nil, err
	}
	toVerify := append([]byte(payloadSigPrefix), hs.PeerStatic()...)
	if !identity.Verify(payload.IdentityKey, toVerify, payload.IdentitySig) {
		return nil, ErrInvalidSignature
	}

	remoteID := identity.NodeIDFromPublicKey(payload.IdentityKey)
	if !expected.IsEmpty() && remoteID != expected {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrPeerIDMismatch, expected.ShortString(), remoteID.ShortString())
	}

	return &SecureConn{
		Conn:        conn,
		sendCS:      sendCS,
		recvCS:      recvCS,
		localPeer:   t.id.ID(),
		remotePeer:  remoteID,
		remoteKey:   payload.IdentityKey,
		listenAddrs: payload.ListenAddrs,
	}, nil
}

func (t *Transport) localPayload() []byte {
	p := handshakePayload{
		IdentityKey: t.id.PublicKey(),
		IdentitySig: t.id.Sign(append([]byte(payloadSigPrefix), t.static.Public...)),
	}
	if t.listenAddrs != nil {
		p.ListenAddrs = t.listenAddrs()
	}
	return p.marshal()
}

// initiatorRounds -> e; <- e, ee, s, es, payload; -> s, se, payload
func initiatorRounds(conn net.Conn, hs *noise.HandshakeState, payload []byte) (*noise.CipherState, *noise.CipherState, []byte, error) {
	msg, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := writeFrame(conn, msg); err != nil {
		return nil, nil, nil, err
	}

	msg, err = readFrame(conn)
	if err != nil {
		return nil, nil, nil, err
	}
	remote, _, _, err := hs.ReadMessage(nil, msg)
	if err != nil {
		return nil, nil, nil, err
	}

	msg, cs1, cs2, err := hs.WriteMessage(nil, payload)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := writeFrame(conn, msg); err != nil {
		return nil, nil, nil, err
	}
	return cs1, cs2, remote, nil
}

// responderRounds 与 initiatorRounds 对称，cipher state 顺序相反
func responderRounds(conn net.Conn, hs *noise.HandshakeState, payload []byte) (*noise.CipherState, *noise.CipherState, []byte, error) {
	msg, err := readFrame(conn)
	if err != nil {
		return nil, nil, nil, err
	}
	if _, _, _, err = hs.ReadMessage(nil, msg); err != nil {
		return nil, nil, nil, err
	}

	msg, _, _, err = hs.WriteMessage(nil, payload)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := writeFrame(conn, msg); err != nil {
		return nil, nil, nil, err
	}

	msg, err = readFrame(conn)
	if err != nil {
		return nil, nil, nil, err
	}
	remote, cs1, cs2, err := hs.ReadMessage(nil, msg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cs2, cs1, remote, nil
}

// writeFrame 2 字节大端长度 + 数据
func writeFrame(w io.Writer, data []byte) error {
	buf := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(buf, uint16(len(data)))
	copy(buf[2:], data)
	_, err := w.Write(buf)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	data := make([]byte, binary.BigEndian.Uint16(hdr[:]))
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
