package noise

import (
	"crypto/ed25519"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldIdentityKey protowire.Number = 1
	fieldIdentitySig protowire.Number = 2
	fieldListenAddrs protowire.Number = 3
)

// handshakePayload 握手时交换的身份数据
type handshakePayload struct {
	IdentityKey ed25519.PublicKey
	IdentitySig []byte
	ListenAddrs []ma.Multiaddr
}

func (p *handshakePayload) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldIdentityKey, protowire.BytesType)
	b = protowire.AppendBytes(b, p.IdentityKey)
	b = protowire.AppendTag(b, fieldIdentitySig, protowire.BytesType)
	b = protowire.AppendBytes(b, p.IdentitySig)
	for _, a := range p.ListenAddrs {
		b = protowire.AppendTag(b, fieldListenAddrs, protowire.BytesType)
		b = protowire.AppendBytes(b, a.Bytes())
	}
	return b
}

func unmarshalPayload(b []byte) (*handshakePayload, error) {
	p := &handshakePayload{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, protowire.ParseError(n))
		}
		b = b[n:]

		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldIdentityKey:
			p.IdentityKey = append(ed25519.PublicKey(nil), v...)
		case fieldIdentitySig:
			p.IdentitySig = append([]byte(nil), v...)
		case fieldListenAddrs:
			// 无法解析的地址直接跳过，不影响握手
			if a, err := ma.NewMultiaddrBytes(v); err == nil {
				p.ListenAddrs = append(p.ListenAddrs, a)
			}
		}
	}
	if len(p.IdentityKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: identity key length %d", ErrInvalidPayload, len(p.IdentityKey))
	}
	return p, nil
}
