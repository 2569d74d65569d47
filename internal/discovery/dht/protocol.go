package dht

import (
	"encoding/json"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-kadnode/pkg/types"
)

// ============================================================================
//                              消息类型
// ============================================================================

// MessageType 消息类型
type MessageType uint8

const (
	// MessageTypeFindNode FIND_NODE 请求
	MessageTypeFindNode MessageType = iota + 1
	// MessageTypeFindNodeResponse FIND_NODE 响应
	MessageTypeFindNodeResponse

	// MessageTypePing PING 请求
	MessageTypePing
	// MessageTypePingResponse PING 响应
	MessageTypePingResponse

	// MessageTypeAddProvider ADD_PROVIDER 请求
	MessageTypeAddProvider
	// MessageTypeAddProviderResponse ADD_PROVIDER 响应
	MessageTypeAddProviderResponse

	// MessageTypeGetProviders GET_PROVIDERS 请求
	MessageTypeGetProviders
	// MessageTypeGetProvidersResponse GET_PROVIDERS 响应
	MessageTypeGetProvidersResponse

	// MessageTypeError 错误响应
	MessageTypeError
)

// String 返回消息类型的字符串表示
func (m MessageType) String() string {
	switch m {
	case MessageTypeFindNode:
		return "FIND_NODE"
	case MessageTypeFindNodeResponse:
		return "FIND_NODE_RESPONSE"
	case MessageTypePing:
		return "PING"
	case MessageTypePingResponse:
		return "PING_RESPONSE"
	case MessageTypeAddProvider:
		return "ADD_PROVIDER"
	case MessageTypeAddProviderResponse:
		return "ADD_PROVIDER_RESPONSE"
	case MessageTypeGetProviders:
		return "GET_PROVIDERS"
	case MessageTypeGetProvidersResponse:
		return "GET_PROVIDERS_RESPONSE"
	case MessageTypeError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// responseType 请求对应的响应类型
func (m MessageType) responseType() MessageType {
	switch m {
	case MessageTypeFindNode, MessageTypePing, MessageTypeAddProvider, MessageTypeGetProviders:
		return m + 1
	default:
		return MessageTypeError
	}
}

// ============================================================================
//                              消息结构
// ============================================================================

// Message DHT 消息
type Message struct {
	// Type 消息类型
	Type MessageType `json:"type"`

	// RequestID 请求 ID（用于匹配请求和响应）
	RequestID uint64 `json:"request_id"`

	// Sender 发送者节点 ID
	Sender types.NodeID `json:"sender"`

	// SenderAddrs 发送者监听地址
	SenderAddrs []string `json:"sender_addrs,omitempty"`

	// Target 目标节点 ID（FIND_NODE）
	Target types.NodeID `json:"target"`

	// Key provider 键（ADD_PROVIDER / GET_PROVIDERS）
	Key types.NodeID `json:"key"`

	// TTL provider 记录有效期（秒）
	TTL uint32 `json:"ttl,omitempty"`

	// CloserPeers 更近的节点
	CloserPeers []PeerInfo `json:"closer_peers,omitempty"`

	// Providers provider 列表
	Providers []PeerInfo `json:"providers,omitempty"`

	// Success 操作是否成功
	Success bool `json:"success,omitempty"`

	// Error 错误信息
	Error string `json:"error,omitempty"`
}

// PeerInfo 节点信息（用于消息传输）
type PeerInfo struct {
	ID    types.NodeID `json:"id"`
	Addrs []string     `json:"addrs"`
}

// Encode 编码消息
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage 解码消息
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ============================================================================
//                              消息构造
// ============================================================================

func newRequest(t MessageType, id uint64, sender types.NodeID, addrs []ma.Multiaddr) *Message {
	return &Message{Type: t, RequestID: id, Sender: sender, SenderAddrs: addrStrings(addrs)}
}

func newResponse(req *Message, sender types.NodeID) *Message {
	return &Message{Type: req.Type.responseType(), RequestID: req.RequestID, Sender: sender}
}

func newErrorResponse(req *Message, sender types.NodeID, err error) *Message {
	return &Message{Type: MessageTypeError, RequestID: req.RequestID, Sender: sender, Error: err.Error()}
}

// ============================================================================
//                              转换
// ============================================================================

func addrStrings(addrs []ma.Multiaddr) []string {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}

// parseAddrs 忽略无法解析的地址
func parseAddrs(ss []string) []ma.Multiaddr {
	out := make([]ma.Multiaddr, 0, len(ss))
	for _, s := range ss {
		if a, err := ma.NewMultiaddr(s); err == nil {
			out = append(out, a)
		}
	}
	return out
}

func toPeerInfos(recs []PeerRecord) []PeerInfo {
	out := make([]PeerInfo, len(recs))
	for i, r := range recs {
		out[i] = PeerInfo{ID: r.ID, Addrs: addrStrings(r.Addrs)}
	}
	return out
}

func toPeerRecords(infos []PeerInfo, seen time.Time) []PeerRecord {
	out := make([]PeerRecord, 0, len(infos))
	for _, p := range infos {
		if p.ID.IsEmpty() {
			continue
		}
		out = append(out, PeerRecord{ID: p.ID, Addrs: parseAddrs(p.Addrs), LastSeen: seen})
	}
	return out
}
