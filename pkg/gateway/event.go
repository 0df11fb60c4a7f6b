package gateway

import (
	"encoding/json"
	"fmt"
)

// Opcode 网关协议操作码
type Opcode int

const (
	OpDispatch            Opcode = 0
	OpHeartbeat           Opcode = 1
	OpIdentify            Opcode = 2
	OpPresenceUpdate      Opcode = 3
	OpVoiceStateUpdate    Opcode = 4
	OpResume              Opcode = 6
	OpReconnect           Opcode = 7
	OpRequestGuildMembers Opcode = 8
	OpInvalidSession      Opcode = 9
	OpHello               Opcode = 10
	OpHeartbeatAck        Opcode = 11
)

// 管理器识别的分发事件类型
const (
	EventTypeReady   = "READY"
	EventTypeResumed = "RESUMED"
)

// Event 解析后的网关事件
type Event struct {
	Op   Opcode          `json:"op"`
	Seq  *int64          `json:"s,omitempty"`
	Type string          `json:"t,omitempty"`
	Data json.RawMessage `json:"d,omitempty"`

	// Ready 仅在 READY 分发事件中填充
	Ready *Ready `json:"-"`
}

// Ready READY 事件载荷
type Ready struct {
	Version          int      `json:"v"`
	SessionID        string   `json:"session_id"`
	ResumeGatewayURL string   `json:"resume_gateway_url,omitempty"`
	Shard            []uint64 `json:"shard,omitempty"`
	User             *User    `json:"user,omitempty"`
}

// User 当前连接所属的用户
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot,omitempty"`
}

// IsDispatch 是否为分发事件
func (e *Event) IsDispatch() bool {
	return e != nil && e.Op == OpDispatch
}

// IsReady 是否为 READY 分发事件
func (e *Event) IsReady() bool {
	return e.IsDispatch() && e.Type == EventTypeReady
}

// ReadyShardID 返回 READY 事件中的分片 ID
func (e *Event) ReadyShardID() (ShardID, bool) {
	if !e.IsReady() || e.Ready == nil || len(e.Ready.Shard) == 0 {
		return 0, false
	}
	return e.Ready.Shard[0], true
}

// DecodeEvent 解析原始 JSON 帧，READY 事件会额外解析载荷
func DecodeEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("gateway: decode event: %w", err)
	}

	if ev.IsReady() && len(ev.Data) > 0 {
		var ready Ready
		if err := json.Unmarshal(ev.Data, &ready); err != nil {
			return nil, fmt.Errorf("gateway: decode ready payload: %w", err)
		}
		ev.Ready = &ready
	}

	return &ev, nil
}

// NewReadyEvent 构造 READY 分发事件，shard 为空时不带分片信息
func NewReadyEvent(sessionID string, shard ...uint64) *Event {
	ready := &Ready{SessionID: sessionID, Shard: shard}
	data, _ := json.Marshal(ready)
	return &Event{
		Op:    OpDispatch,
		Type:  EventTypeReady,
		Data:  data,
		Ready: ready,
	}
}
