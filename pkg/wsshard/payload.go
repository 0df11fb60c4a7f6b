package wsshard

import (
	"encoding/json"

	"github.com/tokmz/qigate/pkg/gateway"
)

// hello HELLO 载荷
type hello struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"` // 毫秒
}

// identify IDENTIFY 载荷
type identify struct {
	Token      string     `json:"token"`
	Intents    uint64     `json:"intents"`
	Shard      [2]uint64  `json:"shard"`
	Properties Properties `json:"properties"`
}

// outbound 发往网关的帧
type outbound struct {
	Op   gateway.Opcode `json:"op"`
	Data any            `json:"d"`
}

// peek 只解析操作码
type peek struct {
	Op gateway.Opcode `json:"op"`
}

func peekOp(data []byte) (gateway.Opcode, bool) {
	var p peek
	if err := json.Unmarshal(data, &p); err != nil {
		return 0, false
	}
	return p.Op, true
}
