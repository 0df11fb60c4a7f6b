package relay

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tokmz/qigate/pkg/gateway"
)

// Record 转发到消息队列的一条网关事件
type Record struct {
	ID      string          `json:"id"`
	ShardID gateway.ShardID `json:"shard_id"`
	Type    string          `json:"type"`
	Seq     int64           `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload"`
	Time    time.Time       `json:"time"`
}

// NewRecord 由分发事件构造 Record
func NewRecord(shardID gateway.ShardID, event *gateway.Event) Record {
	r := Record{
		ID:      uuid.NewString(),
		ShardID: shardID,
		Type:    event.Type,
		Payload: event.Data,
		Time:    time.Now().UTC(),
	}
	if event.Seq != nil {
		r.Seq = *event.Seq
	}
	return r
}

// Encode 编码为 JSON
func (r Record) Encode() ([]byte, error) {
	return json.Marshal(r)
}
