package gateway

import "context"

// 帧类型，与 WebSocket 消息类型取值一致
const (
	FrameText   = 1
	FrameBinary = 2
)

// Frame 分片收到的原始协议帧
type Frame struct {
	Type int
	Data []byte
}

// ShardInfo 建立分片连接所需的信息
type ShardInfo struct {
	ID    ShardID
	Total uint64
	Token string
	URL   string
}

// Pair 返回握手载荷中的 [shard_id, shard_total]
func (i ShardInfo) Pair() [2]uint64 {
	return [2]uint64{i.ID, i.Total}
}

// Shard 单个分片连接
//
// 实现必须是可比较的类型（通常为指针），Registry 依赖 == 判断条目是否仍是同一实例。
type Shard interface {
	// ID 分片编号
	ID() ShardID
	// Frames 原始帧流，连接结束时关闭
	Frames() <-chan Frame
	// Err Frames 关闭后返回底层连接错误，正常关闭返回 nil
	Err() error
	// Parse 将原始帧解析为事件
	Parse(frame Frame) (*Event, error)
	// Apply 用事件更新分片本地状态（序列号、会话等）
	Apply(event *Event)
	// Close 关闭连接
	Close() error
}

// Connector 建立分片连接
//
// ctx 只约束连接与握手过程，返回的 Shard 生命周期与 ctx 无关。
type Connector interface {
	Connect(ctx context.Context, info ShardInfo) (Shard, error)
}

// ConnectorFunc 函数适配器
type ConnectorFunc func(ctx context.Context, info ShardInfo) (Shard, error)

// Connect 实现 Connector
func (f ConnectorFunc) Connect(ctx context.Context, info ShardInfo) (Shard, error) {
	return f(ctx, info)
}

// IdentifyLimiter 跨进程的握手限流（同一部署内所有进程共享）
type IdentifyLimiter interface {
	Acquire(ctx context.Context, info ShardInfo) error
}

// Message 合并消息流中的一条消息
type Message struct {
	Shard Shard
	Frame Frame
}
