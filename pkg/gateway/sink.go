package gateway

import "context"

// Sink 把单个分片的帧打上分片标识后投递到共享通道
//
// Sink 自身不做缓冲；完成信号由共享通道的关闭表达。
type Sink struct {
	shard Shard
	out   chan<- Message
}

// NewSink 创建 Sink
func NewSink(shard Shard, out chan<- Message) *Sink {
	return &Sink{shard: shard, out: out}
}

// Offer 非阻塞投递
//
// 共享通道暂时无法接收时返回原始帧和 false，调用方可稍后重试同一帧而不会重复投递。
func (s *Sink) Offer(frame Frame) (Frame, bool) {
	select {
	case s.out <- Message{Shard: s.shard, Frame: frame}:
		return Frame{}, true
	default:
		return frame, false
	}
}

// Send 阻塞投递直到成功或 ctx 结束
func (s *Sink) Send(ctx context.Context, frame Frame) error {
	if _, ok := s.Offer(frame); ok {
		return nil
	}
	select {
	case s.out <- Message{Shard: s.shard, Frame: frame}:
		return nil
	case <-ctx.Done():
		return &SinkError{Kind: SinkErrSend, ShardID: s.shard.ID(), Err: ctx.Err()}
	}
}

// Forward 把 frames 中的所有帧按序投递，直到帧流关闭或 ctx 结束
//
// 帧流关闭且分片报告连接错误时返回 SinkErrTransport。onSent 可为 nil。
func (s *Sink) Forward(ctx context.Context, frames <-chan Frame, onSent func()) error {
	for {
		select {
		case <-ctx.Done():
			return &SinkError{Kind: SinkErrSend, ShardID: s.shard.ID(), Err: ctx.Err()}
		case frame, ok := <-frames:
			if !ok {
				if err := s.shard.Err(); err != nil {
					return &SinkError{Kind: SinkErrTransport, ShardID: s.shard.ID(), Err: err}
				}
				return nil
			}
			if err := s.Send(ctx, frame); err != nil {
				return err
			}
			if onSent != nil {
				onSent()
			}
		}
	}
}
