package gateway

import (
	"context"
	"sync"
)

// fanInIntake 无界模式下入口通道的缓冲，后面由 pump 的队列兜底
const fanInIntake = 64

// fanIn 所有分片共享的出站通道
//
// buffer > 0 时为有界通道，写满后 Sink 感知到背压；
// buffer == 0 时由 pump 协程维护一个可增长的 FIFO，对生产者而言近似无界。
type fanIn struct {
	in  chan Message
	out chan Message

	bounded   bool
	pumping   bool
	closeOnce sync.Once
}

func newFanIn(buffer int) *fanIn {
	if buffer > 0 {
		ch := make(chan Message, buffer)
		return &fanIn{in: ch, out: ch, bounded: true}
	}
	return &fanIn{
		in:  make(chan Message, fanInIntake),
		out: make(chan Message),
	}
}

// sender 生产者使用的通道
func (f *fanIn) sender() chan<- Message {
	return f.in
}

// receiver 消费者使用的通道
func (f *fanIn) receiver() <-chan Message {
	return f.out
}

// run 无界模式的搬运循环，ctx 结束时关闭 out 并丢弃剩余消息
func (f *fanIn) run(ctx context.Context) {
	defer f.closeOnce.Do(func() { close(f.out) })

	var queue []Message
	for {
		var (
			outCh chan Message
			next  Message
		)
		if len(queue) > 0 {
			outCh = f.out
			next = queue[0]
		}

		select {
		case <-ctx.Done():
			return
		case msg := <-f.in:
			queue = append(queue, msg)
		case outCh <- next:
			queue[0] = Message{}
			queue = queue[1:]
		}
	}
}

// start 在 ctx 上启动搬运循环（有界模式无需启动）
func (f *fanIn) start(ctx context.Context, wg *sync.WaitGroup) {
	if f.bounded {
		return
	}
	f.pumping = true
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.run(ctx)
	}()
}

// close 在所有生产者退出后调用
func (f *fanIn) close() {
	if f.pumping {
		// run 退出时已关闭 out
		return
	}
	f.closeOnce.Do(func() { close(f.out) })
}
