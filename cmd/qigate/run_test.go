package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tokmz/qigate/pkg/gateway"
	"github.com/tokmz/qigate/pkg/logger"
	"github.com/tokmz/qigate/pkg/relay"
)

// memShard 内存分片
type memShard struct {
	id     gateway.ShardID
	frames chan gateway.Frame

	mu      sync.Mutex
	applied []string
	once    sync.Once
}

func newMemShard(id gateway.ShardID) *memShard {
	return &memShard{id: id, frames: make(chan gateway.Frame, 8)}
}

func (s *memShard) ID() gateway.ShardID          { return s.id }
func (s *memShard) Frames() <-chan gateway.Frame { return s.frames }
func (s *memShard) Err() error                   { return nil }

func (s *memShard) Parse(frame gateway.Frame) (*gateway.Event, error) {
	return gateway.DecodeEvent(frame.Data)
}

func (s *memShard) Apply(event *gateway.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, event.Type)
}

func (s *memShard) Close() error {
	s.once.Do(func() { close(s.frames) })
	return nil
}

func (s *memShard) appliedTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.applied...)
}

func (s *memShard) emit(data string) {
	s.frames <- gateway.Frame{Type: gateway.FrameText, Data: []byte(data)}
}

// memPublisher 记录发布的事件
type memPublisher struct {
	records chan relay.Record
}

func (p *memPublisher) Publish(_ context.Context, record relay.Record) error {
	p.records <- record
	return nil
}

func (p *memPublisher) Close() error { return nil }

func TestConsume(t *testing.T) {
	connected := make(chan *memShard, 4)
	conn := gateway.ConnectorFunc(func(_ context.Context, info gateway.ShardInfo) (gateway.Shard, error) {
		s := newMemShard(info.ID)
		connected <- s
		return s, nil
	})

	core, logs := observer.New(zap.DebugLevel)
	log := logger.FromZap(zap.New(core))

	manager, err := gateway.NewManager(
		gateway.WithToken("token"),
		gateway.WithStrategy(gateway.Multi(2)),
		gateway.WithCooldown(0),
		gateway.WithConnector(conn),
		gateway.WithLogger(log),
	)
	require.NoError(t, err)
	messages, err := manager.Messages()
	require.NoError(t, err)

	pub := &memPublisher{records: make(chan relay.Record, 4)}
	rl := relay.New(pub, log, "MESSAGE_CREATE")

	require.NoError(t, manager.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		consume(context.Background(), manager, messages, rl, log)
	}()

	next := func() *memShard {
		t.Helper()
		select {
		case s := <-connected:
			return s
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for connect")
			return nil
		}
	}

	first := next()
	assert.Equal(t, gateway.ShardID(0), first.ID())

	// READY 经 consume 回灌给管理器后才会启动下一个分片
	first.emit(`not json`)
	first.emit(`{"op":0,"s":1,"t":"READY","d":{"session_id":"s0","shard":[0,2]}}`)
	second := next()
	assert.Equal(t, gateway.ShardID(1), second.ID())

	second.emit(`{"op":0,"s":2,"t":"MESSAGE_CREATE","d":{"content":"hi"}}`)
	second.emit(`{"op":0,"s":3,"t":"TYPING_START","d":{}}`)

	select {
	case record := <-pub.records:
		assert.Equal(t, "MESSAGE_CREATE", record.Type)
		assert.Equal(t, gateway.ShardID(1), record.ShardID)
		assert.Equal(t, int64(2), record.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch never reached the publisher")
	}

	require.Eventually(t, func() bool { return len(second.appliedTypes()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"READY"}, first.appliedTypes())

	connectedLogs := logs.FilterMessage("Connected")
	require.Equal(t, 1, connectedLogs.Len())
	assert.Equal(t, uint64(0), connectedLogs.All()[0].ContextMap()["shard_id"])
	assert.Equal(t, 1, logs.FilterMessage("failed to parse frame").Len())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, manager.Shutdown(ctx))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consume did not return after the stream closed")
	}
	assert.Empty(t, pub.records)
}
