package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tokmz/qigate/pkg/logger"
)

// withArmedHook 记录冷却计时器创建事件
func withArmedHook() (Option, <-chan ShardID) {
	armed := make(chan ShardID, 8)
	return func(o *Options) {
		o.cooldownArmed = func(id ShardID, _ time.Duration) {
			armed <- id
		}
	}, armed
}

func waitArmed(t *testing.T, armed <-chan ShardID, want ShardID) {
	t.Helper()
	select {
	case id := <-armed:
		require.Equal(t, want, id)
	case <-time.After(2 * time.Second):
		t.Fatalf("cooldown for shard %d never armed", want)
	}
}

func TestNewManagerValidation(t *testing.T) {
	conn := newFakeConnector(clock.New())

	_, err := NewManager(WithToken("t"), WithConnector(conn), WithStrategy(Auto()))
	assert.ErrorIs(t, err, ErrAutoshardUnsupported)

	_, err = NewManager(WithToken("t"), WithConnector(conn), WithStrategy(Range(3, 2, 4)))
	assert.ErrorIs(t, err, ErrInvalidStrategy)

	_, err = NewManager(WithConnector(conn))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewManager(WithToken("t"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewManager(WithToken("t"), WithConnector(conn), WithQueueCapacity(0))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewManager(WithToken("t"), WithConnector(conn),
		WithRemoveOnDisconnect(false), WithRequeueOnDisconnect(true))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	m, err := NewManager(WithToken("t"), WithConnector(conn))
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID())
	assert.Equal(t, "simple", m.Stats().Strategy)
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManagerStartTwice(t *testing.T) {
	m, conn, _ := newTestManager(t)

	require.NoError(t, m.Start(context.Background()))
	assert.ErrorIs(t, m.Start(context.Background()), ErrAlreadyStarted)
	conn.next(t)
}

func TestManagerStartAfterShutdown(t *testing.T) {
	m, _, _ := newTestManager(t)
	require.NoError(t, m.Shutdown(context.Background()))
	assert.ErrorIs(t, m.Start(context.Background()), ErrClosed)
}

func TestManagerMessagesTakenOnce(t *testing.T) {
	m, _, _ := newTestManager(t)

	ch, err := m.Messages()
	require.NoError(t, err)
	require.NotNil(t, ch)

	again, err := m.Messages()
	assert.ErrorIs(t, err, ErrMessagesTaken)
	assert.Nil(t, again)
}

// 启动间隔：start(n+1) >= max(start(n)+cooldown, ready(n))
func TestManagerStartupCadence(t *testing.T) {
	const cooldown = 6 * time.Second
	mock := clock.NewMock()
	hook, armed := withArmedHook()
	m, conn, _ := newTestManager(t,
		WithStrategy(Multi(3)),
		WithCooldown(cooldown),
		WithClock(mock),
		hook,
	)
	t0 := mock.Now()

	require.NoError(t, m.Start(context.Background()))

	// 第一个分片同样要等冷却
	waitArmed(t, armed, 0)
	conn.none(t)
	mock.Add(cooldown)
	first := conn.next(t)
	assert.Equal(t, ShardID(0), first.info.ID)
	assert.Equal(t, t0.Add(cooldown), first.at)

	// 冷却已过但 READY 未到，分片 1 不启动
	mock.Add(10 * time.Second)
	conn.none(t)

	readyAt := mock.Now()
	m.Process(NewReadyEvent("s0", 0, 3))
	second := conn.next(t)
	assert.Equal(t, ShardID(1), second.info.ID)
	assert.False(t, second.at.Before(first.at.Add(cooldown)))
	assert.False(t, second.at.Before(readyAt))

	// READY 立即到达，但冷却未过
	m.Process(NewReadyEvent("s1", 1, 3))
	waitArmed(t, armed, 2)
	conn.none(t)
	mock.Add(cooldown)
	third := conn.next(t)
	assert.Equal(t, ShardID(2), third.info.ID)
	assert.Equal(t, second.at.Add(cooldown), third.at)
	assert.Equal(t, uint64(3), third.info.Total)
}

func TestManagerEndToEndRange(t *testing.T) {
	const cooldown = 6 * time.Second
	mock := clock.NewMock()
	hook, armed := withArmedHook()
	m, conn, counters := newTestManager(t,
		WithStrategy(Range(0, 2, 2)),
		WithCooldown(cooldown),
		WithClock(mock),
		hook,
	)

	messages, err := m.Messages()
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))

	waitArmed(t, armed, 0)
	mock.Add(cooldown)
	first := conn.next(t)
	assert.Equal(t, [2]uint64{0, 2}, first.info.Pair())
	assert.Equal(t, "token", first.info.Token)
	assert.Equal(t, "wss://gateway.test", first.info.URL)

	require.Eventually(t, func() bool { return m.ShardCount() == 1 }, time.Second, 5*time.Millisecond)

	// 调用方读取合并消息流并回灌 READY
	first.shard.emit(`{"op":0,"s":1,"t":"READY","d":{"session_id":"s0","shard":[0,2]}}`)
	msg := recvMessage(t, messages)
	assert.Equal(t, ShardID(0), msg.Shard.ID())

	event, err := msg.Shard.Parse(msg.Frame)
	require.NoError(t, err)
	msg.Shard.Apply(event)

	conn.none(t)
	m.Process(event)

	// READY 已处理，仍需等待冷却
	waitArmed(t, armed, 1)
	conn.none(t)
	mock.Add(cooldown)
	second := conn.next(t)
	assert.Equal(t, [2]uint64{1, 2}, second.info.Pair())

	require.Eventually(t, func() bool { return m.ShardCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []ShardID{0, 1}, m.Shards())

	second.shard.emit(`{"op":0,"s":1,"t":"GUILD_CREATE","d":{}}`)
	msg = recvMessage(t, messages)
	assert.Equal(t, ShardID(1), msg.Shard.ID())

	got, ok := m.Shard(1)
	require.True(t, ok)
	assert.Same(t, second.shard, got)

	assert.Equal(t, int64(2), counters.ConnectAttempts.Load())
	assert.Equal(t, int64(1), counters.Ready.Load())
	require.Eventually(t, func() bool { return counters.Forwarded.Load() == 2 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	_, open := <-messages
	assert.False(t, open, "merged stream closes on shutdown")
	assert.True(t, first.shard.isClosed())
	assert.True(t, second.shard.isClosed())
}

func TestManagerPerShardOrder(t *testing.T) {
	m, conn, _ := newTestManager(t, WithStrategy(Multi(2)))
	messages, err := m.Messages()
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))

	a := conn.next(t)
	m.Process(NewReadyEvent("a", 0))
	b := conn.next(t)

	const n = 20
	var wg sync.WaitGroup
	for _, call := range []connectCall{a, b} {
		wg.Add(1)
		go func(s *fakeShard) {
			defer wg.Done()
			for i := 0; i < n; i++ {
				s.emit(string(rune('a' + i)))
			}
		}(call.shard)
	}

	next := map[ShardID]int{}
	for i := 0; i < 2*n; i++ {
		msg := recvMessage(t, messages)
		id := msg.Shard.ID()
		assert.Equal(t, string(rune('a'+next[id])), string(msg.Frame.Data))
		next[id]++
	}
	wg.Wait()
}

func TestManagerMalformedReady(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	m, _, counters := newTestManager(t, WithLogger(logger.FromZap(zap.New(core))))

	events := make(chan LifecycleEvent, 1)
	m.Subscribe(EventMalformedReady, func(e LifecycleEvent) { events <- e })
	require.NoError(t, m.Start(context.Background()))

	m.Process(NewReadyEvent("broken"))

	warned := logs.FilterMessage("ready event has no shard id")
	require.Equal(t, 1, warned.Len())
	assert.Equal(t, zap.WarnLevel, warned.All()[0].Level)
	assert.Equal(t, int64(1), counters.MalformedReady.Load())
	assert.Equal(t, int64(0), counters.Ready.Load())

	select {
	case e := <-events:
		assert.Equal(t, EventMalformedReady, e.Type)
	case <-time.After(time.Second):
		t.Fatal("malformed ready event not published")
	}
}

func TestManagerProcessIgnoresOtherEvents(t *testing.T) {
	m, _, counters := newTestManager(t)

	m.Process(nil)
	m.Process(&Event{Op: OpDispatch, Type: "MESSAGE_CREATE"})
	m.Process(&Event{Op: OpHello})

	assert.Equal(t, 0, m.Stats().Released)
	assert.Equal(t, int64(0), counters.Ready.Load())
	assert.Equal(t, int64(0), counters.MalformedReady.Load())
}

func TestManagerUntrackedReadyAccepted(t *testing.T) {
	m, _, counters := newTestManager(t, WithStrategy(Range(0, 2, 4)))

	m.Process(NewReadyEvent("other", 3, 4))

	assert.Equal(t, 1, m.Stats().Released)
	assert.Equal(t, int64(1), counters.Ready.Load())
}

func TestManagerQueueOverflowDrop(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	m, _, counters := newTestManager(t,
		WithQueueCapacity(1),
		WithLogger(logger.FromZap(zap.New(core))),
	)

	m.Process(NewReadyEvent("a", 0))
	m.Process(NewReadyEvent("b", 1))

	assert.Equal(t, 1, m.Stats().Released)
	assert.Equal(t, int64(1), counters.QueueOverflow.Load())
	assert.Equal(t, 1, logs.FilterMessage("could not send shard id to startup queue").Len())
}

func TestManagerRemoveOnDisconnect(t *testing.T) {
	m, conn, counters := newTestManager(t)
	disconnected := make(chan LifecycleEvent, 1)
	m.Subscribe(EventShardDisconnected, func(e LifecycleEvent) { disconnected <- e })

	require.NoError(t, m.Start(context.Background()))
	call := conn.next(t)
	require.Eventually(t, func() bool { return m.ShardCount() == 1 }, time.Second, 5*time.Millisecond)

	cause := errors.New("connection reset")
	call.shard.disconnect(cause)

	require.Eventually(t, func() bool { return m.ShardCount() == 0 }, time.Second, 5*time.Millisecond)
	_, ok := m.Shard(0)
	assert.False(t, ok)
	assert.Equal(t, int64(1), counters.Disconnects.Load())
	assert.Equal(t, int64(1), counters.SinkErrors.Load())
	assert.Equal(t, int64(0), counters.RegisteredShards.Load())

	select {
	case e := <-disconnected:
		assert.Equal(t, ShardID(0), e.ShardID)
		assert.ErrorIs(t, e.Err, cause)
	case <-time.After(time.Second):
		t.Fatal("disconnect event not published")
	}

	// 未开启重新排队
	conn.none(t)
}

func TestManagerKeepOnDisconnect(t *testing.T) {
	m, conn, counters := newTestManager(t, WithRemoveOnDisconnect(false))
	require.NoError(t, m.Start(context.Background()))

	call := conn.next(t)
	require.Eventually(t, func() bool { return m.ShardCount() == 1 }, time.Second, 5*time.Millisecond)

	call.shard.disconnect(nil)
	require.Eventually(t, func() bool { return counters.Disconnects.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, m.ShardCount())
	assert.Equal(t, int64(0), counters.SinkErrors.Load())
}

func TestManagerRequeueOnDisconnect(t *testing.T) {
	m, conn, _ := newTestManager(t, WithRequeueOnDisconnect(true))
	require.NoError(t, m.Start(context.Background()))

	first := conn.next(t)
	m.Process(NewReadyEvent("s", 0, 1))
	require.Eventually(t, func() bool { return m.ShardCount() == 1 }, time.Second, 5*time.Millisecond)

	first.shard.disconnect(errors.New("invalid session"))

	second := conn.next(t)
	assert.Equal(t, ShardID(0), second.info.ID)
	require.Eventually(t, func() bool {
		s, ok := m.Shard(0)
		return ok && s == Shard(second.shard)
	}, time.Second, 5*time.Millisecond)
}

func TestManagerReconnectReplacesEntry(t *testing.T) {
	m, conn, _ := newTestManager(t, WithRemoveOnDisconnect(false))
	require.NoError(t, m.Start(context.Background()))

	first := conn.next(t)
	m.Process(NewReadyEvent("s", 0, 1))
	require.NoError(t, m.Enqueue(0))

	second := conn.next(t)
	require.Eventually(t, func() bool { return first.shard.isClosed() }, time.Second, 5*time.Millisecond)

	got, ok := m.Shard(0)
	require.True(t, ok)
	assert.Same(t, second.shard, got)
	assert.Equal(t, 1, m.ShardCount())
}

func TestManagerConnectFailureReleasesNext(t *testing.T) {
	m, conn, counters := newTestManager(t, WithStrategy(Multi(2)))
	conn.fail = func(info ShardInfo) error {
		if info.ID == 0 {
			return errors.New("dial refused")
		}
		return nil
	}

	failed := make(chan LifecycleEvent, 1)
	m.Subscribe(EventShardConnectFailed, func(e LifecycleEvent) { failed <- e })
	require.NoError(t, m.Start(context.Background()))

	assert.Nil(t, conn.next(t).shard)
	// 没有 READY 也能继续启动下一个分片
	ok := conn.next(t)
	assert.Equal(t, ShardID(1), ok.info.ID)

	require.Eventually(t, func() bool { return m.ShardCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []ShardID{1}, m.Shards())
	assert.Equal(t, int64(1), counters.ConnectFailures.Load())

	select {
	case e := <-failed:
		assert.Equal(t, ShardID(0), e.ShardID)
		assert.ErrorIs(t, e.Err, ErrConnectFailed)
	case <-time.After(time.Second):
		t.Fatal("connect failure not published")
	}
}

func TestManagerDisconnectBeforeReadyReleasesNext(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	m, conn, _ := newTestManager(t,
		WithStrategy(Multi(2)),
		WithLogger(logger.FromZap(zap.New(core))),
	)
	require.NoError(t, m.Start(context.Background()))

	first := conn.next(t)
	require.Eventually(t, func() bool { return m.ShardCount() == 1 }, time.Second, 5*time.Millisecond)

	// 鉴权失败等情况下连接在 READY 之前关闭
	first.shard.disconnect(errors.New("authentication failed"))

	second := conn.next(t)
	assert.Equal(t, ShardID(1), second.info.ID)
	assert.Equal(t, 1, logs.FilterMessage("shard disconnected before ready").Len())
}

func TestManagerDisconnectAfterReadyKeepsCadence(t *testing.T) {
	m, conn, counters := newTestManager(t, WithStrategy(Multi(3)))
	require.NoError(t, m.Start(context.Background()))

	first := conn.next(t)
	m.Process(NewReadyEvent("s0", 0, 3))
	second := conn.next(t)
	assert.Equal(t, ShardID(1), second.info.ID)
	require.Eventually(t, func() bool { return m.ShardCount() == 2 }, time.Second, 5*time.Millisecond)

	first.shard.disconnect(nil)
	require.Eventually(t, func() bool { return counters.Disconnects.Load() == 1 }, time.Second, 5*time.Millisecond)

	// 分片 2 仍然等待分片 1 的 READY
	conn.none(t)
	assert.Equal(t, 0, m.Stats().Released)

	m.Process(NewReadyEvent("s1", 1, 3))
	assert.Equal(t, ShardID(2), conn.next(t).info.ID)
}

func TestManagerConnectTimeout(t *testing.T) {
	m, conn, counters := newTestManager(t, WithConnectTimeout(20*time.Millisecond))
	conn.block = true

	require.NoError(t, m.Start(context.Background()))
	conn.next(t)
	require.Eventually(t, func() bool { return counters.ConnectFailures.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, m.ShardCount())
}

type recordingLimiter struct {
	mu    sync.Mutex
	calls []ShardID
	err   error
}

func (l *recordingLimiter) Acquire(_ context.Context, info ShardInfo) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, info.ID)
	return l.err
}

func TestManagerIdentifyLimiter(t *testing.T) {
	limiter := &recordingLimiter{}
	m, conn, _ := newTestManager(t, WithIdentifyLimiter(limiter))
	require.NoError(t, m.Start(context.Background()))
	conn.next(t)

	limiter.mu.Lock()
	assert.Equal(t, []ShardID{0}, limiter.calls)
	limiter.mu.Unlock()
}

func TestManagerIdentifyLimiterFailure(t *testing.T) {
	limiter := &recordingLimiter{err: errors.New("redis down")}
	m, conn, counters := newTestManager(t, WithIdentifyLimiter(limiter))
	require.NoError(t, m.Start(context.Background()))

	require.Eventually(t, func() bool { return counters.ConnectFailures.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(0), counters.ConnectAttempts.Load())
	conn.none(t)
}

func TestManagerConnectSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	m, conn, _ := newTestManager(t, WithStrategy(Multi(2)), WithTracerProvider(tp))
	conn.fail = func(info ShardInfo) error {
		if info.ID == 1 {
			return errors.New("boom")
		}
		return nil
	}

	require.NoError(t, m.Start(context.Background()))
	conn.next(t)
	m.Process(NewReadyEvent("s", 0, 2))
	conn.next(t)

	require.Eventually(t, func() bool { return len(recorder.Ended()) == 2 }, time.Second, 5*time.Millisecond)
	spans := recorder.Ended()

	for i, span := range spans {
		assert.Equal(t, "gateway.shard.connect", span.Name())
		assert.Contains(t, span.Attributes(), attribute.Int64("shard.id", int64(i)))
		assert.Contains(t, span.Attributes(), attribute.Int64("shard.total", 2))
	}
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestManagerStats(t *testing.T) {
	m, conn, _ := newTestManager(t, WithStrategy(Range(4, 2, 8)))

	stats := m.Stats()
	assert.False(t, stats.Started)
	assert.Equal(t, []ShardID{4, 5}, stats.Owned)
	assert.Equal(t, uint64(8), stats.Total)
	assert.Equal(t, "range:4:2:8", stats.Strategy)

	require.NoError(t, m.Start(context.Background()))
	conn.next(t)
	require.Eventually(t, func() bool { return m.ShardCount() == 1 }, time.Second, 5*time.Millisecond)

	stats = m.Stats()
	assert.True(t, stats.Started)
	assert.Equal(t, []ShardID{4}, stats.Registered)
	assert.Equal(t, m.ID(), stats.ManagerID)

	// 分片 5 已被取出，等待放行
	require.Eventually(t, func() bool { return m.Stats().Pending == 0 }, time.Second, 5*time.Millisecond)
}

func TestManagerEnqueueLifecycle(t *testing.T) {
	m, _, _ := newTestManager(t)
	assert.ErrorIs(t, m.Enqueue(0), ErrNotStarted)

	require.NoError(t, m.Shutdown(context.Background()))
	assert.ErrorIs(t, m.Enqueue(0), ErrClosed)
}

func TestManagerShutdownBeforeStart(t *testing.T) {
	m, _, _ := newTestManager(t)
	messages, err := m.Messages()
	require.NoError(t, err)

	require.NoError(t, m.Shutdown(context.Background()))
	_, open := <-messages
	assert.False(t, open)
}

func TestManagerShutdownResumesAfterTimeout(t *testing.T) {
	m, conn, _ := newTestManager(t)
	// 连接器忽略 ctx，直到 gate 关闭才返回
	conn.gate = make(chan struct{})

	messages, err := m.Messages()
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	call := conn.next(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Shutdown(ctx), context.DeadlineExceeded)

	close(conn.gate)

	ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	_, open := <-messages
	assert.False(t, open, "merged stream closes once teardown finishes")
	assert.True(t, call.shard.isClosed())
}
