package wsshard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/qigate/pkg/gateway"
)

type serverFrame struct {
	Op   gateway.Opcode  `json:"op"`
	Data json.RawMessage `json:"d"`
}

// fakeGateway 模拟网关：发送 HELLO，把收到的帧交给测试
type fakeGateway struct {
	server   *httptest.Server
	received chan serverFrame
	conns    chan *websocket.Conn
	query    chan string
	interval int64
}

func newFakeGateway(t *testing.T, interval time.Duration) *fakeGateway {
	t.Helper()
	g := &fakeGateway{
		received: make(chan serverFrame, 32),
		conns:    make(chan *websocket.Conn, 1),
		query:    make(chan string, 1),
		interval: interval.Milliseconds(),
	}

	upgrader := websocket.Upgrader{}
	g.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		g.query <- r.URL.RawQuery

		if err := conn.WriteJSON(map[string]any{
			"op": gateway.OpHello,
			"d":  map[string]any{"heartbeat_interval": g.interval},
		}); err != nil {
			return
		}
		g.conns <- conn

		for {
			var f serverFrame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			select {
			case g.received <- f:
			default:
			}
		}
	}))
	t.Cleanup(g.server.Close)
	return g
}

func (g *fakeGateway) url() string {
	return "ws" + strings.TrimPrefix(g.server.URL, "http")
}

func (g *fakeGateway) next(t *testing.T, op gateway.Opcode) serverFrame {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case f := <-g.received:
			if f.Op == op {
				return f
			}
		case <-deadline:
			t.Fatalf("op %d not received", op)
			return serverFrame{}
		}
	}
}

func recvFrame(t *testing.T, s gateway.Shard) (gateway.Frame, bool) {
	t.Helper()
	select {
	case f, ok := <-s.Frames():
		return f, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return gateway.Frame{}, false
	}
}

func connect(t *testing.T, g *fakeGateway, opts ...Option) *Shard {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, err := NewConnector(opts...).Connect(ctx, gateway.ShardInfo{ID: 1, Total: 4, Token: "secret", URL: g.url()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s.(*Shard)
}

func TestConnectIdentify(t *testing.T) {
	g := newFakeGateway(t, time.Minute)
	s := connect(t, g, WithIntents(513))

	assert.Contains(t, <-g.query, "encoding=json")

	f := g.next(t, gateway.OpIdentify)
	var id identify
	require.NoError(t, json.Unmarshal(f.Data, &id))
	assert.Equal(t, "secret", id.Token)
	assert.Equal(t, [2]uint64{1, 4}, id.Shard)
	assert.Equal(t, uint64(513), id.Intents)
	assert.Equal(t, "qigate", id.Properties.Browser)
	assert.Equal(t, gateway.ShardID(1), s.ID())
}

func TestReadyUpdatesSession(t *testing.T) {
	g := newFakeGateway(t, time.Minute)
	s := connect(t, g)
	conn := <-g.conns

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"op":0,"s":5,"t":"READY","d":{"session_id":"abc","shard":[1,4]}}`)))

	frame, ok := recvFrame(t, s)
	require.True(t, ok)
	event, err := s.Parse(frame)
	require.NoError(t, err)
	s.Apply(event)

	assert.Equal(t, "abc", s.SessionID())
	seq, ok := s.Sequence()
	assert.True(t, ok)
	assert.Equal(t, int64(5), seq)

	id, ok := event.ReadyShardID()
	assert.True(t, ok)
	assert.Equal(t, gateway.ShardID(1), id)

	_, err = s.Parse(gateway.Frame{Type: websocket.BinaryMessage})
	assert.ErrorIs(t, err, ErrUnsupportedFrame)
}

func TestHeartbeat(t *testing.T) {
	g := newFakeGateway(t, 50*time.Millisecond)
	s := connect(t, g)
	conn := <-g.conns

	first := g.next(t, gateway.OpHeartbeat)
	assert.Equal(t, "null", string(first.Data))
	require.NoError(t, conn.WriteJSON(map[string]any{"op": gateway.OpHeartbeatAck}))

	seq := int64(9)
	s.Apply(&gateway.Event{Op: gateway.OpDispatch, Seq: &seq, Type: "MESSAGE_CREATE"})

	second := g.next(t, gateway.OpHeartbeat)
	assert.Equal(t, "9", string(second.Data))
}

func TestServerHeartbeatRequest(t *testing.T) {
	g := newFakeGateway(t, time.Minute)
	connect(t, g)
	conn := <-g.conns

	require.NoError(t, conn.WriteJSON(map[string]any{"op": gateway.OpHeartbeat}))
	g.next(t, gateway.OpHeartbeat)
}

func TestMissedAckCloses(t *testing.T) {
	g := newFakeGateway(t, 20*time.Millisecond)
	s := connect(t, g)

	for {
		_, ok := recvFrame(t, s)
		if !ok {
			break
		}
	}
	assert.ErrorIs(t, s.Err(), ErrHeartbeatTimeout)
}

func TestReconnectRequestCloses(t *testing.T) {
	g := newFakeGateway(t, time.Minute)
	s := connect(t, g)

	s.Apply(&gateway.Event{Op: gateway.OpReconnect})
	for {
		_, ok := recvFrame(t, s)
		if !ok {
			break
		}
	}
	assert.ErrorIs(t, s.Err(), ErrReconnectRequested)
}

func TestCloseIsClean(t *testing.T) {
	g := newFakeGateway(t, time.Minute)
	s := connect(t, g)

	require.NoError(t, s.Close())
	_, ok := recvFrame(t, s)
	assert.False(t, ok)
	assert.NoError(t, s.Err())
	assert.NoError(t, s.Close())
}

func TestConnectErrors(t *testing.T) {
	c := NewConnector()
	ctx := context.Background()

	_, err := c.Connect(ctx, gateway.ShardInfo{})
	assert.ErrorIs(t, err, ErrMissingURL)

	_, err = c.Connect(ctx, gateway.ShardInfo{URL: "ws://127.0.0.1:1"})
	assert.ErrorIs(t, err, ErrHandshake)

	// 服务端不发送 HELLO
	upgrader := websocket.Upgrader{}
	release := make(chan struct{})
	silent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-release
	}))
	defer silent.Close()
	defer close(release)

	timeout, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = c.Connect(timeout, gateway.ShardInfo{URL: "ws" + strings.TrimPrefix(silent.URL, "http")})
	assert.ErrorIs(t, err, ErrHandshake)
}

func TestGatewayURL(t *testing.T) {
	u, err := gatewayURL("wss://gateway.example.com/?compress=none", 10)
	require.NoError(t, err)
	assert.Equal(t, "wss://gateway.example.com/?compress=none&encoding=json&v=10", u)
}
