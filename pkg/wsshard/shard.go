package wsshard

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tokmz/qigate/pkg/gateway"
	"github.com/tokmz/qigate/pkg/logger"
)

// Shard 单个网关 WebSocket 连接
type Shard struct {
	info     gateway.ShardInfo
	conn     *websocket.Conn
	opts     *Options
	log      logger.Logger
	interval time.Duration

	frames  chan gateway.Frame
	writeMu sync.Mutex

	// 协议状态
	seq       atomic.Int64 // -1 表示尚未收到
	acked     atomic.Bool
	mu        sync.Mutex
	sessionID string
	err       error

	// 生命周期
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ gateway.Shard = (*Shard)(nil)

func newShard(conn *websocket.Conn, info gateway.ShardInfo, interval time.Duration, opts *Options, log logger.Logger) *Shard {
	s := &Shard{
		info:     info,
		conn:     conn,
		opts:     opts,
		log:      log,
		interval: interval,
		frames:   make(chan gateway.Frame, opts.FrameBuffer),
		done:     make(chan struct{}),
	}
	s.seq.Store(-1)
	s.acked.Store(true)
	return s
}

// start 启动读协程和心跳协程
func (s *Shard) start() {
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.readPump()
	}()
	go func() {
		defer s.wg.Done()
		s.heartbeatLoop()
	}()
}

// ID 分片编号
func (s *Shard) ID() gateway.ShardID {
	return s.info.ID
}

// Info 连接信息
func (s *Shard) Info() gateway.ShardInfo {
	return s.info
}

// Frames 原始帧流
func (s *Shard) Frames() <-chan gateway.Frame {
	return s.frames
}

// Err 连接结束原因，主动 Close 时为 nil
func (s *Shard) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SessionID READY 中的会话 ID
func (s *Shard) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Sequence 最近一次分发事件的序列号
func (s *Shard) Sequence() (int64, bool) {
	seq := s.seq.Load()
	return seq, seq >= 0
}

// Parse 解析文本帧
func (s *Shard) Parse(frame gateway.Frame) (*gateway.Event, error) {
	if frame.Type != websocket.TextMessage {
		return nil, ErrUnsupportedFrame
	}
	return gateway.DecodeEvent(frame.Data)
}

// Apply 更新序列号与会话；网关要求重连时关闭连接
func (s *Shard) Apply(event *gateway.Event) {
	if event == nil {
		return
	}
	if event.Seq != nil {
		s.seq.Store(*event.Seq)
	}

	switch event.Op {
	case gateway.OpDispatch:
		if event.IsReady() && event.Ready != nil {
			s.mu.Lock()
			s.sessionID = event.Ready.SessionID
			s.mu.Unlock()
		}
	case gateway.OpReconnect:
		s.log.Warn("gateway requested reconnect")
		s.closeWithError(ErrReconnectRequested)
	case gateway.OpInvalidSession:
		s.log.Warn("session invalidated")
		s.closeWithError(ErrInvalidSession)
	}
}

// Close 主动关闭连接并等待后台协程退出
func (s *Shard) Close() error {
	err := s.closeWithError(nil)
	s.wg.Wait()
	return err
}

// closeWithError 只生效一次，cause 为 nil 表示正常关闭
func (s *Shard) closeWithError(cause error) error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = cause
		s.mu.Unlock()
		close(s.done)

		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(s.opts.WriteWait))
		err = s.conn.Close()
	})
	return err
}

// readPump 读取帧并转发到 Frames，连接结束时关闭 Frames
func (s *Shard) readPump() {
	defer close(s.frames)

	for {
		typ, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure) {
				s.log.Warn("gateway connection closed", zap.Error(err))
			}
			s.closeWithError(err)
			return
		}

		if typ == websocket.TextMessage {
			s.handleControl(data)
		}

		select {
		case s.frames <- gateway.Frame{Type: typ, Data: data}:
		case <-s.done:
			return
		}
	}
}

// handleControl 处理心跳相关操作码
func (s *Shard) handleControl(data []byte) {
	op, ok := peekOp(data)
	if !ok {
		return
	}
	switch op {
	case gateway.OpHeartbeatAck:
		s.acked.Store(true)
	case gateway.OpHeartbeat:
		if err := s.heartbeat(); err != nil {
			s.log.Error("heartbeat reply failed", zap.Error(err))
		}
	}
}

// heartbeatLoop 按 HELLO 间隔发送心跳，上一次心跳未确认时断开
func (s *Shard) heartbeatLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if !s.acked.Swap(false) {
				s.log.Warn("heartbeat ack missed")
				s.closeWithError(ErrHeartbeatTimeout)
				return
			}
			if err := s.heartbeat(); err != nil {
				s.closeWithError(err)
				return
			}
		}
	}
}

// heartbeat 发送携带最近序列号的心跳
func (s *Shard) heartbeat() error {
	var d any
	if seq, ok := s.Sequence(); ok {
		d = seq
	}
	return s.send(gateway.OpHeartbeat, d)
}

// send 写入一帧 JSON
func (s *Shard) send(op gateway.Opcode, data any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(outbound{Op: op, Data: data})
}
