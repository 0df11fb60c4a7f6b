package wsshard

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tokmz/qigate/pkg/gateway"
	"github.com/tokmz/qigate/pkg/logger"
)

// Connector 基于 gorilla/websocket 的分片连接器
type Connector struct {
	dialer *websocket.Dialer
	opts   *Options
}

var _ gateway.Connector = (*Connector)(nil)

// NewConnector 创建连接器
func NewConnector(opts ...Option) *Connector {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	return &Connector{
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: options.HandshakeTimeout,
		},
		opts: options,
	}
}

// Connect 建立连接并完成 HELLO / IDENTIFY 握手
//
// 返回时 IDENTIFY 已写出，READY 之后会出现在 Frames 中。
func (c *Connector) Connect(ctx context.Context, info gateway.ShardInfo) (gateway.Shard, error) {
	if info.URL == "" {
		return nil, ErrMissingURL
	}
	target, err := gatewayURL(info.URL, c.opts.Version)
	if err != nil {
		return nil, ErrHandshake.WithError(err)
	}

	log := c.opts.Logger.Named("wsshard").With(logger.ShardID(info.ID), logger.ShardTotal(info.Total))

	conn, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, ErrHandshake.WithError(err)
	}
	conn.SetReadLimit(c.opts.ReadLimit)

	interval, err := readHello(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	log.Debug("received hello", zap.Duration("heartbeat_interval", interval))

	s := newShard(conn, info, interval, c.opts, log)
	if err := s.send(gateway.OpIdentify, identify{
		Token:      info.Token,
		Intents:    c.opts.Intents,
		Shard:      info.Pair(),
		Properties: c.opts.Properties,
	}); err != nil {
		_ = conn.Close()
		return nil, ErrHandshake.WithError(err)
	}

	s.start()
	log.Info("identify sent")
	return s, nil
}

// readHello 读取首帧 HELLO，ctx 结束时中断读取
func readHello(ctx context.Context, conn *websocket.Conn) (time.Duration, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})

	_, data, err := conn.ReadMessage()
	if !stop() {
		return 0, ErrHandshake.WithError(ctx.Err())
	}
	if err != nil {
		return 0, ErrHandshake.WithError(err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	event, err := gateway.DecodeEvent(data)
	if err != nil {
		return 0, ErrHandshake.WithError(err)
	}
	if event.Op != gateway.OpHello {
		return 0, ErrHandshake.WithMessagef("wsshard: expected hello, got op %d", event.Op)
	}

	var h hello
	if err := json.Unmarshal(event.Data, &h); err != nil {
		return 0, ErrHandshake.WithError(err)
	}
	if h.HeartbeatInterval <= 0 {
		return 0, ErrHandshake.WithMessagef("wsshard: invalid heartbeat interval %d", h.HeartbeatInterval)
	}
	return time.Duration(h.HeartbeatInterval) * time.Millisecond, nil
}

// gatewayURL 追加版本与编码参数
func gatewayURL(raw string, version int) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("v", strconv.Itoa(version))
	q.Set("encoding", "json")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
