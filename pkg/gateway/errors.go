package gateway

import (
	"fmt"

	"github.com/tokmz/qigate/pkg/errors"
)

// 错误定义
var (
	// 配置相关错误
	ErrAutoshardUnsupported = errors.New(2001, "gateway: autosharding is not supported")
	ErrInvalidStrategy      = errors.New(2002, "gateway: invalid sharding strategy")
	ErrInvalidConfig        = errors.New(2003, "gateway: invalid config")

	// 生命周期相关错误
	ErrAlreadyStarted = errors.New(2010, "gateway: manager already started")
	ErrNotStarted     = errors.New(2011, "gateway: manager not started")
	ErrMessagesTaken  = errors.New(2012, "gateway: message stream already taken")
	ErrClosed         = errors.New(2013, "gateway: manager closed")

	// 启动队列相关错误
	ErrQueueFull   = errors.New(2020, "gateway: startup queue full")
	ErrQueueClosed = errors.New(2021, "gateway: startup queue closed")

	// 分片相关错误
	ErrConnectFailed = errors.New(2030, "gateway: shard connect failed")
)

// SinkErrorKind 转发错误类型
type SinkErrorKind int

const (
	// SinkErrSend 共享通道拒绝投递
	SinkErrSend SinkErrorKind = iota + 1
	// SinkErrTransport 分片底层连接错误
	SinkErrTransport
)

// String 返回类型名称
func (k SinkErrorKind) String() string {
	switch k {
	case SinkErrSend:
		return "send"
	case SinkErrTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// SinkError 分片消息转发错误
type SinkError struct {
	Kind    SinkErrorKind
	ShardID ShardID
	Err     error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("gateway: shard %d sink %s error: %v", e.ShardID, e.Kind, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}
