package wsshard

import "github.com/tokmz/qigate/pkg/errors"

// 错误定义
var (
	ErrMissingURL         = errors.New(4101, "wsshard: gateway url is required")
	ErrHandshake          = errors.New(4102, "wsshard: handshake failed")
	ErrHeartbeatTimeout   = errors.New(4103, "wsshard: heartbeat ack not received")
	ErrReconnectRequested = errors.New(4104, "wsshard: gateway requested reconnect")
	ErrInvalidSession     = errors.New(4105, "wsshard: session invalidated")
	ErrUnsupportedFrame   = errors.New(4106, "wsshard: unsupported frame type")
)
