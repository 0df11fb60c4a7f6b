// Package relay forwards gateway dispatch events to message brokers.
package relay

import (
	"context"

	"go.uber.org/zap"

	"github.com/tokmz/qigate/pkg/gateway"
	"github.com/tokmz/qigate/pkg/logger"
)

// Relay 把分发事件发布到 Publisher
type Relay struct {
	publisher Publisher
	allow     map[string]struct{}
	log       logger.Logger
}

// New 创建 Relay，types 为空时转发所有分发事件
func New(publisher Publisher, log logger.Logger, types ...string) *Relay {
	if log == nil {
		log = logger.Nop()
	}
	allow := make(map[string]struct{}, len(types))
	for _, t := range types {
		allow[t] = struct{}{}
	}
	return &Relay{publisher: publisher, allow: allow, log: log.Named("relay")}
}

// Allowed 事件类型是否需要转发
func (r *Relay) Allowed(eventType string) bool {
	if len(r.allow) == 0 {
		return true
	}
	_, ok := r.allow[eventType]
	return ok
}

// Handle 处理一条事件，非分发事件或未放行的类型直接忽略
func (r *Relay) Handle(ctx context.Context, shardID gateway.ShardID, event *gateway.Event) error {
	if !event.IsDispatch() || !r.Allowed(event.Type) {
		return nil
	}

	record := NewRecord(shardID, event)
	if err := r.publisher.Publish(ctx, record); err != nil {
		r.log.Error("failed to relay event",
			logger.ShardID(shardID),
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// Close 关闭 Publisher
func (r *Relay) Close() error {
	return r.publisher.Close()
}
