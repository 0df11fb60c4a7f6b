package relay

import (
	"context"

	"go.uber.org/multierr"

	"github.com/tokmz/qigate/pkg/errors"
)

// ErrPublish 发布失败
var ErrPublish = errors.New(4301, "relay: publish failed")

// Publisher 消息发布者
type Publisher interface {
	Publish(ctx context.Context, record Record) error
	Close() error
}

// Multi 同时发布到多个 Publisher
type Multi []Publisher

// Publish 发布到所有 Publisher，错误合并返回
func (m Multi) Publish(ctx context.Context, record Record) error {
	var errs error
	for _, p := range m {
		errs = multierr.Append(errs, p.Publish(ctx, record))
	}
	return errs
}

// Close 关闭所有 Publisher
func (m Multi) Close() error {
	var errs error
	for _, p := range m {
		errs = multierr.Append(errs, p.Close())
	}
	return errs
}
