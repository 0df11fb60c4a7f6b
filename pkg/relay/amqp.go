package relay

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/multierr"
)

// AMQPConfig RabbitMQ 配置
type AMQPConfig struct {
	URL          string `mapstructure:"url"`
	Exchange     string `mapstructure:"exchange"`
	ExchangeType string `mapstructure:"exchange_type"` // 为空时不声明 exchange
	Durable      bool   `mapstructure:"durable"`
}

// amqpChannel 发布所需的 channel 方法
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP RabbitMQ 发布者，routing key 为事件类型
type AMQP struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
}

// NewAMQP 连接 RabbitMQ 并按需声明 exchange
func NewAMQP(cfg AMQPConfig) (*AMQP, error) {
	if cfg.URL == "" {
		return nil, ErrPublish.WithMessage("relay: amqp url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, ErrPublish.WithMessage("relay: connect to rabbitmq").WithError(err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, ErrPublish.WithMessage("relay: open amqp channel").WithError(err)
	}

	if cfg.Exchange != "" && cfg.ExchangeType != "" {
		if err := ch.ExchangeDeclare(cfg.Exchange, cfg.ExchangeType, cfg.Durable, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, ErrPublish.WithMessage("relay: declare exchange").WithError(err)
		}
	}

	return &AMQP{conn: conn, ch: ch, exchange: cfg.Exchange}, nil
}

// Publish 发布一条持久化消息
func (a *AMQP) Publish(ctx context.Context, record Record) error {
	body, err := record.Encode()
	if err != nil {
		return ErrPublish.WithError(err)
	}

	err = a.ch.PublishWithContext(ctx, a.exchange, record.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    record.ID,
		Type:         record.Type,
		Timestamp:    record.Time,
		Body:         body,
	})
	if err != nil {
		return ErrPublish.WithMessagef("relay: amqp publish %s", record.Type).WithError(err)
	}
	return nil
}

// Close 关闭 channel 和连接
func (a *AMQP) Close() error {
	err := a.ch.Close()
	if a.conn != nil {
		err = multierr.Append(err, a.conn.Close())
	}
	return err
}
