package relay

import (
	"context"
	"strconv"
	"time"

	"github.com/IBM/sarama"
)

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Brokers  []string      `mapstructure:"brokers"`
	Topic    string        `mapstructure:"topic"`
	ClientID string        `mapstructure:"client_id"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Kafka 基于 sarama.SyncProducer 的发布者
//
// 消息 key 为分片 ID，同一分片的事件落在同一分区。
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafka 连接 Kafka
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, ErrPublish.WithMessage("relay: kafka brokers and topic are required")
	}

	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Partitioner = sarama.NewHashPartitioner
	if cfg.ClientID != "" {
		config.ClientID = cfg.ClientID
	}
	if cfg.Timeout > 0 {
		config.Producer.Timeout = cfg.Timeout
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, ErrPublish.WithMessage("relay: create kafka producer").WithError(err)
	}
	return NewKafkaWithProducer(producer, cfg.Topic), nil
}

// NewKafkaWithProducer 使用已有的 SyncProducer
func NewKafkaWithProducer(producer sarama.SyncProducer, topic string) *Kafka {
	return &Kafka{producer: producer, topic: topic}
}

// Publish 同步发送
func (k *Kafka) Publish(ctx context.Context, record Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := record.Encode()
	if err != nil {
		return ErrPublish.WithError(err)
	}

	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(strconv.FormatUint(record.ShardID, 10)),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(record.Type)},
			{Key: []byte("record_id"), Value: []byte(record.ID)},
		},
		Timestamp: record.Time,
	})
	if err != nil {
		return ErrPublish.WithMessagef("relay: kafka send to %s", k.topic).WithError(err)
	}
	return nil
}

// Close 关闭生产者
func (k *Kafka) Close() error {
	return k.producer.Close()
}
