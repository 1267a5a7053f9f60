package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/betbot/jitbot/internal/events"
)

// KafkaConfig kafka 发布配置
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaSink 把成交尝试发布到 kafka（key = 订单签名，保证同一订单有序）
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("journal: kafka brokers and topic are required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.WithError(err).Warnf("kafka 发布失败: %d 条", len(messages))
			}
		},
	}
	return &KafkaSink{writer: w}, nil
}

// EncodeMessage 把事件编码为 kafka 消息
func EncodeMessage(ev events.FillAttemptEvent) (kafka.Message, error) {
	val, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("编码成交事件失败: %w", err)
	}
	return kafka.Message{
		Key:   []byte(ev.Signature),
		Value: val,
		Time:  ev.Timestamp,
		Headers: []kafka.Header{
			{Key: "strategy", Value: []byte(ev.Strategy)},
			{Key: "market", Value: []byte(ev.Market)},
		},
	}, nil
}

func (s *KafkaSink) Record(ctx context.Context, ev events.FillAttemptEvent) error {
	msg, err := EncodeMessage(ev)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, msg)
}

func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
