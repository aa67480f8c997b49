package relay

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Writer is the subset of kafka.Writer the sink needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes messages to one Kafka topic keyed by book.
type KafkaSink struct {
	w Writer
}

var _ Sink = (*KafkaSink)(nil)

// NewKafkaSink creates a sink writing to topic on the given brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return NewKafkaSinkWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	})
}

// NewKafkaSinkWithWriter allows injecting a test writer.
func NewKafkaSinkWithWriter(w Writer) *KafkaSink {
	return &KafkaSink{w: w}
}

func (s *KafkaSink) Send(ctx context.Context, key string, payload []byte) error {
	return s.w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload})
}

func (s *KafkaSink) Close() error { return s.w.Close() }
