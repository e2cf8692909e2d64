// Package stream fans accepted events out to downstream consumers.
// Publishing happens after the durable write and is best effort.
package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/vipinuengage/funnel-system/internal/event"
)

type Publisher interface {
	Publish(ctx context.Context, tenantID string, events []event.Event) error
	Close() error
}

// Kafka publishes accepted events to one topic, keyed by tenant so a
// tenant's stream stays ordered per partition.
type Kafka struct {
	writer *kafka.Writer
}

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchSize:    100,
			BatchTimeout: time.Millisecond * 100,
			Async:        true,
		},
	}
}

func (k *Kafka) Publish(ctx context.Context, tenantID string, events []event.Event) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(tenantID),
			Value: data,
		})
	}
	return k.writer.WriteMessages(ctx, msgs...)
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
