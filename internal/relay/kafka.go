package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"bidline/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events to one topic keyed by project id, so the
// events of a project stay ordered within a partition.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka sink requires at least one broker")
	}
	if topic == "" {
		topic = "bidline.events"
	}
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topic: topic,
	}, nil
}

func (s *KafkaSink) Name() string { return "kafka:" + s.topic }

func (s *KafkaSink) Deliver(ctx context.Context, evt domain.Event) error {
	data, err := json.Marshal(NewEnvelope(evt))
	if err != nil {
		return err
	}
	key := evt.ProjectID
	if key == "" {
		key = evt.EntityID
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Topic:   s.topic,
		Key:     []byte(key),
		Value:   data,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(evt.Type)}},
		Time:    time.Now().UTC(),
	})
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
