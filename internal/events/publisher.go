package events

import (
	"context"
	"encoding/json"
	"time"

	k "github.com/segmentio/kafka-go"
)

// Publisher ships domain events to downstream services. It is not used for
// socket fan-out.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Envelope) error { return nil }
func (NoopPublisher) Close() error                            { return nil }

type KafkaPublisher struct {
	w *k.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &k.Writer{
		Addr:         k.TCP(brokers...),
		Topic:        topic,
		Balancer:     &k.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: k.RequireOne,
		Async:        true,
	}
	return &KafkaPublisher{w: w}
}

// Publish keys by aggregate id so events for one chat stay on one partition.
func (p *KafkaPublisher) Publish(ctx context.Context, env Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, k.Message{
		Key:   []byte(env.AggregateType + ":" + env.AggregateID),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []k.Header{
			{Key: "event_type", Value: []byte(env.EventType)},
		},
	})
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }
