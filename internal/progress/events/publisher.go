package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = LogPublisher{}
)

// KafkaPublisher writes events to one topic, keyed by user id so a user's events stay ordered.
// The writer is created on first use.
type KafkaPublisher struct {
	brokers []string
	topic   string

	mu     sync.Mutex
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		brokers: brokers,
		topic:   topic,
	}
}

func (p *KafkaPublisher) getWriter() *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer == nil {
		p.writer = &kafka.Writer{
			Addr:         kafka.TCP(p.brokers...),
			Topic:        p.topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			// the dispatcher hands over whole batches, no need to wait for more
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
		}
	}
	return p.writer
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		message, err := toMessage(event)
		if err != nil {
			return err
		}
		messages = append(messages, message)
	}
	return p.getWriter().WriteMessages(ctx, messages...)
}

func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer == nil {
		return nil
	}
	err := p.writer.Close()
	p.writer = nil
	return err
}

func toMessage(event Event) (kafka.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event [%s]: %w", event.UUID, err)
	}
	return kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
		Time:  event.Timestamp.UTC(),
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "event-uuid", Value: []byte(event.UUID)},
		},
	}, nil
}

// LogPublisher is used when no kafka brokers are configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, events ...Event) error {
	for _, event := range events {
		log.Debugf("event [%s] [%s] for user [%s]: %v", event.Type, event.UUID, event.UserID, event.Data)
	}
	return nil
}

func (LogPublisher) Close() error {
	return nil
}
