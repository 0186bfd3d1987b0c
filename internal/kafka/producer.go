package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"github.com/boost-marketplace/internal/config"
	"github.com/boost-marketplace/internal/domain"
	"github.com/boost-marketplace/internal/metrics"
)

// eventTypeHeader carries the event type so consumers can route without decoding.
const eventTypeHeader = "event-type"

// Producer publishes order events to Kafka
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewSaramaConfig returns the producer settings shared by the server and the event-producer tool
func NewSaramaConfig(cfg *config.KafkaConfig) *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Retry.Max = cfg.RetryAttempts
	saramaConfig.Producer.Retry.Backoff = cfg.RetryDelay
	saramaConfig.Producer.Timeout = cfg.PublishTimeout
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	return saramaConfig
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg *config.KafkaConfig, logger *slog.Logger) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}
	return newProducer(producer, cfg.Topic, logger), nil
}

func newProducer(producer sarama.SyncProducer, topic string, logger *slog.Logger) *Producer {
	return &Producer{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// EncodeEvent builds the Kafka message for an order event. Messages are keyed
// by order id so every event for one order lands on the same partition.
func EncodeEvent(topic string, event domain.OrderEvent) (*sarama.ProducerMessage, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encoding order event: %w", err)
	}
	return &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.Order.ID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte(eventTypeHeader), Value: []byte(event.Type)},
		},
		Timestamp: event.Timestamp,
	}, nil
}

// PublishOrderEvent sends an order event and waits for the broker to acknowledge it
func (p *Producer) PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := EncodeEvent(p.topic, event)
	if err != nil {
		return err
	}

	partition, offset, err := p.producer.SendMessage(msg)
	metrics.RecordEventPublished(string(event.Type), err == nil)
	if err != nil {
		return fmt.Errorf("publishing order event: %w", err)
	}

	p.logger.Debug("order event published",
		"order_id", event.Order.ID,
		"type", event.Type,
		"partition", partition,
		"offset", offset,
	)
	return nil
}

// Close flushes and closes the producer
func (p *Producer) Close() error {
	return p.producer.Close()
}
