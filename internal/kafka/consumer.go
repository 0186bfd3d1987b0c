package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"

	"github.com/boost-marketplace/internal/config"
	"github.com/boost-marketplace/internal/domain"
)

// EventSink receives order events read from the bus
type EventSink interface {
	BroadcastOrderEvent(event domain.OrderEvent)
}

// Consumer reads order events from Kafka and hands them to the local hub.
// Each server instance uses its own group id so every instance sees every event.
type Consumer struct {
	config        *config.KafkaConfig
	sink          EventSink
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, sink EventSink, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		sink:          sink,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start joins the consumer group and returns once the first session is set
// up. Rebalances are handled by rejoining until Stop is called.
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	handler := &consumerGroupHandler{
		sink:   c.sink,
		logger: c.logger,
		ready:  c.ready,
	}

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		for c.ctx.Err() == nil {
			err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler)
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			if err != nil {
				c.logger.Error("consume session ended", "error", err)
			}
		}
	}()
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	select {
	case <-c.ready:
		c.logger.Info("Kafka consumer ready")
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// Stop leaves the consumer group and waits for in-flight messages
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	if err := c.consumerGroup.Close(); err != nil {
		return fmt.Errorf("closing consumer group: %w", err)
	}
	return nil
}

// DecodeEvent parses an order event message
func DecodeEvent(value []byte) (domain.OrderEvent, error) {
	var event domain.OrderEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return event, fmt.Errorf("decoding order event: %w", err)
	}
	if event.Order.ID == "" || event.Order.UserID == "" {
		return event, fmt.Errorf("%w: order event without order or owner id", domain.ErrInvalidRequest)
	}
	switch event.Type {
	case domain.OrderEventCreated, domain.OrderEventUpdated:
	default:
		return event, fmt.Errorf("%w: unknown event type %q", domain.ErrInvalidRequest, event.Type)
	}
	return event, nil
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler. ready is
// closed when the first session is set up.
type consumerGroupHandler struct {
	sink   EventSink
	logger *slog.Logger
	ready  chan bool
	once   sync.Once
}

func (h *consumerGroupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.once.Do(func() { close(h.ready) })
	h.logger.Debug("consumer session started", "member_id", session.MemberID(), "generation", session.GenerationID())
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim forwards messages from a topic partition to the sink
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil

		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			event, err := DecodeEvent(message.Value)
			if err != nil {
				h.logger.Warn("skipping order event",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				session.MarkMessage(message, "")
				continue
			}

			h.sink.BroadcastOrderEvent(event)
			session.MarkMessage(message, "")
		}
	}
}
