package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tablebook/internal/shared/config"
	"tablebook/pkg/logger"

	"github.com/IBM/sarama"
)

// KafkaBackplane carries events over one topic. Every instance reads with its own
// consumer group so each sees the whole stream.
type KafkaBackplane struct {
	producer sarama.SyncProducer
	group    sarama.ConsumerGroup
	topic    string
	log      *logger.Logger
}

func NewKafkaBackplane(cfg config.KafkaConfig, instanceID string, log *logger.Logger) (*KafkaBackplane, error) {
	if log == nil {
		log = logger.GetDefault()
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Timeout = 10 * time.Second
	// one partition per business keeps a business's events in order
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Offsets.AutoCommit.Interval = time.Second

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	groupID := cfg.GroupIDPrefix + "-" + instanceID
	group, err := sarama.NewConsumerGroup(cfg.Brokers, groupID, saramaConfig)
	if err != nil {
		producer.Close()
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &KafkaBackplane{
		producer: producer,
		group:    group,
		topic:    cfg.Topic,
		log:      log.WithComponent("kafka_backplane"),
	}, nil
}

func (k *KafkaBackplane) Publish(_ context.Context, msg Message) error {
	data, err := msg.encode()
	if err != nil {
		return err
	}
	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(msg.BusinessID.String()),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(msg.Event.Type)},
			{Key: []byte("origin"), Value: []byte(msg.Origin)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send event to Kafka: %w", err)
	}
	return nil
}

func (k *KafkaBackplane) Run(ctx context.Context, handle func(Message)) error {
	go func() {
		for err := range k.group.Errors() {
			k.log.Warn("Consumer group error", logger.Err(err))
		}
	}()

	handler := &kafkaHandler{handle: handle, log: k.log}
	for {
		err := k.group.Consume(ctx, []string{k.topic}, handler)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, sarama.ErrClosedConsumerGroup) {
			return nil
		}
		if err != nil {
			k.log.Warn("Consume failed, retrying", logger.Err(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

func (k *KafkaBackplane) Close() error {
	return errors.Join(k.group.Close(), k.producer.Close())
}

type kafkaHandler struct {
	handle func(Message)
	log    *logger.Logger
}

func (h *kafkaHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *kafkaHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *kafkaHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case m, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			msg, err := decodeMessage(m.Value)
			if err != nil {
				h.log.Warn("Skipping undecodable message", "offset", m.Offset, logger.Err(err))
			} else {
				h.handle(msg)
			}
			session.MarkMessage(m, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
