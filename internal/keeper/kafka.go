package keeper

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/segmentio/kafka-go"
)

// KafkaSignalSource consumes JSON signals from a Kafka topic.
type KafkaSignalSource struct {
	reader *kafka.Reader
	logger *log.Logger
}

// NewKafkaSignalSource creates a consumer in groupID for topic.
func NewKafkaSignalSource(brokers []string, groupID, topic string, logger *log.Logger) *KafkaSignalSource {
	if logger == nil {
		logger = log.Default()
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   topic,
	})
	return &KafkaSignalSource{reader: reader, logger: logger}
}

// Name returns the source name.
func (s *KafkaSignalSource) Name() string { return "kafka" }

// Run reads messages and passes them to handle. Malformed messages are
// logged and skipped; a handler error is logged and the offset still advances.
func (s *KafkaSignalSource) Run(ctx context.Context, handle Handler) error {
	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			return fmt.Errorf("kafka read: %w", err)
		}

		sig, err := DecodeSignal(msg.Value)
		if err != nil {
			s.logger.Printf("skip message partition=%d offset=%d: %v", msg.Partition, msg.Offset, err)
			continue
		}
		sig.Source = s.Name()
		sig.Offset = msg.Offset
		if sig.Timestamp == 0 {
			sig.Timestamp = msg.Time.Unix()
		}
		sig.ensureID()

		if err := handle(ctx, sig); err != nil {
			s.logger.Printf("kafka signal %s: %v", shortID(sig.ID), err)
		}
	}
}

// Close closes the underlying Kafka reader.
func (s *KafkaSignalSource) Close() error {
	return s.reader.Close()
}
