// Package kafka provides the transcript-event producer and consumer.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"graceway-go/internal/config"
	"graceway-go/pkg/database"
	"graceway-go/pkg/events"
	"graceway-go/pkg/log"
	"time"

	"github.com/segmentio/kafka-go"
)

// EventProcessor is implemented by anything that can handle a transcript
// event. It decouples the consumer loop from the concrete indexer.
type EventProcessor interface {
	Process(ctx context.Context, event events.TranscriptEvent) error
}

var producer *kafka.Writer

// InitProducer initializes the transcript-event producer.
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka producer initialized")
}

// ProduceTranscriptEvent publishes a transcript event to the topic.
func ProduceTranscriptEvent(event events.TranscriptEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return producer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(event.ConversationID),
			Value: eventBytes,
		},
	)
}

// StartConsumer runs the transcript-event consumer loop.
func StartConsumer(cfg config.KafkaConfig, processor EventProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  "graceway-transcript-indexer",
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka consumer started, listening on topic '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			log.Error("failed to fetch message from Kafka", err)
			break
		}

		var event events.TranscriptEvent
		if err := json.Unmarshal(m.Value, &event); err != nil {
			log.Errorf("failed to decode Kafka message: %v, value: %s", err, string(m.Value))
			// Malformed payload, commit so it does not block the queue.
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("failed to commit malformed message: %v", err)
			}
			continue
		}

		if err := processor.Process(context.Background(), event); err != nil {
			log.Errorf("failed to process transcript event: conversation=%s, error: %v", event.ConversationID, err)
			// Count failures in Redis; give up and commit after three attempts.
			attemptsKey := fmt.Sprintf("kafka:attempts:%s", event.ConversationID)
			attempts, incErr := database.RDB.Incr(context.Background(), attemptsKey).Result()
			if incErr == nil {
				_ = database.RDB.Expire(context.Background(), attemptsKey, 24*time.Hour).Err()
			}
			if incErr != nil {
				// Redis unavailable: leave the offset uncommitted so Kafka retries.
				continue
			}
			if attempts >= 3 {
				log.Errorf("transcript event failed repeatedly, committing offset: conversation=%s", event.ConversationID)
				if err := r.CommitMessages(context.Background(), m); err != nil {
					log.Errorf("failed to commit Kafka offset: %v", err)
				}
			}
		} else {
			_ = database.RDB.Del(context.Background(), fmt.Sprintf("kafka:attempts:%s", event.ConversationID)).Err()
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("failed to commit Kafka offset: %v", err)
			}
		}
	}

	if err := r.Close(); err != nil {
		log.Fatalf("failed to close Kafka consumer: %v", err)
	}
}
