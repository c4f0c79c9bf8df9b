// Package notify publishes session lifecycle events to Kafka so downstream
// consumers (dashboards, exporters) can react to finished runs. The
// publisher is optional: when no broker is configured the service runs
// without it.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"
)

// SessionEvent is the message emitted when a processing run finishes.
type SessionEvent struct {
	SessionID     string    `json:"session_id"`
	Status        string    `json:"status"`
	Trades        int       `json:"trades"`
	RealizedGains int       `json:"realized_gains"`
	MissingPrices []string  `json:"missing_prices,omitempty"`
	CompletedAt   time.Time `json:"completed_at"`
}

// Publisher sends session events to a Kafka topic.
type Publisher struct {
	producer *kafka.Producer
	topic    string
	logger   *logrus.Logger
}

// NewPublisher creates a Kafka producer against the given broker and starts
// the delivery report handler.
func NewPublisher(broker, topic string, logger *logrus.Logger) (*Publisher, error) {
	config := kafka.ConfigMap{
		"bootstrap.servers": broker,
	}

	producer, err := kafka.NewProducer(&config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	p := &Publisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
	p.deliveryReport()
	logger.Info("Kafka Producer initialized successfully")
	return p, nil
}

// PublishSessionEvent marshals and produces one session event. Delivery is
// fire-and-forget; failures are logged by the delivery report handler.
func (p *Publisher) PublishSessionEvent(event SessionEvent) error {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}

	topic := p.topic
	err = p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.SessionID),
		Value:          jsonData,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to produce session event: %w", err)
	}
	return nil
}

// deliveryReport handles Kafka message delivery reports.
func (p *Publisher) deliveryReport() {
	go func() {
		for e := range p.producer.Events() {
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					p.logger.Errorf("Message delivery failed: %v", ev.TopicPartition.Error)
				}
			}
		}
	}()
}

// Close flushes pending messages and shuts the producer down.
func (p *Publisher) Close() {
	p.producer.Flush(5000)
	p.producer.Close()
}
