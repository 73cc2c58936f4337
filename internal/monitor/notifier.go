package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// LogNotifier writes alerts to the structured log. It is the default sink
// for deployments without a broker.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, alert Alert) error {
	attrs := []any{
		"type", string(alert.Type),
		"severity", string(alert.Severity),
		"recommended_action", alert.RecommendedAction,
	}
	if alert.IdentityID != nil {
		attrs = append(attrs, "identity_id", alert.IdentityID.String())
	}
	n.logger.Warn("security alert", attrs...)
	return nil
}

// KafkaNotifier publishes alerts to a Kafka topic for downstream SIEM
// consumption.
type KafkaNotifier struct {
	client *kgo.Client
	topic  string
}

// NewKafkaNotifier connects a producer to the given brokers.
func NewKafkaNotifier(brokers []string, topic string) (*KafkaNotifier, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaNotifier{client: client, topic: topic}, nil
}

type alertPayload struct {
	Severity          string         `json:"severity"`
	Type              string         `json:"type"`
	IdentityID        string         `json:"identity_id,omitempty"`
	Evidence          map[string]any `json:"evidence,omitempty"`
	RecommendedAction string         `json:"recommended_action"`
	Timestamp         string         `json:"timestamp"`
}

func (n *KafkaNotifier) Notify(ctx context.Context, alert Alert) error {
	payload := alertPayload{
		Severity:          string(alert.Severity),
		Type:              string(alert.Type),
		Evidence:          alert.Evidence,
		RecommendedAction: alert.RecommendedAction,
		Timestamp:         alert.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	var key []byte
	if alert.IdentityID != nil {
		payload.IdentityID = alert.IdentityID.String()
		key = []byte(payload.IdentityID)
	}

	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	record := &kgo.Record{Key: key, Value: value}
	if err := n.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// Close flushes and releases the producer.
func (n *KafkaNotifier) Close() {
	n.client.Close()
}
