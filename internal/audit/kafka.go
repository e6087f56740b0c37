package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/cargo-dispatch/internal/models"
)

// KafkaRecorder mirrors audit events onto a kafka topic for downstream
// inspection tooling. Fire-and-forget, same policy as the store sink.
type KafkaRecorder struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewKafkaRecorder(brokers []string, topic string, logger *slog.Logger) *KafkaRecorder {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaRecorder{writer: w, logger: logger}
}

func (r *KafkaRecorder) Record(ctx context.Context, e models.AuditEvent) {
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(e)
	if err := r.writer.WriteMessages(wctx, kafka.Message{Key: []byte(e.RecordID), Value: b}); err != nil && r.logger != nil {
		r.logger.Error("audit publish failed", "action", e.Action, "error", err)
	}
}

func (r *KafkaRecorder) Close() error {
	if r.writer == nil {
		return nil
	}
	return r.writer.Close()
}
