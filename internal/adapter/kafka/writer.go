package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
)

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes one message per scored record to a Kafka topic.
// It implements domain.ResultSink.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the results topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "kafka" }

// Publish serializes every record of the batch and writes them in a single
// WriteMessages call. Records are keyed by identifier so updates to the same
// entity land on the same partition.
func (w *Writer) Publish(ctx context.Context, batch domain.ResultBatch) error {
	if len(batch.Records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(batch.Records))
	for i := range batch.Records {
		msg, err := serializeToMessage(batch, batch.Records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d %s results: %w", len(msgs), batch.Domain, err)
	}
	w.logger.Debug("results published", "domain", batch.Domain, "run_id", batch.RunID, "messages", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// resultMessage is the JSON value of a published record.
type resultMessage struct {
	ID           string            `json:"id"`
	Domain       domain.Domain     `json:"domain"`
	RunID        string            `json:"run_id"`
	City         string            `json:"city"`
	Lat          *float64          `json:"lat"`
	Lon          *float64          `json:"lon"`
	PredictedCO2 float64           `json:"predicted_co2"`
	Status       domain.Status     `json:"status"`
	Fields       map[string]string `json:"fields"`
}

// serializeToMessage marshals a scored record into a Kafka message.
func serializeToMessage(batch domain.ResultBatch, rec domain.ScoredRecord) (kafkago.Message, error) {
	fields := make(map[string]string, len(rec.Record.Cells))
	for i, h := range batch.Table.Header {
		if i < len(rec.Record.Cells) {
			fields[h] = rec.Record.Cells[i]
		}
	}
	m := resultMessage{
		ID:           rec.Record.ID,
		Domain:       batch.Domain,
		RunID:        batch.RunID,
		City:         rec.Record.City,
		PredictedCO2: rec.PredictedCO2,
		Status:       rec.Status,
		Fields:       fields,
	}
	if rec.Coord.Valid {
		lat, lon := rec.Coord.Lat, rec.Coord.Lon
		m.Lat, m.Lon = &lat, &lon
	}

	data, err := json.Marshal(m)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize result %s: %w", rec.Record.ID, err)
	}
	return kafkago.Message{
		Key:   []byte(rec.Record.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "domain", Value: []byte(batch.Domain)},
			{Key: "status", Value: []byte(rec.Status)},
			{Key: "run_id", Value: []byte(batch.RunID)},
			{Key: "completed_at", Value: []byte(batch.CompletedAt.Format(time.RFC3339))},
		},
	}, nil
}
