// Package outbox forwards events written by the stores to Kafka.
package outbox

import (
	"context"
	"time"

	"github.com/richardliu001/marketplace-ledger/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Source is the read side of the outbox table.
type Source interface {
	Poll(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uint64) error
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Relay publishes unprocessed events in creation order. Delivery is at least
// once: an event whose ack fails is published again on the next round.
type Relay struct {
	src Source
	w   MessageWriter
	log *zap.SugaredLogger
}

func NewRelay(src Source, w MessageWriter, logger *zap.SugaredLogger) *Relay {
	return &Relay{src: src, w: w, log: logger}
}

// RunOnce publishes up to limit events and returns how many were acknowledged.
// It stops at the first publish failure so that ordering is preserved.
func (r *Relay) RunOnce(ctx context.Context, limit int) (int, error) {
	events, err := r.src.Poll(ctx, limit)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, evt := range events {
		if err := r.w.WriteMessages(ctx, message(evt)); err != nil {
			r.log.Errorw("publish outbox event", "id", evt.ID, "error", err)
			return sent, err
		}
		if err := r.src.MarkProcessed(ctx, evt.ID); err != nil {
			r.log.Errorw("mark outbox event processed", "id", evt.ID, "error", err)
			return sent, err
		}
		sent++
		r.log.Debugw("event sent", "id", evt.ID, "type", evt.EventType)
	}
	return sent, nil
}

// Run polls every interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, interval time.Duration, limit int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.RunOnce(ctx, limit); err == nil && n > 0 {
				r.log.Infow("outbox relayed", "count", n)
			}
		}
	}
}

func message(evt model.OutboxEvent) kafka.Message {
	return kafka.Message{
		Key:   []byte(evt.AggregateID),
		Value: []byte(evt.Payload),
		Time:  evt.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.EventType)},
			{Key: "aggregate", Value: []byte(evt.Aggregate)},
		},
	}
}
