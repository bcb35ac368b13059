package evaluator

import (
	"context"
	"fmt"

	"github.com/robert-nguyenn/strategy-engine/internal/models"
	"github.com/robert-nguyenn/strategy-engine/internal/storage"
)

// StreamActionPublisher publishes action-required events to a Redis stream
// using the flat field-map wire format.
type StreamActionPublisher struct {
	redis  storage.RedisClient
	stream string
}

// NewStreamActionPublisher creates a publisher for the given stream.
func NewStreamActionPublisher(redis storage.RedisClient, stream string) *StreamActionPublisher {
	return &StreamActionPublisher{redis: redis, stream: stream}
}

// PublishAction publishes one event. JSON sub-objects are encoded as string
// fields per the wire contract.
func (p *StreamActionPublisher) PublishAction(ctx context.Context, event *models.ActionRequiredEvent) error {
	values, err := event.ToStreamValues()
	if err != nil {
		return fmt.Errorf("failed to serialize action event: %w", err)
	}
	if err := p.redis.PublishToStream(ctx, p.stream, values); err != nil {
		return fmt.Errorf("failed to publish action event: %w", err)
	}
	return nil
}
