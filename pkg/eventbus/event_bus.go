// Package eventbus publishes run lifecycle events over watermill.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/helixcrm/automation/pkg/events"
)

// EventBus publishes run lifecycle notifications.
type EventBus interface {
	Publish(ctx context.Context, event events.Event) error
	Close() error
}

// WatermillEventBus publishes lifecycle events through a watermill publisher.
type WatermillEventBus struct {
	publisher message.Publisher
}

// NewWatermillEventBus wraps a watermill publisher.
func NewWatermillEventBus(publisher message.Publisher) *WatermillEventBus {
	return &WatermillEventBus{publisher: publisher}
}

// NewGoChannelEventBus creates an in-process event bus. The returned pub/sub
// serves both sides, which is all a single-process runner needs; swapping in
// a broker-backed publisher is a constructor change.
func NewGoChannelEventBus(logger watermill.LoggerAdapter) (*WatermillEventBus, *gochannel.GoChannel) {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: 1000,
			Persistent:          false,
		},
		logger,
	)

	return NewWatermillEventBus(pubSub), pubSub
}

// Publish serializes the event and publishes it on the runs topic.
func (eb *WatermillEventBus) Publish(_ context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewULID(), payload)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	err = eb.publisher.Publish(events.Topic, msg)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Close closes the underlying publisher.
func (eb *WatermillEventBus) Close() error {
	return eb.publisher.Close()
}
