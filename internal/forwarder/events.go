package forwarder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/relaylight/internal/infrastructure/mqtt"
)

// Publisher announces newly created records to the forwarder.
type Publisher interface {
	PublishCreated(ctx context.Context, id string) error
}

// EventBus is the subset of *mqtt.Client used for creation events.
type EventBus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// createdEvent is the payload of a record creation event.
type createdEvent struct {
	ID string `json:"id"`
}

// MQTTPublisher publishes creation events to the broker.
type MQTTPublisher struct {
	bus EventBus
	qos byte
}

// NewMQTTPublisher creates a publisher on the command-created topic.
func NewMQTTPublisher(bus EventBus, qos byte) *MQTTPublisher {
	return &MQTTPublisher{bus: bus, qos: qos}
}

// PublishCreated announces record id.
func (p *MQTTPublisher) PublishCreated(_ context.Context, id string) error {
	payload, err := json.Marshal(createdEvent{ID: id})
	if err != nil {
		return fmt.Errorf("marshalling created event: %w", err)
	}
	if err := p.bus.Publish(mqtt.Topics{}.CommandCreated(), payload, p.qos, false); err != nil {
		return fmt.Errorf("publishing created event %s: %w", id, err)
	}
	return nil
}

// Subscribe dispatches every creation event on the bus to f.
// Deliveries run under ctx; cancel it to abandon queued slots on shutdown.
func Subscribe(ctx context.Context, bus EventBus, qos byte, f *Forwarder) error {
	handler := func(_ string, payload []byte) error {
		var ev createdEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("decoding created event: %w", err)
		}
		if ev.ID == "" {
			return fmt.Errorf("created event without id")
		}
		f.Dispatch(ctx, ev.ID)
		return nil
	}
	if err := bus.Subscribe(mqtt.Topics{}.CommandCreated(), qos, handler); err != nil {
		return fmt.Errorf("subscribing to created events: %w", err)
	}
	return nil
}

// Unsubscribe stops taking creation events from bus. Deliveries already
// dispatched keep running; use Forwarder.Wait for those.
func Unsubscribe(bus EventBus) error {
	if err := bus.Unsubscribe(mqtt.Topics{}.CommandCreated()); err != nil {
		return fmt.Errorf("unsubscribing from created events: %w", err)
	}
	return nil
}

// InlinePublisher hands creation events straight to a local Forwarder.
// It is used when no broker is configured.
type InlinePublisher struct {
	ctx context.Context //nolint:containedctx // lifetime of background deliveries
	f   *Forwarder
}

// NewInlinePublisher creates a publisher that dispatches under ctx.
func NewInlinePublisher(ctx context.Context, f *Forwarder) *InlinePublisher {
	return &InlinePublisher{ctx: ctx, f: f}
}

// PublishCreated dispatches id in the background. The request context is
// not used, so delivery outlives the API call that created the record.
func (p *InlinePublisher) PublishCreated(_ context.Context, id string) error {
	p.f.Dispatch(p.ctx, id)
	return nil
}
