package core

import (
	"context"
	"sync"

	"authflow/internal/messaging"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"
)

// EventsManager owns the in-process channel carrying the flow event topics.
type EventsManager struct {
	channel    *gochannel.GoChannel
	publishers map[string]messaging.IPublisher

	mu        sync.Mutex
	notifiers []*messaging.FlowNotifier
}

func NewEventsManager(topics ...string) *EventsManager {
	manager := &EventsManager{
		channel:    messaging.NewMemoryChannel(),
		publishers: make(map[string]messaging.IPublisher),
	}

	for _, topic := range topics {
		manager.publishers[topic] = messaging.NewMemoryPublisher(manager.channel, topic)
		zap.L().Debug("Initialized publisher", zap.String("topic", topic))
	}

	return manager
}

func (em *EventsManager) GetPublisher(topic string) messaging.IPublisher {
	publisher, exists := em.publishers[topic]
	if !exists {
		zap.L().Warn("Publisher not found", zap.String("topic", topic))
		return nil
	}
	return publisher
}

// Notifier returns a FlowNotifier for topic, or nil when the topic is unknown.
func (em *EventsManager) Notifier(topic string, logger *zap.Logger) *messaging.FlowNotifier {
	publisher := em.GetPublisher(topic)
	if publisher == nil {
		return nil
	}

	notifier := messaging.NewFlowNotifier(publisher, logger)
	em.mu.Lock()
	em.notifiers = append(em.notifiers, notifier)
	em.mu.Unlock()
	return notifier
}

// Subscribe streams topic until ctx is done. Every message must be acked.
func (em *EventsManager) Subscribe(ctx context.Context, topic string) <-chan *message.Message {
	return messaging.NewMemorySubscriber(ctx, em.channel, topic).Subscribe()
}

// Close closes the channel first, releasing any publish waiting on a subscriber ack,
// then stops the notifiers.
func (em *EventsManager) Close() {
	if err := em.channel.Close(); err != nil {
		zap.L().Error("Failed to close event channel", zap.Error(err))
	}

	em.mu.Lock()
	notifiers := em.notifiers
	em.notifiers = nil
	em.mu.Unlock()
	for _, notifier := range notifiers {
		notifier.Close()
	}
}
