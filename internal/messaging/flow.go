package messaging

import (
	"encoding/json"
	"fmt"
	"sync"

	"authflow/internal/models"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// FlowNotifier publishes flow events in the order Notify was called. A single dispatcher
// goroutine publishes them, so Notify never waits for subscribers.
// A nil *FlowNotifier is valid and drops events.
type FlowNotifier struct {
	publisher IPublisher
	logger    *zap.Logger

	mu      sync.Mutex
	queue   []models.FlowEvent
	seq     uint64
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

func NewFlowNotifier(publisher IPublisher, logger *zap.Logger) *FlowNotifier {
	if publisher == nil {
		return nil
	}
	if logger == nil {
		logger = zap.L()
	}
	n := &FlowNotifier{
		publisher: publisher,
		logger:    logger,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go n.dispatch()
	return n
}

// Notify stamps event with the next sequence number and queues it. It never fails the
// caller: a flow keeps working when nobody listens.
func (n *FlowNotifier) Notify(event models.FlowEvent) {
	if n == nil {
		return
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.seq++
	event.Seq = n.seq
	n.queue = append(n.queue, event)
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// Close stops the dispatcher. Queued events that were not published yet are dropped.
// Close the underlying channel first when a subscriber may have stopped acking.
func (n *FlowNotifier) Close() {
	if n == nil {
		return
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.mu.Unlock()

	close(n.done)
	<-n.stopped
}

func (n *FlowNotifier) dispatch() {
	defer close(n.stopped)

	for {
		select {
		case <-n.done:
			return
		case <-n.wake:
		}

		for {
			n.mu.Lock()
			batch := n.queue
			n.queue = nil
			n.mu.Unlock()
			if len(batch) == 0 {
				break
			}

			for _, event := range batch {
				select {
				case <-n.done:
					return
				default:
				}
				n.publish(event)
			}
		}
	}
}

func (n *FlowNotifier) publish(event models.FlowEvent) {
	msg, err := EncodeFlowEvent(event)
	if err != nil {
		n.logger.Error("Failed to encode flow event", zap.Error(err))
		return
	}
	if err = n.publisher.Publish(msg); err != nil {
		n.logger.Warn("Failed to publish flow event",
			zap.String("type", string(event.Type)),
			zap.Uint64("seq", event.Seq),
			zap.Error(err))
	}
}

func EncodeFlowEvent(event models.FlowEvent) (*message.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal flow event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("type", string(event.Type))
	return msg, nil
}

func DecodeFlowEvent(msg *message.Message) (models.FlowEvent, error) {
	var event models.FlowEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return models.FlowEvent{}, fmt.Errorf("failed to unmarshal flow event: %w", err)
	}
	return event, nil
}
