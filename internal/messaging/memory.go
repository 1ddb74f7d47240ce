package messaging

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"
)

// NewMemoryChannel builds the in-process channel shared by the flow controllers and the
// presentation layer. It does not persist: late subscribers never replay old flow events.
// Publish returns once every subscriber acked, so one publisher's messages reach each
// subscriber in order. Subscribers must ack every message.
func NewMemoryChannel() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            64,
		BlockPublishUntilSubscriberAck: true,
	}, watermill.NopLogger{})
}

// MemoryPublisher publishes to one topic. Closing it closes the shared channel.
type MemoryPublisher struct {
	topic   string
	channel *gochannel.GoChannel
}

func NewMemoryPublisher(channel *gochannel.GoChannel, topic string) IPublisher {
	return &MemoryPublisher{topic: topic, channel: channel}
}

func (p *MemoryPublisher) Publish(messages ...*message.Message) error {
	return p.channel.Publish(p.topic, messages...)
}

func (p *MemoryPublisher) Close() error {
	return p.channel.Close()
}

// MemorySubscriber streams one topic until its context is done or it is closed.
// Closing it leaves the shared channel open for other subscribers.
type MemorySubscriber struct {
	topic   string
	channel *gochannel.GoChannel
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewMemorySubscriber(ctx context.Context, channel *gochannel.GoChannel, topic string) ISubscriber {
	ctx, cancel := context.WithCancel(ctx)
	return &MemorySubscriber{topic: topic, channel: channel, ctx: ctx, cancel: cancel}
}

func (s *MemorySubscriber) Subscribe() <-chan *message.Message {
	messages, err := s.channel.Subscribe(s.ctx, s.topic)
	if err != nil {
		zap.L().Error("Failed to subscribe to flow topic", zap.String("topic", s.topic), zap.Error(err))
		return nil
	}
	return messages
}

func (s *MemorySubscriber) Close() error {
	s.cancel()
	return nil
}
