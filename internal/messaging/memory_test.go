package messaging

import (
	"context"
	"testing"
	"time"

	"authflow/internal/models"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

const testTimeout = 2 * time.Second

func receiveOne(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

// publishAsync publishes from another goroutine: Publish waits for the subscribers' acks.
func publishAsync(pub IPublisher, msg *message.Message) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- pub.Publish(msg) }()
	return errCh
}

func TestMemoryPublishAndSubscribe(t *testing.T) {
	ch := NewMemoryChannel()
	pub := NewMemoryPublisher(ch, "test-topic")
	sub := NewMemorySubscriber(context.Background(), ch, "test-topic")
	defer pub.Close()

	msgCh := sub.Subscribe()

	uuid := watermill.NewUUID()
	payload := []byte("hello world")
	errCh := publishAsync(pub, message.NewMessage(uuid, payload))

	msg := receiveOne(t, msgCh)
	if msg.UUID != uuid {
		t.Errorf("expected UUID %s, got %s", uuid, msg.UUID)
	}
	if string(msg.Payload) != string(payload) {
		t.Errorf("expected payload %q, got %q", payload, msg.Payload)
	}
	msg.Ack()

	if err := <-errCh; err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}

func TestMemoryDropsEventsWithoutSubscribers(t *testing.T) {
	ch := NewMemoryChannel()
	pub := NewMemoryPublisher(ch, "test-topic")
	defer pub.Close()

	err := pub.Publish(message.NewMessage(watermill.NewUUID(), []byte("nobody-listens")))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msgCh := NewMemorySubscriber(context.Background(), ch, "test-topic").Subscribe()
	select {
	case m := <-msgCh:
		t.Errorf("late subscriber should not replay old events, got %q", m.Payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryPublisherClose(t *testing.T) {
	ch := NewMemoryChannel()
	pub := NewMemoryPublisher(ch, "test-topic")

	err := pub.Close()
	if err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	err = pub.Publish(message.NewMessage(watermill.NewUUID(), []byte("after-close")))
	if err == nil {
		t.Error("expected error when publishing after Close, got nil")
	}
}

func TestFlowNotifier(t *testing.T) {
	ch := NewMemoryChannel()
	pub := NewMemoryPublisher(ch, "flow")
	defer pub.Close()
	msgCh := NewMemorySubscriber(context.Background(), ch, "flow").Subscribe()

	notifier := NewFlowNotifier(pub, nil)
	defer notifier.Close()
	notifier.Notify(models.FlowEvent{
		SessionID:         "s1",
		Type:              models.FlowEventCooldownTick,
		State:             models.RecoveryStateOTPVerification,
		CooldownRemaining: 59,
	})

	msg := receiveOne(t, msgCh)
	msg.Ack()

	if got := msg.Metadata.Get("type"); got != string(models.FlowEventCooldownTick) {
		t.Errorf("expected type metadata %q, got %q", models.FlowEventCooldownTick, got)
	}

	event, err := DecodeFlowEvent(msg)
	if err != nil {
		t.Fatalf("DecodeFlowEvent failed: %v", err)
	}
	if event.SessionID != "s1" || event.CooldownRemaining != 59 || event.State != models.RecoveryStateOTPVerification {
		t.Errorf("unexpected event %+v", event)
	}
	if event.Seq != 1 {
		t.Errorf("expected seq 1, got %d", event.Seq)
	}
}

func TestFlowNotifierKeepsOrder(t *testing.T) {
	ch := NewMemoryChannel()
	pub := NewMemoryPublisher(ch, "flow")
	defer pub.Close()
	msgCh := NewMemorySubscriber(context.Background(), ch, "flow").Subscribe()

	notifier := NewFlowNotifier(pub, nil)
	defer notifier.Close()

	const count = 200
	for i := count; i > 0; i-- {
		notifier.Notify(models.FlowEvent{Type: models.FlowEventCooldownTick, CooldownRemaining: i})
	}

	for want := count; want > 0; want-- {
		msg := receiveOne(t, msgCh)
		msg.Ack()

		event, err := DecodeFlowEvent(msg)
		if err != nil {
			t.Fatalf("DecodeFlowEvent failed: %v", err)
		}
		if event.CooldownRemaining != want {
			t.Fatalf("expected cooldown %d, got %d", want, event.CooldownRemaining)
		}
		if event.Seq != uint64(count-want+1) {
			t.Fatalf("expected seq %d, got %d", count-want+1, event.Seq)
		}
	}
}

func TestFlowNotifierClose(t *testing.T) {
	ch := NewMemoryChannel()
	pub := NewMemoryPublisher(ch, "flow")
	defer pub.Close()

	notifier := NewFlowNotifier(pub, nil)
	notifier.Close()
	notifier.Close()

	msgCh := NewMemorySubscriber(context.Background(), ch, "flow").Subscribe()
	notifier.Notify(models.FlowEvent{Type: models.FlowEventError})

	select {
	case m := <-msgCh:
		t.Errorf("closed notifier should not publish, got %q", m.Payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNilFlowNotifier(_ *testing.T) {
	var notifier *FlowNotifier
	notifier.Notify(models.FlowEvent{Type: models.FlowEventError})

	NewFlowNotifier(nil, nil).Notify(models.FlowEvent{Type: models.FlowEventError})
}

func TestMemorySubscriberClose(t *testing.T) {
	ch := NewMemoryChannel()
	pub := NewMemoryPublisher(ch, "test-topic")
	defer pub.Close()

	closed := NewMemorySubscriber(context.Background(), ch, "test-topic")
	closedCh := closed.Subscribe()
	open := NewMemorySubscriber(context.Background(), ch, "test-topic")
	openCh := open.Subscribe()

	if err := closed.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	select {
	case _, ok := <-closedCh:
		if ok {
			t.Error("expected the closed subscription to end")
		}
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for the subscription to end")
	}

	errCh := publishAsync(pub, message.NewMessage(watermill.NewUUID(), []byte("still-open")))
	msg := receiveOne(t, openCh)
	msg.Ack()
	if string(msg.Payload) != "still-open" {
		t.Errorf("expected payload still-open, got %q", msg.Payload)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}
