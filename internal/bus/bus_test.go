package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestChannelBusPublishSubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var received atomic.Int64
	var lastPayload atomic.Value

	sub, err := b.Subscribe(ctx, domain.TopicCaseReceived, func(ctx context.Context, msg *domain.Message) error {
		received.Add(1)
		lastPayload.Store(string(msg.Payload))
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	if err := b.Publish(ctx, domain.TopicCaseReceived, []byte(`{"case_id":"demo"}`)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	deadline := time.After(time.Second)
	for received.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("message never delivered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if got := lastPayload.Load().(string); got != `{"case_id":"demo"}` {
		t.Errorf("payload = %q", got)
	}
}

func TestChannelBusTopicIsolation(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var decisions atomic.Int64
	sub, err := b.Subscribe(ctx, domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
		decisions.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	b.Publish(ctx, domain.TopicCaseReceived, []byte("a"))
	time.Sleep(50 * time.Millisecond)

	if decisions.Load() != 0 {
		t.Errorf("decision subscriber received case topic message")
	}
}

func TestChannelBusMultipleSubscribers(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var count atomic.Int64
	for i := 0; i < 3; i++ {
		sub, err := b.Subscribe(ctx, domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
		defer sub.Unsubscribe()
	}

	b.Publish(ctx, domain.TopicDecision, []byte("x"))

	deadline := time.After(time.Second)
	for count.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d of 3 subscribers received the message", count.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestChannelBusUnsubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var count atomic.Int64
	sub, err := b.Subscribe(ctx, domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if sub.Topic() != domain.TopicDecision {
		t.Errorf("topic = %q", sub.Topic())
	}

	sub.Unsubscribe()
	time.Sleep(10 * time.Millisecond)

	b.Publish(ctx, domain.TopicDecision, []byte("x"))
	time.Sleep(50 * time.Millisecond)

	if count.Load() != 0 {
		t.Errorf("unsubscribed handler still received %d messages", count.Load())
	}
}

func TestChannelBusClose(t *testing.T) {
	b := NewChannelBus(10)
	ctx := context.Background()

	if err := b.Ping(ctx); err != nil {
		t.Errorf("Ping before close: %v", err)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := b.Publish(ctx, domain.TopicDecision, []byte("x")); err == nil {
		t.Error("expected publish error after close")
	}
	if _, err := b.Subscribe(ctx, domain.TopicDecision, nil); err == nil {
		t.Error("expected subscribe error after close")
	}
	if err := b.Ping(ctx); err == nil {
		t.Error("expected ping error after close")
	}

	// Double close is a no-op.
	if err := b.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestChannelBusRequestReply(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// No responder is registered, so the request times out with ctx.
	_, err := b.Request(ctx, "kestrel.echo", []byte("ping"))
	if err == nil {
		t.Error("expected timeout without a responder")
	}
}

func TestNewBusFactory(t *testing.T) {
	b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 10})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer b.Close()

	if _, ok := b.(*ChannelBus); !ok {
		t.Errorf("expected ChannelBus, got %T", b)
	}

	if _, err := New(domain.EventBusConfig{Type: "bogus"}); err == nil {
		t.Error("expected error for unsupported bus type")
	}
}
