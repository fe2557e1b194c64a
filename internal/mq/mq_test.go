package mq

import (
	"context"
	"testing"

	"github.com/expense-track/apiserver/config"
)

type fakeBackend struct {
	published []Message
	channels  []string
	closed    bool
}

func (f *fakeBackend) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	f.channels = append(f.channels, channel)
	f.published = append(f.published, Message{Data: data, Attributes: attrs})
	return "id-1", nil
}

func (f *fakeBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	for _, msg := range f.published {
		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	backend := &fakeBackend{}
	queue := New(backend)

	id, err := queue.Publish(context.Background(), "expense-events", []byte(`{"action":"created"}`), map[string]string{"action": "created"})
	if err != nil {
		t.Fatal(err)
	}
	if id != "id-1" {
		t.Errorf("message id = %q", id)
	}
	if backend.channels[0] != "expense-events" {
		t.Errorf("channel = %q", backend.channels[0])
	}

	var received []Message
	err = queue.Subscribe(context.Background(), "expense-events", func(_ context.Context, msg Message) error {
		received = append(received, msg)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(received) != 1 || received[0].Attributes["action"] != "created" {
		t.Fatalf("received = %+v", received)
	}

	if err := queue.Close(); err != nil {
		t.Fatal(err)
	}
	if !backend.closed {
		t.Error("backend not closed")
	}
}

func TestNewFromConfig(t *testing.T) {
	// No backend configured means eventing is off.
	queue, err := NewFromConfig(context.Background(), config.MQConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if queue != nil {
		t.Fatal("expected nil MQ when no backend is configured")
	}

	if _, err := NewFromConfig(context.Background(), config.MQConfig{Backend: "zmq"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
