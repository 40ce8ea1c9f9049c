package events

import (
	"context"
	"errors"
	"testing"
)

func TestDispatcherInvokesSubscribersInOrder(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls []string
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "first")
		return nil
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventTicketClosed, func(context.Context, Event) error {
		calls = append(calls, "other-type")
		return nil
	})

	if err := d.Publish(context.Background(), Event{Type: EventTicketCreated}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Errorf("calls = %v", calls)
	}
}

func TestDispatcherJoinsHandlerErrors(t *testing.T) {
	d := NewInMemoryDispatcher()
	failure := errors.New("handler down")
	var reached bool
	d.Subscribe(EventTicketUpdated, func(context.Context, Event) error { return failure })
	d.Subscribe(EventTicketUpdated, func(context.Context, Event) error {
		reached = true
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketUpdated})
	if !errors.Is(err, failure) {
		t.Errorf("err = %v, want wrapped %v", err, failure)
	}
	if !reached {
		t.Error("a failing handler must not stop the others")
	}
}

func TestDispatcherNoSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()
	if err := d.Publish(context.Background(), Event{Type: EventTicketReopened}); err != nil {
		t.Errorf("Publish with no subscribers: %v", err)
	}
}
