package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestAsyncDispatcherCloseDrainsHandlers(t *testing.T) {
	d := NewAsyncDispatcher(zap.NewNop(), time.Second)

	release := make(chan struct{})
	var mu sync.Mutex
	handled := 0
	d.Subscribe(EventTicketClosed, func(ctx context.Context, e Event) error {
		<-release
		mu.Lock()
		handled++
		mu.Unlock()
		return nil
	})

	for i := 0; i < 3; i++ {
		if err := d.Publish(context.Background(), Event{Type: EventTicketClosed}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	close(release)
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if handled != 3 {
		t.Errorf("handlers completed after Close = %d, want 3", handled)
	}
}

func TestAsyncDispatcherIsolatesFailingHandlers(t *testing.T) {
	d := NewAsyncDispatcher(zap.NewNop(), time.Second)

	var mu sync.Mutex
	succeeded := false
	d.Subscribe(EventTicketClosed, func(ctx context.Context, e Event) error {
		return errors.New("boom")
	})
	d.Subscribe(EventTicketClosed, func(ctx context.Context, e Event) error {
		mu.Lock()
		succeeded = true
		mu.Unlock()
		return nil
	})

	if err := d.Publish(context.Background(), Event{Type: EventTicketClosed}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if !succeeded {
		t.Error("second handler did not run after the first failed")
	}
}
