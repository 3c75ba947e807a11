package app

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

func TestBusVetoStopsBeforeEvent(t *testing.T) {
	bus := NewBus()
	room := &domain.Room{Type: domain.RoomTypePublic}

	bus.Subscribe(core.EventBeforeJoin, func(ctx context.Context, ev core.Event) error {
		ev.(*core.BeforeJoinEvent).Veto(nil)
		return nil
	})
	ran := false
	bus.Subscribe(core.EventBeforeJoin, func(ctx context.Context, ev core.Event) error {
		ran = true
		return nil
	})

	err := bus.Publish(context.Background(), &core.BeforeJoinEvent{Room: room})
	if !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("publish err = %v, want ErrUnauthorized veto", err)
	}
	if ran {
		t.Fatal("handler after the veto still ran")
	}
}

func TestBusBeforeEventHandlerErrorPropagates(t *testing.T) {
	bus := NewBus()
	boom := errors.New("boom")
	bus.Subscribe(core.EventBeforeCallStarted, func(ctx context.Context, ev core.Event) error {
		return boom
	})

	err := bus.Publish(context.Background(), &core.BeforeCallStartedEvent{Room: &domain.Room{}})
	if !errors.Is(err, boom) {
		t.Fatalf("publish err = %v, want handler error", err)
	}
}

func TestBusAfterEventErrorsAreSwallowed(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(core.EventJoined, func(ctx context.Context, ev core.Event) error {
		return errors.New("listener failed")
	})
	second := false
	bus.Subscribe(core.EventJoined, func(ctx context.Context, ev core.Event) error {
		second = true
		return nil
	})

	if err := bus.Publish(context.Background(), &core.JoinedEvent{Room: &domain.Room{}}); err != nil {
		t.Fatalf("after-event publish err = %v, want nil", err)
	}
	if !second {
		t.Fatal("later handler skipped after a failing one")
	}
}

func TestBusIgnoresUnsubscribedEvents(t *testing.T) {
	bus := NewBus()
	if err := bus.Publish(context.Background(), &core.LeftEvent{Room: &domain.Room{}}); err != nil {
		t.Fatalf("publish without subscribers err = %v", err)
	}
}
