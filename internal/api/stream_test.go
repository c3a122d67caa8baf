package api

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pushkeep-io/pushkeep/internal/model"
	"github.com/pushkeep-io/pushkeep/internal/pusherr"
)

func TestHubPublishDeliversOnlyToMatchingDestinationSubscribers(t *testing.T) {
	hub := NewHub(zap.NewNop())

	chA := hub.subscribe(1)
	defer hub.unsubscribe(1, chA)
	chB := hub.subscribe(2)
	defer hub.unsubscribe(2, chB)

	key := model.PushKey{TableId: 10, DestinationId: 1}
	status := model.RunningStatus(time.Now())
	hub.Publish(key, status)

	select {
	case ev := <-chA:
		if ev.TableID != 10 || ev.Status != status.Kind.String() {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected subscriber on destination 1 to receive the event")
	}

	select {
	case ev := <-chB:
		t.Fatalf("subscriber on destination 2 should not receive it, got %+v", ev)
	default:
	}
}

func TestHubPublishIncludesCauseForFailedStatus(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ch := hub.subscribe(5)
	defer hub.unsubscribe(5, ch)

	since := time.Now()
	cause := pusherr.NewTableNotFound(1)
	status := model.FailedStatus(since, since.Add(time.Second), cause)

	hub.Publish(model.PushKey{TableId: 1, DestinationId: 5}, status)

	select {
	case ev := <-ch:
		if ev.Cause == "" {
			t.Fatal("expected a non-empty cause for a failed status")
		}
		if ev.Until == "" {
			t.Fatal("expected Until to be set for a terminal status")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ch := hub.subscribe(1)
	hub.unsubscribe(1, ch)

	hub.Publish(model.PushKey{TableId: 1, DestinationId: 1}, model.RunningStatus(time.Now()))

	select {
	case ev, open := <-ch:
		if open {
			t.Fatalf("expected no event after unsubscribe, got %+v", ev)
		}
	default:
	}
}
