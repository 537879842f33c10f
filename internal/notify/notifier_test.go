package notify

import (
	"testing"
	"time"
)

func TestPublishReachesSubscribers(t *testing.T) {
	n := NewNotifier(4)
	sub := n.Subscribe()
	defer n.Unsubscribe(sub.ID)

	n.Publish(Event{Type: PartitionProvisioned, PartitionID: "p1", Timestamp: time.Now().UnixNano()})

	select {
	case ev := <-sub.Ch:
		if ev.Type != PartitionProvisioned || ev.PartitionID != "p1" {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeFiltersByEventType(t *testing.T) {
	n := NewNotifier(4)
	sub := n.Subscribe(IndexBackfilled)
	defer n.Unsubscribe(sub.ID)

	n.Publish(Event{Type: PartitionRetired, PartitionID: "p1"})
	n.Publish(Event{Type: IndexBackfilled, PartitionID: "p1", IndexName: "by_status"})

	select {
	case ev := <-sub.Ch:
		if ev.Type != IndexBackfilled {
			t.Errorf("filter let through %v", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for filtered event")
	}

	select {
	case ev := <-sub.Ch:
		t.Errorf("unexpected second event: %+v", ev)
	default:
	}
}

func TestFullSubscriberDoesNotBlockPublisher(t *testing.T) {
	n := NewNotifier(1)
	sub := n.Subscribe()
	defer n.Unsubscribe(sub.ID)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			n.Publish(Event{Type: PartitionProvisioned, PartitionID: "p1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber channel")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	n := NewNotifier(1)
	sub := n.Subscribe()
	n.Unsubscribe(sub.ID)

	if _, open := <-sub.Ch; open {
		t.Error("channel should be closed after unsubscribe")
	}
}
