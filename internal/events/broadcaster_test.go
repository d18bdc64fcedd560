package events

import (
	"testing"
	"time"

	"github.com/driftpad/driftpad/pkg/protocol"
)

func TestBroadcasterSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster()

	ch1 := b.Subscribe("p1")
	ch2 := b.Subscribe("p1")

	if b.Count() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", b.Count())
	}

	b.Unsubscribe(ch1)
	if b.Count() != 1 {
		t.Fatalf("expected 1 subscriber after unsubscribe, got %d", b.Count())
	}

	b.Unsubscribe(ch2)
	if b.Count() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.Count())
	}
}

func TestBroadcasterPublish(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe("p1")
	defer b.Unsubscribe(ch)

	event := protocol.FileEvent{
		Type:      EventCreate,
		ProjectID: "p1",
		FileID:    "f1",
		Path:      "/src/app.js",
	}
	b.Publish(event)

	select {
	case received := <-ch:
		if received.Type != EventCreate {
			t.Errorf("expected type %s, got %s", EventCreate, received.Type)
		}
		if received.Path != "/src/app.js" {
			t.Errorf("expected path /src/app.js, got %s", received.Path)
		}
		if received.Timestamp == 0 {
			t.Error("expected non-zero timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBroadcasterScopedToProject(t *testing.T) {
	b := NewBroadcaster()
	mine := b.Subscribe("p1")
	other := b.Subscribe("p2")
	defer b.Unsubscribe(mine)
	defer b.Unsubscribe(other)

	b.Publish(protocol.FileEvent{Type: EventUpdate, ProjectID: "p1", Path: "/a.js"})

	select {
	case received := <-mine:
		if received.ProjectID != "p1" {
			t.Errorf("expected project p1, got %s", received.ProjectID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case ev := <-other:
		t.Fatalf("other project received event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcasterDropsForSlowConsumer(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe("p1")
	defer b.Unsubscribe(ch)

	// Fill the channel buffer (64)
	for i := 0; i < 100; i++ {
		b.Publish(protocol.FileEvent{Type: EventCreate, ProjectID: "p1", Path: "/overflow.js"})
	}

	// Should not block or panic
	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			goto done
		}
	}
done:
	if count != 64 {
		t.Errorf("expected 64 buffered events, got %d", count)
	}
}

func TestMarshalEvent(t *testing.T) {
	e := protocol.FileEvent{
		Type:      EventDelete,
		ProjectID: "p1",
		FileID:    "f9",
		Path:      "/old.js",
		Timestamp: 1234567890,
	}
	data, err := MarshalEvent(e)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("expected non-empty JSON")
	}
}
