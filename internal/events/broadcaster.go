// Package events provides an SSE event broadcaster for live project updates.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/driftpad/driftpad/internal/metrics"
	"github.com/driftpad/driftpad/pkg/protocol"
)

const (
	EventCreate = "create"
	EventUpdate = "update"
	EventRename = "rename"
	EventDelete = "delete"
)

// Broadcaster manages SSE subscribers and publishes file events. Each
// subscriber watches a single project.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan protocol.FileEvent]string
}

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan protocol.FileEvent]string),
	}
}

// Subscribe adds a subscriber for one project and returns its event channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe(projectID string) chan protocol.FileEvent {
	ch := make(chan protocol.FileEvent, 64)
	b.mu.Lock()
	b.subscribers[ch] = projectID
	b.mu.Unlock()
	metrics.SetSSEConnectionsActive(int64(b.Count()))
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan protocol.FileEvent) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	close(ch)
	b.mu.Unlock()
	metrics.SetSSEConnectionsActive(int64(b.Count()))
}

// Publish sends an event to every subscriber of the event's project.
// Non-blocking: drops events for slow consumers.
func (b *Broadcaster) Publish(event protocol.FileEvent) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, projectID := range b.subscribers {
		if projectID != event.ProjectID {
			continue
		}
		select {
		case ch <- event:
		default:
			// Drop event for slow consumer
		}
	}
	metrics.RecordSSEEvent(event.Type)
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// MarshalEvent serializes an event to JSON.
func MarshalEvent(e protocol.FileEvent) ([]byte, error) {
	return json.Marshal(e)
}
