package testutil

import (
	"context"
	"sync"

	"github.com/opsgrid/opsgrid/internal/notifier"
)

// RecordingNotifier is a notifier.Notifier that records every event for
// assertions.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []*notifier.Event
}

// NewRecordingNotifier creates a new recording notifier
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

// Send records the event
func (n *RecordingNotifier) Send(ctx context.Context, event *notifier.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

// Clear drops recorded events
func (n *RecordingNotifier) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

// Events returns every recorded event
func (n *RecordingNotifier) Events() []*notifier.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*notifier.Event(nil), n.events...)
}

// EventsOfType returns recorded events of one type
func (n *RecordingNotifier) EventsOfType(t notifier.EventType) []*notifier.Event {
	n.mu.Lock()
	defer n.mu.Unlock()

	var result []*notifier.Event
	for _, e := range n.events {
		if e.Type == t {
			result = append(result, e)
		}
	}
	return result
}
