package bridge

import (
	"sync"

	"github.com/texelworks/painterlink/internal/protocol"
)

// TrafficEvent is emitted for every decoded inbound request, whether or not a
// handler was registered for it. It lets collaborators observe the wire
// without claiming a command name.
type TrafficEvent struct {
	Method string
	Params protocol.Params
}

// TrafficBroadcaster fans TrafficEvents out to subscribers and keeps a small
// ring of recent events for late joiners.
type TrafficBroadcaster struct {
	clients map[chan TrafficEvent]bool
	history []TrafficEvent
	maxHist int
	mu      sync.RWMutex
}

func NewTrafficBroadcaster(historySize int) *TrafficBroadcaster {
	if historySize <= 0 {
		historySize = 100
	}
	return &TrafficBroadcaster{
		clients: make(map[chan TrafficEvent]bool),
		history: make([]TrafficEvent, 0, historySize),
		maxHist: historySize,
	}
}

// Subscribe adds a new observer. The channel is buffered; slow observers miss
// events rather than stalling dispatch.
func (tb *TrafficBroadcaster) Subscribe() chan TrafficEvent {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	ch := make(chan TrafficEvent, 100)
	tb.clients[ch] = true
	return ch
}

// Unsubscribe removes an observer and closes its channel.
func (tb *TrafficBroadcaster) Unsubscribe(ch chan TrafficEvent) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	delete(tb.clients, ch)
	close(ch)
}

// Publish records the event and delivers it to all observers.
func (tb *TrafficBroadcaster) Publish(event TrafficEvent) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if len(tb.history) >= tb.maxHist {
		tb.history = tb.history[1:]
	}
	tb.history = append(tb.history, event)

	for ch := range tb.clients {
		select {
		case ch <- event:
		default:
			// Observer buffer full, skip to keep dispatch non-blocking
		}
	}
}

// History returns a copy of the recent events, oldest first.
func (tb *TrafficBroadcaster) History() []TrafficEvent {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	out := make([]TrafficEvent, len(tb.history))
	copy(out, tb.history)
	return out
}
