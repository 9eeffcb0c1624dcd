package bridge

import (
	"fmt"
	"testing"

	"github.com/texelworks/painterlink/internal/protocol"
)

func TestTrafficBroadcaster_PublishAndSubscribe(t *testing.T) {
	tb := NewTrafficBroadcaster(10)

	sub := tb.Subscribe()
	defer tb.Unsubscribe(sub)

	tb.Publish(TrafficEvent{Method: "PING", Params: protocol.Params{"a": 1}})

	select {
	case event := <-sub:
		if event.Method != "PING" {
			t.Errorf("expected method PING, got %q", event.Method)
		}
	default:
		t.Fatal("expected an event on the subscriber channel")
	}
}

func TestTrafficBroadcaster_HistoryRing(t *testing.T) {
	tb := NewTrafficBroadcaster(3)

	for i := 0; i < 5; i++ {
		tb.Publish(TrafficEvent{Method: fmt.Sprintf("CMD_%d", i)})
	}

	history := tb.History()
	if len(history) != 3 {
		t.Fatalf("expected history capped at 3, got %d", len(history))
	}
	// Oldest entries are evicted first
	if history[0].Method != "CMD_2" || history[2].Method != "CMD_4" {
		t.Errorf("expected [CMD_2 CMD_3 CMD_4], got %v", history)
	}
}

func TestTrafficBroadcaster_SlowObserverDoesNotBlock(t *testing.T) {
	tb := NewTrafficBroadcaster(10)

	sub := tb.Subscribe()
	defer tb.Unsubscribe(sub)

	// Overflow the subscriber buffer; Publish must not stall
	for i := 0; i < 200; i++ {
		tb.Publish(TrafficEvent{Method: "FLOOD"})
	}
}

func TestTrafficBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	tb := NewTrafficBroadcaster(10)

	sub := tb.Subscribe()
	tb.Unsubscribe(sub)

	if _, open := <-sub; open {
		t.Error("expected channel to be closed after unsubscribe")
	}
}
