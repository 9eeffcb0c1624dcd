package bridge

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/texelworks/painterlink/internal/protocol"
)

func TestNotifier_NoPeerDropsSilently(t *testing.T) {
	s, _ := startTestServer(t)
	n := NewNotifier(s)

	n.Notify("QUIT", protocol.Params{})

	// Dropped notifications do not consume ids
	if n.LastID() != notifierSeed {
		t.Errorf("expected id counter untouched at %d, got %d", notifierSeed, n.LastID())
	}
}

func TestNotifier_FirstSentIDIsTwo(t *testing.T) {
	s, url := startTestServer(t)
	n := NewNotifier(s)

	conn := dialTestServer(t, url)
	waitFor(t, time.Second, s.Connected)

	n.Notify("PROJECT_OPENED", protocol.Params{"projectPath": "/tmp/p.json"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("client read failed: %v", err)
	}

	var msg struct {
		JSONRPC string          `json:"jsonrpc"`
		Method  string          `json:"method"`
		Params  protocol.Params `json:"params"`
		ID      int64           `json:"id"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("notification is not valid JSON: %v", err)
	}
	if msg.JSONRPC != "2.0" {
		t.Errorf("expected protocol marker 2.0, got %q", msg.JSONRPC)
	}
	if msg.Method != "PROJECT_OPENED" {
		t.Errorf("expected method PROJECT_OPENED, got %q", msg.Method)
	}
	if msg.ID != 2 {
		t.Errorf("expected first sent id to be 2, got %d", msg.ID)
	}
	if path, ok := msg.Params.String("projectPath"); !ok || path != "/tmp/p.json" {
		t.Errorf("expected projectPath param, got %v", msg.Params)
	}
}

func TestNotifier_IDsStrictlyIncrease(t *testing.T) {
	s, url := startTestServer(t)
	n := NewNotifier(s)

	conn := dialTestServer(t, url)
	waitFor(t, time.Second, s.Connected)

	for i := 0; i < 3; i++ {
		n.Notify("DISPLAY_MENU", protocol.Params{})
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	last := int64(1)
	for i := 0; i < 3; i++ {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("client read failed: %v", err)
		}
		var msg struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("notification is not valid JSON: %v", err)
		}
		if msg.ID != last+1 {
			t.Errorf("expected id %d, got %d", last+1, msg.ID)
		}
		last = msg.ID
	}
}
