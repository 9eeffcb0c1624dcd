package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestJournal_OpenAndClose(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "test.db")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	defer j.Close()

	// Verify journal file was created
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("Journal file was not created")
	}

	// Verify we can close without error
	if err := j.Close(); err != nil {
		t.Errorf("Failed to close journal: %v", err)
	}
}

func TestJournal_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "dir", "test.db")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open journal in nested directory: %v", err)
	}
	defer j.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("Journal file was not created in nested directory")
	}
}

func TestJournal_LogBridgeEvent(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "test.db")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	defer j.Close()

	err = j.LogBridgeEvent("start", "Bridge listening on 127.0.0.1:12345")
	if err != nil {
		t.Errorf("Failed to log bridge event: %v", err)
	}

	events, err := j.GetRecentBridgeEvents(10)
	if err != nil {
		t.Fatalf("Failed to query bridge events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 bridge event, got %d", len(events))
	}
	if events[0].EventType != "start" {
		t.Errorf("Expected event_type='start', got '%v'", events[0].EventType)
	}
	if events[0].Details != "Bridge listening on 127.0.0.1:12345" {
		t.Errorf("Unexpected details: '%v'", events[0].Details)
	}
}

func TestJournal_LogPeerEvent(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "test.db")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	defer j.Close()

	err = j.LogPeerEvent("7f3a2c", "connect", "Peer connected from 127.0.0.1:54321")
	if err != nil {
		t.Errorf("Failed to log peer event: %v", err)
	}

	events, err := j.GetRecentPeerEvents(10)
	if err != nil {
		t.Fatalf("Failed to query peer events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 peer event, got %d", len(events))
	}
	if events[0].PeerID != "7f3a2c" {
		t.Errorf("Expected peer_id='7f3a2c', got '%v'", events[0].PeerID)
	}
	if events[0].EventType != "connect" {
		t.Errorf("Expected event_type='connect', got '%v'", events[0].EventType)
	}
}

func TestJournal_LogCompanionEvent(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "test.db")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	defer j.Close()

	err = j.LogCompanionEvent("companion_started", "PID: 12345, port: 9000")
	if err != nil {
		t.Errorf("Failed to log companion event: %v", err)
	}

	events, err := j.GetRecentCompanionEvents(10)
	if err != nil {
		t.Fatalf("Failed to query companion events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 companion event, got %d", len(events))
	}
	if events[0].EventType != "companion_started" {
		t.Errorf("Expected event_type='companion_started', got '%v'", events[0].EventType)
	}
}

func TestJournal_RecentEventsLimit(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "test.db")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	defer j.Close()

	for i := 0; i < 10; i++ {
		if err := j.LogCompanionEvent("companion_crashed", fmt.Sprintf("crash %d", i)); err != nil {
			t.Fatalf("Failed to log companion event: %v", err)
		}
	}

	events, err := j.GetRecentCompanionEvents(5)
	if err != nil {
		t.Fatalf("Failed to query companion events: %v", err)
	}
	if len(events) != 5 {
		t.Errorf("Expected 5 companion events, got %d", len(events))
	}
}

func TestJournal_Flush(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "test.db")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	defer j.Close()

	if err := j.LogBridgeEvent("start", "test"); err != nil {
		t.Fatalf("Failed to log bridge event: %v", err)
	}

	if err := j.Flush(); err != nil {
		t.Errorf("Failed to flush journal: %v", err)
	}
}
