package inspect

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/HyphaGroup/demitasse/internal/debounce"
	"github.com/HyphaGroup/demitasse/internal/journal"
)

func TestHandleStatus(t *testing.T) {
	store := debounce.NewStore()
	store.Append("s1", "abcd", nil)
	store.Append("s2", "ef", nil)

	srv := NewServer(store, nil, 250*time.Millisecond, "test")

	_, out, err := srv.handleStatus(context.Background(), nil, StatusInput{})
	if err != nil {
		t.Fatalf("handleStatus() returned error: %v", err)
	}

	status, ok := out.(StatusOutput)
	if !ok {
		t.Fatalf("output type = %T, want StatusOutput", out)
	}
	if status.Version != "test" {
		t.Errorf("Version = %q, want 'test'", status.Version)
	}
	if status.IntervalMS != 250 {
		t.Errorf("IntervalMS = %d, want 250", status.IntervalMS)
	}
	if status.BufferedSessions != 2 {
		t.Errorf("BufferedSessions = %d, want 2", status.BufferedSessions)
	}
	if status.PendingBytes != 6 {
		t.Errorf("PendingBytes = %d, want 6", status.PendingBytes)
	}
}

func TestHandleSessions(t *testing.T) {
	store := debounce.NewStore()
	store.Append("beta", "xy", nil)
	store.Append("alpha", "z", nil)

	srv := NewServer(store, nil, time.Second, "test")

	_, out, err := srv.handleSessions(context.Background(), nil, SessionsInput{})
	if err != nil {
		t.Fatalf("handleSessions() returned error: %v", err)
	}

	sessions := out.(SessionsOutput).Sessions
	if len(sessions) != 2 {
		t.Fatalf("returned %d sessions, want 2", len(sessions))
	}
	if sessions[0].Session != "alpha" || sessions[1].Session != "beta" {
		t.Errorf("sessions not sorted: %v", sessions)
	}
}

func TestHandleRecentFlushes(t *testing.T) {
	jnl, err := journal.Open(filepath.Join(t.TempDir(), "flushes.db"))
	if err != nil {
		t.Fatalf("journal.Open() returned error: %v", err)
	}
	defer jnl.Close()
	jnl.Record("s1", "timer", 11)

	srv := NewServer(debounce.NewStore(), jnl, time.Second, "test")

	_, out, err := srv.handleRecentFlushes(context.Background(), nil, RecentFlushesInput{Limit: 5})
	if err != nil {
		t.Fatalf("handleRecentFlushes() returned error: %v", err)
	}

	flushes := out.(RecentFlushesOutput).Flushes
	if len(flushes) != 1 {
		t.Fatalf("returned %d flushes, want 1", len(flushes))
	}
	if flushes[0].SessionID != "s1" || flushes[0].Bytes != 11 {
		t.Errorf("entry = %+v, want s1/11", flushes[0])
	}
}
