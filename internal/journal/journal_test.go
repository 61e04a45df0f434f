package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"memtrigger/internal/monitor"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewInMemory()
	if err != nil {
		t.Fatalf("NewInMemory: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndRecent(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	events := []monitor.Event{
		{Type: monitor.EventAttached, Time: base, PID: 77},
		{Type: monitor.EventReaction, Time: base.Add(time.Second), BindingID: "hp", Reaction: &monitor.Reaction{
			BindingID: "hp", Value: 42, Address: 0x20000108, Duration: 260 * time.Millisecond,
		}},
		{Type: monitor.EventReaction, Time: base.Add(2 * time.Second), BindingID: "mp", Reaction: &monitor.Reaction{
			BindingID: "mp", Value: 1, Aborted: true,
		}},
		{Type: monitor.EventDetached, Time: base.Add(3 * time.Second), PID: 77, Reason: "process exited"},
	}
	for _, ev := range events {
		if err := j.Record(ctx, ev); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	all, err := j.Recent(ctx, "", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("got %d entries, want 4", len(all))
	}
	if all[0].Type != "detached" || all[0].Reason != "process exited" {
		t.Errorf("newest entry = %+v", all[0])
	}

	hp, err := j.Recent(ctx, "hp", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hp) != 1 {
		t.Fatalf("hp entries = %d, want 1", len(hp))
	}
	e := hp[0]
	if e.Value != 42 || e.Address != 0x20000108 || e.DurationMs != 260 || e.Aborted {
		t.Errorf("entry = %+v", e)
	}
	if !e.Time.Equal(base.Add(time.Second)) {
		t.Errorf("time = %v", e.Time)
	}

	if n, err := j.Count(ctx, "mp"); err != nil || n != 1 {
		t.Errorf("Count(mp) = %d, %v", n, err)
	}
}

func TestRecentLimit(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := j.Record(ctx, monitor.Event{Type: monitor.EventStarted, BindingID: "a"}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := j.Recent(ctx, "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID <= got[1].ID {
		t.Errorf("Recent(2) = %+v", got)
	}
}

func TestPrune(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	j.Record(ctx, monitor.Event{Type: monitor.EventStarted, Time: old})
	j.Record(ctx, monitor.Event{Type: monitor.EventStopped})

	n, err := j.Prune(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}
}

func TestOpenOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "history.db")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := j.Record(context.Background(), monitor.Event{Type: monitor.EventAttached, PID: 1}); err != nil {
		t.Fatal(err)
	}
	j.Close()

	j, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()
	got, err := j.Recent(context.Background(), "", 0)
	if err != nil || len(got) != 1 {
		t.Errorf("Recent after reopen = %v, %v", got, err)
	}
}
