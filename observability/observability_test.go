package observability

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sm36384/Phoenix/dbopen"
	"github.com/Sm36384/Phoenix/idgen"
)

func TestEventLogger_RecentNewestFirst(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	clock := time.UnixMilli(1_700_000_000_000)
	l := NewEventLogger(db,
		WithEventIDGenerator(idgen.Sequence("evt_")),
		WithEventClock(func() time.Time { clock = clock.Add(time.Second); return clock }),
	)
	ctx := context.Background()

	l.LogEvent(ctx, BusinessEvent{EventType: EventSessionRestored, HubID: "singapore", SourceID: "jobstreet", Success: true})
	l.LogEvent(ctx, BusinessEvent{EventType: EventHubBlocked, HubID: "riyadh", SourceID: "bayt", Details: map[string]any{"reason": "captcha"}})

	all, err := l.Recent(ctx, "", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len: got %d, want 2", len(all))
	}
	if all[0].EventType != EventHubBlocked {
		t.Errorf("first: got %q, want %q", all[0].EventType, EventHubBlocked)
	}
	if all[0].Success {
		t.Error("blocked event should be recorded as unsuccessful")
	}
	if all[0].Details["reason"] != "captcha" {
		t.Errorf("details: got %v", all[0].Details)
	}

	sg, err := l.Recent(ctx, "singapore", 10)
	if err != nil {
		t.Fatalf("recent hub: %v", err)
	}
	if len(sg) != 1 || sg[0].ID != "evt_1" {
		t.Errorf("hub filter: got %+v", sg)
	}
}

func TestEventLogger_Cleanup(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	now := time.UnixMilli(1_700_000_000_000)
	l := NewEventLogger(db, WithEventClock(func() time.Time { return now }))
	ctx := context.Background()

	l.LogEvent(ctx, BusinessEvent{EventType: EventSessionSaved})
	now = now.Add(48 * time.Hour)

	n, err := l.Cleanup(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("removed: got %d, want 1", n)
	}
}

func TestEventLogger_NilSafe(t *testing.T) {
	var l *EventLogger
	l.LogEvent(context.Background(), BusinessEvent{EventType: EventHealFailed})
	if ev, err := l.Recent(context.Background(), "", 5); err != nil || ev != nil {
		t.Errorf("nil logger: got %v, %v", ev, err)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q): got %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger_RotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "governor.log")
	logger, closer := NewLogger(LogConfig{Level: "info", File: path})
	logger.Info("hub session started", "hub", "dubai")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("log file is empty")
	}
}
