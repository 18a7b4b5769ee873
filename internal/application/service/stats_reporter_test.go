package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"mdfeed/internal/application/usecase/feed"
)

type fixedStats feed.Snapshot

func (f fixedStats) Stats() feed.Snapshot { return feed.Snapshot(f) }

func TestStatsReporterReport(t *testing.T) {
	repo := newMockRepository()
	sink := &mockSink{}
	src := fixedStats{State: feed.StateConnected, Subscribed: 2, Buffered: 7, Cached: 2}
	r := NewStatsReporter(src, sink, repo, time.Minute)

	if err := r.Report(context.Background(), time.Now()); err != nil {
		t.Fatalf("Report failed: %v", err)
	}

	if len(sink.lines) != 1 || !strings.Contains(sink.lines[0], "CONNECTED") ||
		!strings.Contains(sink.lines[0], "subscribed=2 buffered=7 cached=2") {
		t.Errorf("unexpected sink lines: %q", sink.lines)
	}
	if len(repo.snapshots) != 1 {
		t.Fatalf("persisted %d snapshots, want 1", len(repo.snapshots))
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(repo.snapshots[0]), &decoded); err != nil {
		t.Fatalf("snapshot payload is not json: %v", err)
	}
	if decoded["state"] != "CONNECTED" || decoded["buffered"] != float64(7) {
		t.Errorf("unexpected payload: %v", decoded)
	}
}

func TestStatsReporterRunTicks(t *testing.T) {
	repo := newMockRepository()
	sink := &mockSink{}
	r := NewStatsReporter(fixedStats{State: feed.StateError, ReconnectAttempts: 3}, sink, repo, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	waitUntil(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.lines) >= 2
	})
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if sink.newLines != 1 {
		t.Errorf("NewLine called %d times, want 1", sink.newLines)
	}
}

func TestFormatSnapshot(t *testing.T) {
	line := FormatSnapshot(feed.Snapshot{State: feed.StateReconnecting, ReconnectAttempts: 2, MalformedTicks: 1})
	for _, want := range []string{"RECONNECTING", "attempts=2", "malformed=1 panics=0"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	if strings.Contains(FormatSnapshot(feed.Snapshot{}), "attempts=") {
		t.Error("attempts should be omitted when zero")
	}
}
