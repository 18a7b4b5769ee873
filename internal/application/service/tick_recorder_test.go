package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"mdfeed/internal/domain"
)

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestTickRecorderPersists(t *testing.T) {
	repo := newMockRepository()
	rec := NewTickRecorder(repo, 16, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	rec.OnTick(domain.Tick{InstrumentID: 1, LastPrice: 10})
	rec.OnTick(domain.Tick{InstrumentID: 2, LastPrice: 20})
	rec.OnTick(domain.Tick{InstrumentID: 1, LastPrice: 11})

	waitUntil(t, func() bool { return rec.Written() == 3 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}

	if repo.tickCount() != 3 {
		t.Errorf("history has %d ticks, want 3", repo.tickCount())
	}
	if got := repo.latest[1].LastPrice; got != 11 {
		t.Errorf("latest price for 1 = %v, want 11", got)
	}
}

func TestTickRecorderDropsWhenFull(t *testing.T) {
	repo := newMockRepository()
	rec := NewTickRecorder(repo, 2, time.Second)

	// nothing is draining the queue
	for i := 0; i < 5; i++ {
		rec.OnTick(domain.Tick{InstrumentID: 1, LastPrice: float64(i + 1)})
	}
	if rec.Dropped() != 3 {
		t.Errorf("Dropped() = %d, want 3", rec.Dropped())
	}
}

func TestTickRecorderFlushesOnShutdown(t *testing.T) {
	repo := newMockRepository()
	rec := NewTickRecorder(repo, 8, time.Second)
	for i := 0; i < 4; i++ {
		rec.OnTick(domain.Tick{InstrumentID: int64(i + 1), LastPrice: 1})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rec.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if repo.tickCount() != 4 {
		t.Errorf("flushed %d ticks, want 4", repo.tickCount())
	}
}

func TestTickRecorderCountsFailures(t *testing.T) {
	repo := newMockRepository()
	repo.err = errors.New("disk full")
	rec := NewTickRecorder(repo, 8, time.Second)

	rec.OnTick(domain.Tick{InstrumentID: 1, LastPrice: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = rec.Run(ctx)

	if rec.Failed() != 1 || rec.Written() != 0 {
		t.Errorf("failed=%d written=%d, want 1/0", rec.Failed(), rec.Written())
	}
}
