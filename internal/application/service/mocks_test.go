package service

import (
	"context"
	"sync"
	"time"

	"mdfeed/internal/domain"
)

type mockRepository struct {
	mu        sync.Mutex
	latest    map[int64]domain.Tick
	ticks     []domain.Tick
	snapshots []string
	err       error
}

func newMockRepository() *mockRepository {
	return &mockRepository{latest: make(map[int64]domain.Tick)}
}

func (m *mockRepository) UpsertLatestTick(ctx context.Context, t domain.Tick) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.latest[t.InstrumentID] = t
	return nil
}

func (m *mockRepository) InsertTick(ctx context.Context, t domain.Tick) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.ticks = append(m.ticks, t)
	return nil
}

func (m *mockRepository) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.snapshots = append(m.snapshots, payload)
	return nil
}

func (m *mockRepository) tickCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ticks)
}

type mockSink struct {
	mu       sync.Mutex
	lines    []string
	newLines int
}

func (s *mockSink) WriteSnapshot(ts time.Time, line string) error {
	s.mu.Lock()
	s.lines = append(s.lines, line)
	s.mu.Unlock()
	return nil
}

func (s *mockSink) NewLine() error {
	s.mu.Lock()
	s.newLines++
	s.mu.Unlock()
	return nil
}
