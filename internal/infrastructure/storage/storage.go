package storage

import (
	"context"
	"sync"

	"mdfeed/internal/application/port"
	"mdfeed/internal/domain"
)

// Snapshot is one persisted feed stats record.
type Snapshot struct {
	Ts      int64
	Payload string
}

// MemoryRepository is an in-process TickRepository.
// History is capped; the oldest ticks are discarded once it is full.
type MemoryRepository struct {
	mu        sync.RWMutex
	maxTicks  int
	latest    map[int64]domain.Tick
	ticks     []domain.Tick
	snapshots []Snapshot
}

// NewMemoryRepository creates a repository keeping at most maxTicks history entries (<= 0 means 10000).
func NewMemoryRepository(maxTicks int) *MemoryRepository {
	if maxTicks <= 0 {
		maxTicks = 10000
	}
	return &MemoryRepository{
		maxTicks: maxTicks,
		latest:   make(map[int64]domain.Tick),
	}
}

func (r *MemoryRepository) UpsertLatestTick(ctx context.Context, t domain.Tick) error {
	r.mu.Lock()
	r.latest[t.InstrumentID] = t
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) InsertTick(ctx context.Context, t domain.Tick) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ticks) >= r.maxTicks {
		n := copy(r.ticks, r.ticks[1:])
		r.ticks = r.ticks[:n]
	}
	r.ticks = append(r.ticks, t)
	return nil
}

func (r *MemoryRepository) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	r.mu.Lock()
	r.snapshots = append(r.snapshots, Snapshot{Ts: ts, Payload: payload})
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) Latest(id int64) (domain.Tick, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.latest[id]
	return t, ok
}

// Ticks returns a copy of the stored history, oldest first.
func (r *MemoryRepository) Ticks() []domain.Tick {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Tick(nil), r.ticks...)
}

func (r *MemoryRepository) Snapshots() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Snapshot(nil), r.snapshots...)
}

var _ port.TickRepository = (*MemoryRepository)(nil)
