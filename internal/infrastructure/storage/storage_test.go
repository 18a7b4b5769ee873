package storage

import (
	"context"
	"testing"

	"mdfeed/internal/domain"
)

func TestMemoryRepositoryCapsHistory(t *testing.T) {
	r := NewMemoryRepository(3)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		tk := domain.Tick{InstrumentID: 1, LastPrice: float64(i)}
		_ = r.InsertTick(ctx, tk)
		_ = r.UpsertLatestTick(ctx, tk)
	}

	ticks := r.Ticks()
	if len(ticks) != 3 || ticks[0].LastPrice != 3 || ticks[2].LastPrice != 5 {
		t.Errorf("unexpected history: %+v", ticks)
	}
	if got, ok := r.Latest(1); !ok || got.LastPrice != 5 {
		t.Errorf("latest = %+v, %v", got, ok)
	}

	_ = r.InsertSnapshot(ctx, 10, "{}")
	if s := r.Snapshots(); len(s) != 1 || s[0].Ts != 10 {
		t.Errorf("snapshots = %+v", s)
	}
}
