package port

import (
	"context"

	"mdfeed/internal/domain"
)

type TickRepository interface {
	// Latest tick per instrument
	UpsertLatestTick(ctx context.Context, t domain.Tick) error

	// Tick history
	InsertTick(ctx context.Context, t domain.Tick) error

	// Feed stats snapshots
	InsertSnapshot(ctx context.Context, ts int64, payload string) error
}
