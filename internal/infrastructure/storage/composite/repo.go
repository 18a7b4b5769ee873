package composite

import (
	"context"

	"mdfeed/internal/application/port"
	"mdfeed/internal/domain"
)

type Repo struct {
	repos []port.TickRepository
}

func New(repos ...port.TickRepository) *Repo {
	// nil repos are allowed; filter in constructor for safety
	out := make([]port.TickRepository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

// Len reports how many repositories receive writes.
func (r *Repo) Len() int { return len(r.repos) }

func (r *Repo) UpsertLatestTick(ctx context.Context, t domain.Tick) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.UpsertLatestTick(ctx, t); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) InsertTick(ctx context.Context, t domain.Tick) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.InsertTick(ctx, t); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.InsertSnapshot(ctx, ts, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ port.TickRepository = (*Repo)(nil)
