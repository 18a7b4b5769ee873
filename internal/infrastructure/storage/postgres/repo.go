package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"mdfeed/internal/application/port"
	"mdfeed/internal/domain"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS latest_ticks (
  instrument_id BIGINT PRIMARY KEY,
  last_price DOUBLE PRECISION NOT NULL,
  volume BIGINT NOT NULL,
  bid_price DOUBLE PRECISION,
  ask_price DOUBLE PRECISION,
  ts_ms BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS ticks (
  id BIGSERIAL PRIMARY KEY,
  instrument_id BIGINT NOT NULL,
  last_price DOUBLE PRECISION NOT NULL,
  volume BIGINT NOT NULL,
  bid_price DOUBLE PRECISION,
  ask_price DOUBLE PRECISION,
  ts_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ticks_instrument_ts ON ticks(instrument_id, ts_ms);

CREATE TABLE IF NOT EXISTS snapshots (
  id BIGSERIAL PRIMARY KEY,
  ts_ms BIGINT NOT NULL,
  payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON snapshots(ts_ms);
`)
	return err
}

func (r *Repo) UpsertLatestTick(ctx context.Context, t domain.Tick) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO latest_ticks(instrument_id, last_price, volume, bid_price, ask_price, ts_ms)
		VALUES($1, $2, $3, $4, $5, $6)
		ON CONFLICT(instrument_id) DO UPDATE SET
		last_price=EXCLUDED.last_price, volume=EXCLUDED.volume,
		bid_price=EXCLUDED.bid_price, ask_price=EXCLUDED.ask_price, ts_ms=EXCLUDED.ts_ms
	`, t.InstrumentID, t.LastPrice, t.Volume, price(t.Bid), price(t.Ask), t.ObservedAt.UnixMilli())
	return err
}

func (r *Repo) InsertTick(ctx context.Context, t domain.Tick) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ticks(instrument_id, last_price, volume, bid_price, ask_price, ts_ms)
		VALUES($1, $2, $3, $4, $5, $6)
	`, t.InstrumentID, t.LastPrice, t.Volume, price(t.Bid), price(t.Ask), t.ObservedAt.UnixMilli())
	return err
}

func (r *Repo) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO snapshots(ts_ms, payload) VALUES($1, $2)`, ts, payload)
	return err
}

func price(q domain.Quote) sql.NullFloat64 {
	return sql.NullFloat64{Float64: q.Price, Valid: q.Valid}
}

var _ port.TickRepository = (*Repo)(nil)
