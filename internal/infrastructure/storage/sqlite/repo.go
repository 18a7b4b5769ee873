package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"mdfeed/internal/application/port"
	"mdfeed/internal/domain"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS latest_ticks (
  instrument_id INTEGER PRIMARY KEY,
  last_price REAL NOT NULL,
  volume INTEGER NOT NULL,
  bid_price REAL,
  bid_qty INTEGER,
  ask_price REAL,
  ask_qty INTEGER,
  open REAL,
  high REAL,
  low REAL,
  close REAL,
  change REAL,
  ts_ms INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS ticks (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  instrument_id INTEGER NOT NULL,
  last_price REAL NOT NULL,
  volume INTEGER NOT NULL,
  bid_price REAL,
  ask_price REAL,
  ts_ms INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ticks_instrument_ts ON ticks(instrument_id, ts_ms);

CREATE TABLE IF NOT EXISTS snapshots (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts_ms INTEGER NOT NULL,
  payload TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON snapshots(ts_ms);
`)
	return err
}

func (r *Repo) UpsertLatestTick(ctx context.Context, t domain.Tick) error {
	bidPx, bidQty := quoteCols(t.Bid)
	askPx, askQty := quoteCols(t.Ask)
	o, h, l, c, chg := ohlcCols(t.OHLC)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO latest_ticks(instrument_id, last_price, volume, bid_price, bid_qty, ask_price, ask_qty,
			open, high, low, close, change, ts_ms, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(instrument_id) DO UPDATE SET
		last_price=excluded.last_price, volume=excluded.volume,
		bid_price=excluded.bid_price, bid_qty=excluded.bid_qty, ask_price=excluded.ask_price, ask_qty=excluded.ask_qty,
		open=excluded.open, high=excluded.high, low=excluded.low, close=excluded.close, change=excluded.change,
		ts_ms=excluded.ts_ms, updated_at=excluded.updated_at
	`, t.InstrumentID, t.LastPrice, t.Volume, bidPx, bidQty, askPx, askQty,
		o, h, l, c, chg, t.ObservedAt.UnixMilli(), time.Now().UnixMilli())
	return err
}

func (r *Repo) InsertTick(ctx context.Context, t domain.Tick) error {
	bidPx, _ := quoteCols(t.Bid)
	askPx, _ := quoteCols(t.Ask)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ticks(instrument_id, last_price, volume, bid_price, ask_price, ts_ms, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
	`, t.InstrumentID, t.LastPrice, t.Volume, bidPx, askPx, t.ObservedAt.UnixMilli(), time.Now().UnixMilli())
	return err
}

func (r *Repo) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO snapshots(ts_ms, payload, created_at) VALUES(?, ?, ?)`, ts, payload, ts)
	return err
}

// GetLatestTick 读取某合约最近一次写入的行情；不存在时返回 sql.ErrNoRows
func (r *Repo) GetLatestTick(ctx context.Context, id int64) (domain.Tick, error) {
	var (
		t              domain.Tick
		tsMs           int64
		bidPx, askPx   sql.NullFloat64
		bidQty, askQty sql.NullInt64
		o, h, l, c, ch sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT instrument_id, last_price, volume, bid_price, bid_qty, ask_price, ask_qty,
			open, high, low, close, change, ts_ms
		FROM latest_ticks WHERE instrument_id=?`, id).
		Scan(&t.InstrumentID, &t.LastPrice, &t.Volume, &bidPx, &bidQty, &askPx, &askQty,
			&o, &h, &l, &c, &ch, &tsMs)
	if err != nil {
		return domain.Tick{}, err
	}

	t.ObservedAt = time.UnixMilli(tsMs)
	t.Bid = domain.Quote{Price: bidPx.Float64, Quantity: bidQty.Int64, Valid: bidPx.Valid || bidQty.Valid}
	t.Ask = domain.Quote{Price: askPx.Float64, Quantity: askQty.Int64, Valid: askPx.Valid || askQty.Valid}
	if o.Valid {
		t.OHLC = domain.OHLC{Open: o.Float64, High: h.Float64, Low: l.Float64, Close: c.Float64, Change: ch.Float64, Valid: true}
	}
	return t, nil
}

// ListTicks returns up to limit stored ticks for id, oldest first.
func (r *Repo) ListTicks(ctx context.Context, id int64, limit int) ([]domain.Tick, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT instrument_id, last_price, volume, ts_ms FROM (
			SELECT id, instrument_id, last_price, volume, ts_ms FROM ticks
			WHERE instrument_id=? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Tick
	for rows.Next() {
		var t domain.Tick
		var ts int64
		if err := rows.Scan(&t.InstrumentID, &t.LastPrice, &t.Volume, &ts); err != nil {
			return nil, err
		}
		t.ObservedAt = time.UnixMilli(ts)
		out = append(out, t)
	}
	return out, rows.Err()
}

func quoteCols(q domain.Quote) (sql.NullFloat64, sql.NullInt64) {
	if !q.Valid {
		return sql.NullFloat64{}, sql.NullInt64{}
	}
	return sql.NullFloat64{Float64: q.Price, Valid: true}, sql.NullInt64{Int64: q.Quantity, Valid: true}
}

func ohlcCols(o domain.OHLC) (open, high, low, cls, change sql.NullFloat64) {
	if !o.Valid {
		return
	}
	f := func(v float64) sql.NullFloat64 { return sql.NullFloat64{Float64: v, Valid: true} }
	return f(o.Open), f(o.High), f(o.Low), f(o.Close), f(o.Change)
}

var _ port.TickRepository = (*Repo)(nil)
