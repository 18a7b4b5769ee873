package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"mdfeed/internal/application/port"
	"mdfeed/internal/domain"

	"github.com/redis/go-redis/v9"
)

type Repo struct {
	rdb          *redis.Client
	prefix       string
	ttl          time.Duration
	maxLen       int64
	keyLatest    string // prefix + ":latest"
	tickStream   string // prefix + ":ticks"
	tickChan     string // prefix + ":ticks:pub"
	keySnapshots string // prefix + ":stats"
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, streamMaxLen int64) *Repo {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "mdfeed"
	}
	return &Repo{
		rdb:          rdb,
		prefix:       prefix,
		ttl:          ttl,
		maxLen:       streamMaxLen,
		keyLatest:    prefix + ":latest",
		tickStream:   prefix + ":ticks",
		tickChan:     prefix + ":ticks:pub",
		keySnapshots: prefix + ":stats",
	}
}

// UpsertLatestTick Hash: field = instrument id -> tick json
func (r *Repo) UpsertLatestTick(ctx context.Context, t domain.Tick) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}

	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, strconv.FormatInt(t.InstrumentID, 10), string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Repo) InsertTick(ctx context.Context, t domain.Tick) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}

	// 1) Stream: XADD <stream> MAXLEN ~ n * ...
	args := &redis.XAddArgs{
		Stream: r.tickStream,
		Values: map[string]any{
			"instrument_id": t.InstrumentID,
			"last_price":    t.LastPrice,
			"volume":        t.Volume,
			"ts_ms":         t.ObservedAt.UnixMilli(),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	if err := r.rdb.XAdd(ctx, args).Err(); err != nil {
		return err
	}

	// 2) PubSub: PUBLISH <channel> json
	return r.rdb.Publish(ctx, r.tickChan, string(b)).Err()
}

func (r *Repo) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	return r.rdb.Set(ctx, r.keySnapshots, payload, r.ttl).Err()
}

// GetLatestTick reads one instrument back from the latest hash. Missing ids return redis.Nil.
func (r *Repo) GetLatestTick(ctx context.Context, id int64) (domain.Tick, error) {
	s, err := r.rdb.HGet(ctx, r.keyLatest, strconv.FormatInt(id, 10)).Result()
	if err != nil {
		return domain.Tick{}, err
	}
	var t domain.Tick
	if err := json.Unmarshal([]byte(s), &t); err != nil {
		return domain.Tick{}, err
	}
	return t, nil
}

var _ port.TickRepository = (*Repo)(nil)
