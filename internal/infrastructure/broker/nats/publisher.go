package nats

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go"

	"mdfeed/internal/application/port"
	"mdfeed/internal/domain"
)

// conn is the part of *nats.Conn the publisher needs.
type conn interface {
	Publish(subj string, data []byte) error
}

// Publisher 把行情和统计快照发布到 NATS，作为一个 TickRepository 挂在 composite 后面
// subjects: <prefix>.ticks.<instrument_id>, <prefix>.stats
type Publisher struct {
	nc     *nats.Conn // nil when built around a custom conn
	pub    conn
	prefix string
}

func Connect(url, prefix string, opts ...nats.Option) (*Publisher, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	p := NewPublisher(nc, prefix)
	p.nc = nc
	return p, nil
}

func NewPublisher(c conn, prefix string) *Publisher {
	prefix = strings.Trim(strings.ReplaceAll(strings.TrimSpace(prefix), ":", "."), ".")
	if prefix == "" {
		prefix = "mdfeed"
	}
	return &Publisher{pub: c, prefix: prefix}
}

// UpsertLatestTick is a no-op: every tick is already published by InsertTick.
func (p *Publisher) UpsertLatestTick(ctx context.Context, t domain.Tick) error {
	return nil
}

func (p *Publisher) InsertTick(ctx context.Context, t domain.Tick) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return p.pub.Publish(p.TickSubject(t.InstrumentID), b)
}

func (p *Publisher) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	return p.pub.Publish(p.prefix+".stats", []byte(payload))
}

func (p *Publisher) TickSubject(id int64) string {
	return p.prefix + ".ticks." + strconv.FormatInt(id, 10)
}

func (p *Publisher) Close() error {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
	return nil
}

var _ port.TickRepository = (*Publisher)(nil)
