package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"mdfeed/internal/application/port"
	"mdfeed/internal/domain"
)

// TickRecorder 把行情异步写入仓储：OnTick 只入队（队列满直接丢弃并计数），Run 负责落库
type TickRecorder struct {
	repo         port.TickRepository
	queue        chan domain.Tick
	writeTimeout time.Duration

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64

	dropLog rate.Sometimes
	failLog rate.Sometimes
}

func NewTickRecorder(repo port.TickRepository, queueSize int, writeTimeout time.Duration) *TickRecorder {
	if queueSize <= 0 {
		queueSize = 4096
	}
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Second
	}
	return &TickRecorder{
		repo:         repo,
		queue:        make(chan domain.Tick, queueSize),
		writeTimeout: writeTimeout,
		dropLog:      rate.Sometimes{First: 1, Interval: 10 * time.Second},
		failLog:      rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
}

func (r *TickRecorder) OnTick(t domain.Tick) {
	select {
	case r.queue <- t:
	default:
		n := r.dropped.Add(1)
		r.dropLog.Do(func() {
			log.Warn().Uint64("dropped_total", n).Int("queue_size", cap(r.queue)).Msg("tick recorder queue full, dropping ticks")
		})
	}
}

// Run drains the queue into the repository until ctx is done, then flushes what is left.
func (r *TickRecorder) Run(ctx context.Context) error {
	log.Info().Int("queue_size", cap(r.queue)).Msg("tick recorder started")
	for {
		select {
		case <-ctx.Done():
			r.flush()
			log.Info().
				Uint64("written", r.written.Load()).
				Uint64("dropped", r.dropped.Load()).
				Uint64("failed", r.failed.Load()).
				Msg("tick recorder stopped")
			return nil
		case t := <-r.queue:
			// 已出队的 tick 不随 ctx 取消而丢弃，写入只受 writeTimeout 约束
			r.write(context.WithoutCancel(ctx), t)
		}
	}
}

func (r *TickRecorder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()
	for {
		select {
		case t := <-r.queue:
			if ctx.Err() != nil {
				r.dropped.Add(1)
				continue
			}
			r.write(ctx, t)
		default:
			return
		}
	}
}

func (r *TickRecorder) write(ctx context.Context, t domain.Tick) {
	wctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	err := r.repo.UpsertLatestTick(wctx, t)
	if ierr := r.repo.InsertTick(wctx, t); err == nil {
		err = ierr
	}
	if err != nil {
		n := r.failed.Add(1)
		r.failLog.Do(func() {
			log.Error().Err(err).Int64("instrument_id", t.InstrumentID).Uint64("failed_total", n).Msg("failed to persist tick")
		})
		return
	}
	r.written.Add(1)
}

func (r *TickRecorder) Written() uint64 { return r.written.Load() }
func (r *TickRecorder) Dropped() uint64 { return r.dropped.Load() }
func (r *TickRecorder) Failed() uint64  { return r.failed.Load() }
