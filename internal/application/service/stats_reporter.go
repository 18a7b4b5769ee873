package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"mdfeed/internal/application/port"
	"mdfeed/internal/application/usecase/feed"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiDim    = "\033[2m"
)

func colorize(s, c string) string { return c + s + ansiReset }

type StatsSource interface {
	Stats() feed.Snapshot
}

// StatsReporter 定时输出 feed 快照：一行写到 Sink，JSON 写进仓储
type StatsReporter struct {
	src   StatsSource
	sink  port.Sink
	repo  port.TickRepository
	every time.Duration
}

func NewStatsReporter(src StatsSource, sink port.Sink, repo port.TickRepository, every time.Duration) *StatsReporter {
	if every <= 0 {
		every = time.Minute
	}
	return &StatsReporter{src: src, sink: sink, repo: repo, every: every}
}

func (r *StatsReporter) Run(ctx context.Context) error {
	t := time.NewTicker(r.every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			if r.sink != nil {
				_ = r.sink.NewLine()
			}
			return nil
		case now := <-t.C:
			if err := r.Report(ctx, now); err != nil {
				log.Error().Err(err).Msg("failed to persist stats snapshot")
			}
		}
	}
}

// Report writes one snapshot. Only the persistence error is returned; the sink is best effort.
func (r *StatsReporter) Report(ctx context.Context, now time.Time) error {
	snap := r.src.Stats()

	if r.sink != nil {
		_ = r.sink.WriteSnapshot(now, FormatSnapshot(snap))
	}
	if r.repo == nil {
		return nil
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return r.repo.InsertSnapshot(ctx, now.UnixMilli(), string(payload))
}

func FormatSnapshot(s feed.Snapshot) string {
	col := ansiYellow
	switch s.State {
	case feed.StateConnected:
		col = ansiGreen
	case feed.StateError:
		col = ansiRed
	}

	var sb strings.Builder
	sb.WriteString(colorize("[MDFEED] ", ansiDim))
	sb.WriteString(colorize(s.State.String(), col))
	fmt.Fprintf(&sb, " subscribed=%d buffered=%d cached=%d", s.Subscribed, s.Buffered, s.Cached)
	if s.ReconnectAttempts > 0 {
		fmt.Fprintf(&sb, " attempts=%d", s.ReconnectAttempts)
	}
	if s.MalformedTicks > 0 || s.ListenerPanics > 0 {
		sb.WriteString(colorize(fmt.Sprintf(" malformed=%d panics=%d", s.MalformedTicks, s.ListenerPanics), ansiRed))
	}
	if !s.LastConnectedAt.IsZero() {
		sb.WriteString(colorize(" since "+s.LastConnectedAt.Format("15:04:05"), ansiDim))
	}
	return sb.String()
}
