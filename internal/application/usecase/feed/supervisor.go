package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// StartReconnect 启动后台重连协程；已在运行时返回 false
// 运行中的请求会被记下：当前协程成功退出前会再跑一轮，不会丢失期间发生的断线
// 启动时刻的订阅集合会在重连成功后重新下发
func (f *Feed) StartReconnect(ctx context.Context) bool {
	f.supMu.Lock()
	defer f.supMu.Unlock()

	if f.supDone != nil {
		select {
		case <-f.supDone:
		default:
			f.supPending = true
			log.Debug().Msg("reconnect supervisor already running, restart queued")
			return false
		}
	}

	ids := f.SubscribedIDs()
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	f.supCancel = cancel
	f.supDone = done
	f.supPending = false

	log.Info().
		Int("instruments", len(ids)).
		Int("max_attempts", f.cfg.MaxReconnectAttempts).
		Dur("interval", f.cfg.ReconnectInterval).
		Msg("reconnect supervisor started")

	go func() {
		defer cancel()
		for {
			f.reconnectLoop(runCtx, ids)
			if !f.restartRequested(runCtx, done) {
				return
			}
			ids = mergeIDs(ids, f.SubscribedIDs())
			log.Info().Int("instruments", len(ids)).Msg("connection lost during reconnect, supervisor restarting")
		}
	}()
	return true
}

// restartRequested consumes a queued restart, or marks the supervisor finished.
// Both happen under supMu so a concurrent StartReconnect either queues or starts a new run.
func (f *Feed) restartRequested(ctx context.Context, done chan struct{}) bool {
	f.supMu.Lock()
	defer f.supMu.Unlock()
	if f.supPending && ctx.Err() == nil {
		f.supPending = false
		return true
	}
	f.supPending = false
	close(done)
	return false
}

// StopReconnect cancels the supervisor and waits up to StopTimeout for it to exit.
// Returns false when it did not exit in time. Safe to call when nothing is running.
func (f *Feed) StopReconnect() bool {
	f.supMu.Lock()
	cancel, done := f.supCancel, f.supDone
	f.supMu.Unlock()

	if done == nil {
		return true
	}
	cancel()

	select {
	case <-done:
		return true
	case <-time.After(f.cfg.StopTimeout):
		log.Warn().Dur("timeout", f.cfg.StopTimeout).Msg("reconnect supervisor did not stop in time")
		return false
	}
}

// SupervisorRunning reports whether a reconnect goroutine is live.
func (f *Feed) SupervisorRunning() bool {
	f.supMu.Lock()
	defer f.supMu.Unlock()
	if f.supDone == nil {
		return false
	}
	select {
	case <-f.supDone:
		return false
	default:
		return true
	}
}

func (f *Feed) reconnectLoop(ctx context.Context, ids []int64) {
	// 第一轮总是重新建连：触发重连时 state 可能仍是 Connected（会话已断）
	force := true
	for {
		attempt, epoch, connected, ok := f.beginAttempt(ctx, force)
		if !ok {
			return
		}

		var err error
		if connected {
			log.Info().Msg("feed connected while supervisor was waiting, restoring subscriptions")
		} else {
			log.Info().
				Int("attempt", attempt).
				Int("max_attempts", f.cfg.MaxReconnectAttempts).
				Msg("attempting to reconnect")

			err = f.connect(epoch)
			if errors.Is(err, ErrDisconnected) {
				return
			}
			if err != nil && attempt >= f.cfg.MaxReconnectAttempts {
				f.exhaust(epoch)
				return
			}
		}

		if err == nil {
			if err = f.resubscribe(ids); err == nil {
				return
			}
			// 会话在恢复订阅时又断了，按失败处理；connect 清零的次数要还回去
			log.Warn().Err(err).Msg("resubscribe failed, reconnecting again")
			f.mu.Lock()
			if f.attempts < attempt {
				f.attempts = attempt
			}
			f.mu.Unlock()
			force = true
		} else {
			force = false
		}

		timer := time.NewTimer(f.cfg.ReconnectInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("reconnect supervisor stopped")
			return
		case <-timer.C:
		}
	}
}

// beginAttempt checks cancellation and the attempt limit, then moves the feed to Reconnecting.
// Unless force is set, a feed that is already Connected is left alone and connected is true.
func (f *Feed) beginAttempt(ctx context.Context, force bool) (attempt int, epoch uint64, connected, ok bool) {
	if ctx.Err() != nil {
		log.Info().Msg("reconnect supervisor stopped")
		return 0, 0, false, false
	}

	f.mu.Lock()
	epoch = f.epoch
	if !force && f.state == StateConnected {
		f.mu.Unlock()
		return 0, epoch, true, true
	}
	if f.attempts >= f.cfg.MaxReconnectAttempts {
		f.mu.Unlock()
		f.exhaust(epoch)
		return 0, 0, false, false
	}
	f.attempts++
	attempt = f.attempts
	f.state = StateReconnecting
	f.mu.Unlock()

	// 新会话覆盖之前排队的重连请求
	f.supMu.Lock()
	f.supPending = false
	f.supMu.Unlock()

	return attempt, epoch, false, true
}

func (f *Feed) exhaust(epoch uint64) {
	f.mu.Lock()
	if f.epoch != epoch {
		f.mu.Unlock()
		return
	}
	f.state = StateError
	attempts := f.attempts
	f.mu.Unlock()

	log.Error().Int("attempts", attempts).Msg("max reconnection attempts reached")
	f.events.DispatchError(fmt.Sprintf("%v after %d attempts", ErrAttemptsExhausted, attempts))
}

func (f *Feed) resubscribe(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := f.Subscribe(ids); err != nil {
		log.Error().Err(err).Int("count", len(ids)).Msg("failed to restore subscriptions after reconnect")
		return err
	}
	log.Info().Int("count", len(ids)).Msg("subscriptions restored after reconnect")
	return nil
}

func mergeIDs(a, b []int64) []int64 {
	s := NewSubscriptionSet()
	s.Add(a...)
	s.Add(b...)
	return s.List()
}
