package feed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"mdfeed/internal/application/port"
	"mdfeed/internal/domain"
)

// Config 行情订阅客户端配置
type Config struct {
	BufferSize           int           // ring buffer capacity
	ReconnectInterval    time.Duration // wait between failed reconnect attempts
	MaxReconnectAttempts int           // 0 disables retrying
	StopTimeout          time.Duration // how long Disconnect waits for the supervisor
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		BufferSize:           1000,
		ReconnectInterval:    10 * time.Second,
		MaxReconnectAttempts: 5,
		StopTimeout:          5 * time.Second,
	}
}

// Snapshot is a point-in-time copy of the feed's bookkeeping.
type Snapshot struct {
	State             State     `json:"state"`
	Subscribed        int       `json:"subscribed"`
	Buffered          int       `json:"buffered"`
	Cached            int       `json:"cached"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	LastConnectedAt   time.Time `json:"last_connected_at"`
	MalformedTicks    uint64    `json:"malformed_ticks"`
	ListenerPanics    uint64    `json:"listener_panics"`
}

// Feed 连接控制器：持有状态机、订阅集合、环形缓冲与最新值缓存
// 所有可变状态都由 mu 保护；传输层 I/O 与回调分发都在锁外进行
type Feed struct {
	cfg       Config
	transport port.Transport
	events    *Dispatcher
	now       func() time.Time

	mu            sync.Mutex
	state         State
	subs          *SubscriptionSet
	ring          *Ring[domain.Tick]
	latest        *LatestCache
	attempts      int
	lastConnected time.Time
	epoch         uint64 // bumped by Disconnect; a connect started under an older epoch is abandoned

	supMu      sync.Mutex
	supCancel  context.CancelFunc
	supDone    chan struct{}
	supPending bool // restart requested while the supervisor was live

	malformed    atomic.Uint64
	malformedLog rate.Sometimes
}

// New creates a feed in the Disconnected state.
func New(transport port.Transport, cfg Config) *Feed {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.ReconnectInterval < 0 {
		cfg.ReconnectInterval = 0
	}
	if cfg.MaxReconnectAttempts < 0 {
		cfg.MaxReconnectAttempts = 0
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = def.StopTimeout
	}

	return &Feed{
		cfg:          cfg,
		transport:    transport,
		events:       NewDispatcher(),
		now:          time.Now,
		state:        StateDisconnected,
		subs:         NewSubscriptionSet(),
		ring:         NewRing[domain.Tick](cfg.BufferSize),
		latest:       NewLatestCache(),
		malformedLog: rate.Sometimes{First: 10, Interval: 10 * time.Second},
	}
}

// Register adds l for every listener interface it implements. See Dispatcher.Register.
func (f *Feed) Register(l any) int {
	n := f.events.Register(l)
	if n == 0 {
		log.Warn().Str("type", fmt.Sprintf("%T", l)).Msg("value implements no feed listener interface")
	}
	return n
}

// Connect opens the transport session. Valid from any state.
// On failure the feed moves to Error, OnError fires and the returned error wraps ErrTransport.
func (f *Feed) Connect() error {
	f.mu.Lock()
	epoch := f.epoch
	f.mu.Unlock()
	return f.connect(epoch)
}

func (f *Feed) connect(epoch uint64) error {
	f.mu.Lock()
	if f.epoch != epoch {
		f.mu.Unlock()
		return ErrDisconnected
	}
	f.state = StateConnecting
	f.mu.Unlock()

	log.Info().Msg("connecting to market data feed")
	openErr := f.transport.Open()

	f.mu.Lock()
	if f.epoch != epoch {
		f.mu.Unlock()
		if openErr == nil {
			_ = f.transport.Close()
		}
		log.Warn().Msg("feed disconnected while connect was in flight, abandoning session")
		return ErrDisconnected
	}
	if openErr != nil {
		f.state = StateError
		f.mu.Unlock()

		msg := fmt.Sprintf("connect failed: %v", openErr)
		log.Error().Err(openErr).Msg("failed to connect to market data feed")
		f.events.DispatchError(msg)
		return fmt.Errorf("%w: open: %v", ErrTransport, openErr)
	}
	f.state = StateConnected
	f.lastConnected = f.now()
	f.attempts = 0
	f.mu.Unlock()

	log.Info().Msg("connected to market data feed")
	f.events.DispatchConnect()
	return nil
}

// Disconnect stops the reconnect supervisor, tears down the session, clears subscriptions and
// dispatches OnDisconnect. Calling it again is a no-op apart from the event.
func (f *Feed) Disconnect() {
	log.Info().Msg("disconnecting from market data feed")

	f.StopReconnect()

	f.mu.Lock()
	prev := f.state
	f.epoch++
	f.state = StateDisconnected
	f.subs.Clear()
	f.mu.Unlock()

	if prev != StateDisconnected {
		if err := f.transport.Close(); err != nil {
			log.Error().Err(err).Msg("error closing market data transport")
			f.events.DispatchError(fmt.Sprintf("close failed: %v", err))
		}
	}

	log.Info().Str("previous_state", prev.String()).Msg("disconnected from market data feed")
	f.events.DispatchDisconnect()
}

// Subscribe adds ids to the subscription set and asks the source to stream them.
// The full batch is sent even when some ids are already subscribed.
func (f *Feed) Subscribe(ids []int64) error {
	if f.State() != StateConnected {
		log.Warn().Int("count", len(ids)).Msg("cannot subscribe: not connected to market data feed")
		return ErrNotConnected
	}
	if len(ids) == 0 {
		return nil
	}

	if err := f.transport.SendSubscribe(ids); err != nil {
		log.Error().Err(err).Int("count", len(ids)).Msg("failed to subscribe instruments")
		f.events.DispatchError(fmt.Sprintf("subscribe failed: %v", err))
		return fmt.Errorf("%w: subscribe: %v", ErrTransport, err)
	}

	f.mu.Lock()
	if f.state != StateConnected {
		f.mu.Unlock()
		return ErrNotConnected
	}
	added := f.subs.Add(ids...)
	total := f.subs.Len()
	f.mu.Unlock()

	log.Info().Int("requested", len(ids)).Int("added", added).Int("total", total).Msg("subscribed instruments")
	return nil
}

// Unsubscribe removes ids locally in any state and evicts their cached ticks.
// When connected the source is told as well; a send failure is returned but the local removal stands.
func (f *Feed) Unsubscribe(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	f.mu.Lock()
	removed := f.subs.Remove(ids...)
	var evicted []int64
	for _, id := range ids {
		if _, ok := f.latest.Get(id); ok {
			f.latest.Remove(id)
			evicted = append(evicted, id)
		}
	}
	connected := f.state == StateConnected
	f.mu.Unlock()

	log.Info().Int("requested", len(ids)).Int("removed", len(removed)).Msg("unsubscribed instruments")
	if len(evicted) > 0 {
		f.events.DispatchEvict(evicted)
	}

	if !connected {
		return nil
	}
	if err := f.transport.SendUnsubscribe(ids); err != nil {
		log.Error().Err(err).Int("count", len(ids)).Msg("failed to send unsubscribe")
		f.events.DispatchError(fmt.Sprintf("unsubscribe failed: %v", err))
		return fmt.Errorf("%w: unsubscribe: %v", ErrTransport, err)
	}
	return nil
}

// ProcessTick ingests one raw payload. Malformed payloads are dropped and reported through OnError.
// It does not require the Connected state.
func (f *Feed) ProcessTick(raw map[string]any) error {
	t, err := domain.ParseTick(raw, f.now())
	if err != nil {
		f.malformed.Add(1)
		f.malformedLog.Do(func() {
			log.Warn().Err(err).Uint64("malformed_total", f.malformed.Load()).Msg("dropping malformed tick")
		})
		f.events.DispatchError(err.Error())
		return err
	}

	f.mu.Lock()
	f.ring.Push(t)
	f.latest.Set(t)
	f.mu.Unlock()

	f.events.DispatchTick(t)
	return nil
}

// Latest returns the most recent tick for id.
func (f *Feed) Latest(id int64) (domain.Tick, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest.Get(id)
}

// Buffered returns the n most recent ticks oldest first; n <= 0 returns the whole buffer.
func (f *Feed) Buffered(n int) []domain.Tick {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ring.Last(n)
}

// ClearBuffer empties the ring buffer. The latest-value cache is untouched.
func (f *Feed) ClearBuffer() {
	f.mu.Lock()
	f.ring.Clear()
	f.mu.Unlock()
	log.Info().Msg("tick buffer cleared")
}

func (f *Feed) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Feed) IsConnected() bool {
	return f.State() == StateConnected
}

// SubscribedIDs returns a sorted copy of the subscription set.
func (f *Feed) SubscribedIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs.List()
}

// Stats returns a snapshot of the feed's counters.
func (f *Feed) Stats() Snapshot {
	f.mu.Lock()
	s := Snapshot{
		State:             f.state,
		Subscribed:        f.subs.Len(),
		Buffered:          f.ring.Len(),
		Cached:            f.latest.Len(),
		ReconnectAttempts: f.attempts,
		LastConnectedAt:   f.lastConnected,
	}
	f.mu.Unlock()

	s.MalformedTicks = f.malformed.Load()
	s.ListenerPanics = f.events.Panics()
	return s
}
