package feed

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"mdfeed/internal/domain"
)

type TickListener interface {
	OnTick(t domain.Tick)
}

type ConnectListener interface {
	OnConnect()
}

type DisconnectListener interface {
	OnDisconnect()
}

type ErrorListener interface {
	OnError(msg string)
}

// EvictListener is told which instruments were dropped from the latest-value cache.
type EvictListener interface {
	OnEvict(ids []int64)
}

// Function adapters, e.g. f.Register(feed.TickFunc(func(t domain.Tick) { ... })).
type (
	TickFunc       func(t domain.Tick)
	ConnectFunc    func()
	DisconnectFunc func()
	ErrorFunc      func(msg string)
	EvictFunc      func(ids []int64)
)

func (fn TickFunc) OnTick(t domain.Tick) { fn(t) }
func (fn ConnectFunc) OnConnect()        { fn() }
func (fn DisconnectFunc) OnDisconnect()  { fn() }
func (fn ErrorFunc) OnError(msg string)  { fn(msg) }
func (fn EvictFunc) OnEvict(ids []int64) { fn(ids) }

// Dispatcher keeps one ordered, append-only list per event kind.
// Listeners run synchronously in registration order; a panic in one is recovered and counted.
type Dispatcher struct {
	mu         sync.RWMutex
	tick       []TickListener
	connect    []ConnectListener
	disconnect []DisconnectListener
	errs       []ErrorListener
	evict      []EvictListener

	panics atomic.Uint64
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Register 按 l 实现的接口分别登记，返回登记的事件种类数（0 表示 l 不是任何监听器）
// 同一个监听器登记两次会被调用两次
func (d *Dispatcher) Register(l any) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	if x, ok := l.(TickListener); ok {
		d.tick = append(d.tick, x)
		n++
	}
	if x, ok := l.(ConnectListener); ok {
		d.connect = append(d.connect, x)
		n++
	}
	if x, ok := l.(DisconnectListener); ok {
		d.disconnect = append(d.disconnect, x)
		n++
	}
	if x, ok := l.(ErrorListener); ok {
		d.errs = append(d.errs, x)
		n++
	}
	if x, ok := l.(EvictListener); ok {
		d.evict = append(d.evict, x)
		n++
	}
	return n
}

func (d *Dispatcher) DispatchTick(t domain.Tick) {
	d.mu.RLock()
	ls := d.tick
	d.mu.RUnlock()
	for _, l := range ls {
		d.safely("tick", func() { l.OnTick(t) })
	}
}

func (d *Dispatcher) DispatchConnect() {
	d.mu.RLock()
	ls := d.connect
	d.mu.RUnlock()
	for _, l := range ls {
		d.safely("connect", l.OnConnect)
	}
}

func (d *Dispatcher) DispatchDisconnect() {
	d.mu.RLock()
	ls := d.disconnect
	d.mu.RUnlock()
	for _, l := range ls {
		d.safely("disconnect", l.OnDisconnect)
	}
}

func (d *Dispatcher) DispatchError(msg string) {
	d.mu.RLock()
	ls := d.errs
	d.mu.RUnlock()
	for _, l := range ls {
		d.safely("error", func() { l.OnError(msg) })
	}
}

func (d *Dispatcher) DispatchEvict(ids []int64) {
	d.mu.RLock()
	ls := d.evict
	d.mu.RUnlock()
	for _, l := range ls {
		d.safely("evict", func() { l.OnEvict(ids) })
	}
}

// Panics returns how many listener invocations panicked.
func (d *Dispatcher) Panics() uint64 {
	return d.panics.Load()
}

func (d *Dispatcher) safely(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			log.Error().
				Str("event", kind).
				Str("panic", fmt.Sprint(r)).
				Msg("feed listener panicked")
		}
	}()
	fn()
}
