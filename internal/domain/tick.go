package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedTick 原始行情缺少必填字段或不满足 Tick 约束
var ErrMalformedTick = errors.New("malformed tick")

// Quote is one side of the top of book. Valid is false when the source did not send it.
type Quote struct {
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
	Valid    bool    `json:"valid"`
}

// OHLC holds the day's open/high/low/close and change from the previous close.
type OHLC struct {
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Change float64 `json:"change"`
	Valid  bool    `json:"valid"`
}

// Tick 单个合约的一次标准化行情更新（值类型，构造后不可变）
type Tick struct {
	InstrumentID int64     `json:"instrument_id"`
	ObservedAt   time.Time `json:"observed_at"`
	LastPrice    float64   `json:"last_price"`
	Volume       int64     `json:"volume"`
	Bid          Quote     `json:"bid"`
	Ask          Quote     `json:"ask"`
	OHLC         OHLC      `json:"ohlc"`
}

// ParseTick builds a Tick from a loosely typed payload.
// Accepted keys: instrument_id (or instrument_token), last_price, volume, observed_at (or timestamp),
// bid_price, bid_quantity, ask_price, ask_quantity, open, high, low, close, change.
// A missing timestamp is replaced by now.
func ParseTick(raw map[string]any, now time.Time) (Tick, error) {
	if raw == nil {
		return Tick{}, fmt.Errorf("%w: empty payload", ErrMalformedTick)
	}

	var t Tick

	idv, ok := lookup(raw, "instrument_id", "instrument_token")
	if !ok {
		return Tick{}, fmt.Errorf("%w: missing instrument_id", ErrMalformedTick)
	}
	id, ok := toInt(idv)
	if !ok || id <= 0 {
		return Tick{}, fmt.Errorf("%w: invalid instrument_id %v", ErrMalformedTick, idv)
	}
	t.InstrumentID = id

	pv, ok := lookup(raw, "last_price")
	if !ok {
		return Tick{}, fmt.Errorf("%w: instrument %d: missing last_price", ErrMalformedTick, id)
	}
	px, ok := toFloat(pv)
	if !ok || px <= 0 {
		return Tick{}, fmt.Errorf("%w: instrument %d: last_price must be positive, got %v", ErrMalformedTick, id, pv)
	}
	t.LastPrice = px

	vv, ok := lookup(raw, "volume")
	if !ok {
		return Tick{}, fmt.Errorf("%w: instrument %d: missing volume", ErrMalformedTick, id)
	}
	vol, ok := toInt(vv)
	if !ok || vol < 0 {
		return Tick{}, fmt.Errorf("%w: instrument %d: volume must be non-negative, got %v", ErrMalformedTick, id, vv)
	}
	t.Volume = vol

	t.ObservedAt = now
	if tv, ok := lookup(raw, "observed_at", "timestamp"); ok {
		ts, ok := toTime(tv)
		if !ok {
			return Tick{}, fmt.Errorf("%w: instrument %d: invalid timestamp %v", ErrMalformedTick, id, tv)
		}
		t.ObservedAt = ts
	}

	var err error
	if t.Bid, err = parseQuote(raw, id, "bid"); err != nil {
		return Tick{}, err
	}
	if t.Ask, err = parseQuote(raw, id, "ask"); err != nil {
		return Tick{}, err
	}
	if t.OHLC, err = parseOHLC(raw, id); err != nil {
		return Tick{}, err
	}
	return t, nil
}

func parseQuote(raw map[string]any, id int64, side string) (Quote, error) {
	var q Quote
	if v, ok := lookup(raw, side+"_price"); ok {
		px, ok := toFloat(v)
		if !ok || px < 0 {
			return Quote{}, fmt.Errorf("%w: instrument %d: %s_price must be non-negative, got %v", ErrMalformedTick, id, side, v)
		}
		q.Price = px
		q.Valid = true
	}
	if v, ok := lookup(raw, side+"_quantity"); ok {
		n, ok := toInt(v)
		if !ok || n < 0 {
			return Quote{}, fmt.Errorf("%w: instrument %d: %s_quantity must be a non-negative integer, got %v", ErrMalformedTick, id, side, v)
		}
		q.Quantity = n
		q.Valid = true
	}
	return q, nil
}

func parseOHLC(raw map[string]any, id int64) (OHLC, error) {
	var o OHLC
	fields := []struct {
		key string
		dst *float64
	}{
		{"open", &o.Open},
		{"high", &o.High},
		{"low", &o.Low},
		{"close", &o.Close},
		{"change", &o.Change},
	}
	for _, f := range fields {
		v, ok := lookup(raw, f.key)
		if !ok {
			continue
		}
		n, ok := toFloat(v)
		if !ok {
			return OHLC{}, fmt.Errorf("%w: instrument %d: invalid %s %v", ErrMalformedTick, id, f.key, v)
		}
		*f.dst = n
		o.Valid = true
	}
	return o, nil
}

// lookup returns the first non-nil value among keys.
func lookup(raw map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint32:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint32:
		return int64(x), true
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, true
		}
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return integral(f)
	case float64:
		return integral(x)
	case float32:
		return integral(float64(x))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func integral(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	// float64(math.MaxInt64) 会舍入到 2^63，必须用 >=
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// 时间戳支持 time.Time、RFC3339 字符串、"2006-01-02 15:04:05" 以及毫秒级 unix 数值
var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"}

func toTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return time.Time{}, false
		}
		return x, true
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
			return time.UnixMilli(ms), true
		}
		return time.Time{}, false
	default:
		ms, ok := toInt(v)
		if !ok || ms <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(ms), true
	}
}
