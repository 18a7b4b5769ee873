package domain

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestParseTickDefaultsTimestamp(t *testing.T) {
	now := time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)
	tick, err := ParseTick(map[string]any{
		"instrument_id": 101,
		"last_price":    100.5,
		"volume":        1000,
	}, now)
	if err != nil {
		t.Fatalf("ParseTick failed: %v", err)
	}
	if tick.InstrumentID != 101 || tick.LastPrice != 100.5 || tick.Volume != 1000 {
		t.Errorf("unexpected tick: %+v", tick)
	}
	if !tick.ObservedAt.Equal(now) {
		t.Errorf("ObservedAt = %v, want %v", tick.ObservedAt, now)
	}
	if tick.Bid.Valid || tick.Ask.Valid || tick.OHLC.Valid {
		t.Errorf("optional fields should be absent: %+v", tick)
	}
}

func TestParseTickOptionalFields(t *testing.T) {
	ts := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	tick, err := ParseTick(map[string]any{
		"instrument_token": json.Number("256265"),
		"timestamp":        ts.Format(time.RFC3339),
		"last_price":       "21850.35",
		"volume":           float64(42),
		"bid_price":        21850.0,
		"bid_quantity":     75,
		"ask_price":        21851.0,
		"open":             21700.0,
		"high":             21900.0,
		"low":              21650.0,
		"close":            21720.0,
		"change":           0.6,
	}, time.Now())
	if err != nil {
		t.Fatalf("ParseTick failed: %v", err)
	}
	if tick.InstrumentID != 256265 {
		t.Errorf("InstrumentID = %d, want 256265", tick.InstrumentID)
	}
	if !tick.ObservedAt.Equal(ts) {
		t.Errorf("ObservedAt = %v, want %v", tick.ObservedAt, ts)
	}
	if !tick.Bid.Valid || tick.Bid.Price != 21850.0 || tick.Bid.Quantity != 75 {
		t.Errorf("unexpected bid: %+v", tick.Bid)
	}
	if !tick.Ask.Valid || tick.Ask.Quantity != 0 {
		t.Errorf("unexpected ask: %+v", tick.Ask)
	}
	if !tick.OHLC.Valid || tick.OHLC.High != 21900.0 || tick.OHLC.Change != 0.6 {
		t.Errorf("unexpected ohlc: %+v", tick.OHLC)
	}
}

func TestParseTickUnixMillis(t *testing.T) {
	tick, err := ParseTick(map[string]any{
		"instrument_id": 7,
		"last_price":    1.0,
		"volume":        0,
		"observed_at":   int64(1700000000000),
	}, time.Now())
	if err != nil {
		t.Fatalf("ParseTick failed: %v", err)
	}
	if got := tick.ObservedAt.UnixMilli(); got != 1700000000000 {
		t.Errorf("ObservedAt ms = %d, want 1700000000000", got)
	}
}

func TestParseTickRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		raw  map[string]any
	}{
		{"nil payload", nil},
		{"missing id", map[string]any{"last_price": 1.0, "volume": 1}},
		{"zero id", map[string]any{"instrument_id": 0, "last_price": 1.0, "volume": 1}},
		{"fractional id", map[string]any{"instrument_id": 1.5, "last_price": 1.0, "volume": 1}},
		{"missing price", map[string]any{"instrument_id": 1, "volume": 1}},
		{"zero price", map[string]any{"instrument_id": 1, "last_price": 0.0, "volume": 1}},
		{"negative price", map[string]any{"instrument_id": 1, "last_price": -3.0, "volume": 1}},
		{"missing volume", map[string]any{"instrument_id": 1, "last_price": 1.0}},
		{"negative volume", map[string]any{"instrument_id": 1, "last_price": 1.0, "volume": -1}},
		{"negative bid", map[string]any{"instrument_id": 1, "last_price": 1.0, "volume": 1, "bid_price": -0.5}},
		{"negative ask", map[string]any{"instrument_id": 1, "last_price": 1.0, "volume": 1, "ask_price": -0.5}},
		{"bad timestamp", map[string]any{"instrument_id": 1, "last_price": 1.0, "volume": 1, "timestamp": "yesterday"}},
		{"bad price type", map[string]any{"instrument_id": 1, "last_price": []int{1}, "volume": 1}},
		{"negative bid quantity", map[string]any{"instrument_id": 1, "last_price": 1.0, "volume": 1, "bid_quantity": -5}},
		{"negative ask quantity", map[string]any{"instrument_id": 1, "last_price": 1.0, "volume": 1, "ask_quantity": json.Number("-1")}},
		{"volume 2^63 float", map[string]any{"instrument_id": 1, "last_price": 1.0, "volume": float64(1 << 63)}},
		{"volume 2^63 number", map[string]any{"instrument_id": 1, "last_price": 1.0, "volume": json.Number("9223372036854775808")}},
		{"bid quantity 2^63", map[string]any{"instrument_id": 1, "last_price": 1.0, "volume": 1, "bid_quantity": 9.223372036854775808e18}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTick(tc.raw, time.Now())
			if !errors.Is(err, ErrMalformedTick) {
				t.Fatalf("expected ErrMalformedTick, got %v", err)
			}
		})
	}
}

func TestParseTickZeroBidAllowed(t *testing.T) {
	tick, err := ParseTick(map[string]any{
		"instrument_id": 3,
		"last_price":    10.0,
		"volume":        5,
		"bid_price":     0.0,
	}, time.Now())
	if err != nil {
		t.Fatalf("ParseTick failed: %v", err)
	}
	if !tick.Bid.Valid || tick.Bid.Price != 0 {
		t.Errorf("unexpected bid: %+v", tick.Bid)
	}
}

func TestIntegralBounds(t *testing.T) {
	if _, ok := integral(float64(1 << 63)); ok {
		t.Error("2^63 must not convert to int64")
	}
	if n, ok := integral(-float64(1 << 63)); !ok || n != math.MinInt64 {
		t.Errorf("-2^63 = %d, %v", n, ok)
	}
	if n, ok := integral(1 << 62); !ok || n != 1<<62 {
		t.Errorf("2^62 = %d, %v", n, ok)
	}
}
