package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ErrNotOpen 会话未建立或已关闭时发送
var ErrNotOpen = errors.New("ws: session not open")

type Options struct {
	URL              string // e.g. wss://feed.example.com/ws
	Mode             string // optional stream mode sent after every subscribe
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	ReadTimeout      time.Duration
}

func (o *Options) applyDefaults() {
	o.URL = strings.TrimSpace(o.URL)
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
}

// control 出站控制帧 {"a": action, "v": value}
type control struct {
	Action string `json:"a"`
	Value  any    `json:"v"`
}

// session is one dialed connection and its goroutines.
type session struct {
	id   string
	conn *websocket.Conn
	stop chan struct{}
	done chan struct{}
}

// Client 单连接 WebSocket 传输层，实现 port.Transport
// 入站文本帧交给 onTick；连接意外断开时调用 onDrop（主动 Close 不会触发）
type Client struct {
	opts   Options
	dialer websocket.Dialer

	mu     sync.Mutex
	sess   *session
	onTick func(map[string]any) error
	onDrop func(error)

	writeMu sync.Mutex
}

func New(opts Options) *Client {
	opts.applyDefaults()
	return &Client{
		opts:   opts,
		dialer: websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
	}
}

// SetHandlers installs the inbound callbacks. Either may be nil.
func (c *Client) SetHandlers(onTick func(map[string]any) error, onDrop func(error)) {
	c.mu.Lock()
	c.onTick = onTick
	c.onDrop = onDrop
	c.mu.Unlock()
}

// Open dials a new session, replacing any existing one.
func (c *Client) Open() error {
	if c.opts.URL == "" {
		return errors.New("ws: url empty")
	}
	c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.HandshakeTimeout)
	conn, _, err := c.dialer.DialContext(ctx, c.opts.URL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("ws dial: %w", err)
	}

	s := &session{
		id:   uuid.NewString(),
		conn: conn,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		return nil
	})

	c.mu.Lock()
	c.sess = s
	c.mu.Unlock()

	go c.readLoop(s)
	go c.pingLoop(s)

	log.Info().Str("session", s.id).Str("url", redact(c.opts.URL)).Msg("ws connected")
	return nil
}

// Close ends the current session. Closing an already closed client is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	s := c.sess
	c.sess = nil
	c.mu.Unlock()
	if s == nil {
		return nil
	}

	close(s.stop)

	c.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.opts.WriteTimeout))
	c.writeMu.Unlock()

	err := s.conn.Close()

	// the read loop may be the caller (a handler closing the feed); do not wait forever on ourselves
	select {
	case <-s.done:
	case <-time.After(c.opts.WriteTimeout):
		log.Warn().Str("session", s.id).Msg("ws read loop did not exit in time")
	}

	log.Info().Str("session", s.id).Msg("ws closed")
	return err
}

func (c *Client) SendSubscribe(ids []int64) error {
	if err := c.send(control{Action: "subscribe", Value: ids}); err != nil {
		return err
	}
	if c.opts.Mode != "" {
		return c.send(control{Action: "mode", Value: []any{c.opts.Mode, ids}})
	}
	return nil
}

func (c *Client) SendUnsubscribe(ids []int64) error {
	return c.send(control{Action: "unsubscribe", Value: ids})
}

// SessionID returns the id of the live session, or "" when closed.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.id
}

func (c *Client) send(msg control) error {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil {
		return ErrNotOpen
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("ws write %s: %w", msg.Action, err)
	}
	return nil
}

func (c *Client) readLoop(s *session) {
	defer close(s.done)

	for {
		typ, b, err := s.conn.ReadMessage()
		if err != nil {
			c.dropped(s, err)
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))

		if typ != websocket.TextMessage {
			log.Debug().Str("session", s.id).Int("bytes", len(b)).Msg("ignoring binary frame")
			continue
		}
		c.handleText(s, b)
	}
}

func (c *Client) pingLoop(s *session) {
	t := time.NewTicker(c.opts.PingInterval)
	defer t.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-s.done:
			return
		case <-t.C:
			c.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(c.opts.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				log.Debug().Str("session", s.id).Err(err).Msg("ws ping failed")
			}
		}
	}
}

// dropped detaches s if it is still current and reports the drop.
func (c *Client) dropped(s *session, err error) {
	c.mu.Lock()
	current := c.sess == s
	if current {
		c.sess = nil
	}
	onDrop := c.onDrop
	c.mu.Unlock()

	if !current {
		return
	}

	close(s.stop)
	_ = s.conn.Close()
	log.Warn().Str("session", s.id).Err(err).Msg("ws disconnected")
	if onDrop != nil {
		onDrop(err)
	}
}

// handleText 文本帧可以是单个对象或对象数组
func (c *Client) handleText(s *session, b []byte) {
	c.mu.Lock()
	onTick := c.onTick
	c.mu.Unlock()
	if onTick == nil {
		return
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		log.Error().Str("session", s.id).Err(err).Msg("json unmarshal failed")
		return
	}

	switch x := v.(type) {
	case map[string]any:
		_ = onTick(x)
	case []any:
		for _, item := range x {
			m, ok := item.(map[string]any)
			if !ok {
				log.Warn().Str("session", s.id).Msg("skipping non-object array element")
				continue
			}
			_ = onTick(m)
		}
	default:
		log.Warn().Str("session", s.id).Msg("unexpected frame payload")
	}
}

// redact drops the query string, which may carry credentials.
func redact(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
