// Package feed is the client side of the /ws/usage push feed. It keeps one
// socket open, republishes today's per-task seconds on every message and
// reconnects after a fixed delay.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"screentime/internal/logger"
	"screentime/internal/metrics"
	"screentime/internal/timefmt"
)

const (
	DefaultReconnectDelay = 3 * time.Second
	UsagePath             = "/ws/usage"

	readWait  = 60 * time.Second
	writeWait = 10 * time.Second
)

var ErrClosed = errors.New("feed client closed")

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

type Options struct {
	ReconnectDelay time.Duration
	// MaxRetries bounds consecutive failed attempts; 0 retries forever.
	MaxRetries int
	Dialer     *websocket.Dialer
	Header     http.Header
	Now        func() time.Time
}

type Client struct {
	url  string
	opts Options
	log  *slog.Logger

	mu      sync.Mutex
	state   State
	running bool
	closed  bool
	cancel  context.CancelFunc
	conn    *websocket.Conn
	done    chan struct{}
	latest  map[int64]int64
	subs    map[int]chan map[int64]int64
	nextSub int
}

func New(endpoint string, opts Options) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{
		url:    endpoint,
		opts:   opts,
		log:    logger.Component("feed"),
		latest: map[int64]int64{},
		subs:   map[int]chan map[int64]int64{},
	}
}

// EndpointFromBase derives the socket URL from the backend base URL:
// https becomes wss, http becomes ws, and the usage path is appended.
func EndpointFromBase(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse backend url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported backend scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + UsagePath
	return u.String(), nil
}

// Connect starts the connection loop. It is a no-op while a connection is
// open or being attempted.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.running {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.done = make(chan struct{})
	go c.run(ctx, c.done)
	return nil
}

// Close tears the client down whatever its state; no reconnect follows.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		_ = c.conn.Close()
	}
	done := c.done
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.mu.Unlock()

	if done != nil {
		<-done
	}
	return nil
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Latest returns a copy of the last published mapping.
func (c *Client) Latest() map[int64]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int64]int64, len(c.latest))
	for k, v := range c.latest {
		out[k] = v
	}
	return out
}

// Subscribe delivers each new mapping; a slow reader only sees the newest.
func (c *Client) Subscribe() (<-chan map[int64]int64, func()) {
	ch := make(chan map[int64]int64, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.state = Disconnected
		c.mu.Unlock()
		close(done)
	}()

	failures := 0
	for {
		c.setState(Connecting)
		conn, _, err := c.opts.Dialer.DialContext(ctx, c.url, c.opts.Header)
		if err == nil && c.attach(conn) {
			failures = 0
			c.log.Info("usage feed connected", "url", c.url)
			c.readLoop(conn)
			c.detach()
		} else if err != nil {
			failures++
			c.log.Warn("usage feed dial failed", "url", c.url, "attempt", failures, "error", err)
		}
		c.setState(Disconnected)

		if ctx.Err() != nil || c.isClosed() {
			return
		}
		if c.opts.MaxRetries > 0 && failures >= c.opts.MaxRetries {
			c.log.Error("usage feed giving up", "attempts", failures)
			return
		}

		metrics.FeedReconnects.Inc()
		timer := time.NewTimer(c.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// attach records conn as the open connection unless Close won the race.
func (c *Client) attach(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = conn.Close()
		return false
	}
	c.conn = conn
	c.state = Connected
	return true
}

func (c *Client) detach() {
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
}

func (c *Client) readLoop(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !c.isClosed() {
				c.log.Warn("usage feed disconnected", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg []byte) {
	snapshot, err := ParseSnapshot(msg, timefmt.DateOf(c.opts.Now()))
	if err != nil {
		metrics.FeedMessages.WithLabelValues("malformed").Inc()
		c.log.Warn("dropping malformed usage message", "error", err, "bytes", len(msg))
		return
	}
	metrics.FeedMessages.WithLabelValues("ok").Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest = snapshot
	for _, ch := range c.subs {
		publish(ch, copyMap(snapshot))
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func publish(ch chan map[int64]int64, m map[int64]int64) {
	select {
	case ch <- m:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- m:
	default:
	}
}

func copyMap(m map[int64]int64) map[int64]int64 {
	out := make(map[int64]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
