// Package viewer implements the client side of the broadcast channel: a
// websocket consumer that survives transient disconnects through bounded
// automatic reconnection and keeps the connection alive with heartbeats.
package viewer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State is the client connection state. It is owned exclusively by one
// Client instance.
type State string

// Connection states. Reconnecting is qualified by ReconnectAttempt.
const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
	StateError        State = "error"
	StateClosed       State = "closed"
)

const (
	defaultMaxReconnectAttempts = 5
	defaultReconnectInterval    = 3 * time.Second
	defaultHeartbeatInterval    = 30 * time.Second
	defaultHistorySize          = 100
	sendTimeout                 = 5 * time.Second
)

// Config controls Client behavior.
type Config struct {
	URL                  string
	MaxReconnectAttempts int
	ReconnectInterval    time.Duration
	HeartbeatInterval    time.Duration
	HistorySize          int
	Logger               *zap.Logger
	Dialer               *websocket.Dialer
}

// Message is one inbound broadcast frame plus its arrival time.
type Message struct {
	Data       []byte
	ReceivedAt time.Time
}

// Client maintains a persistent connection to the broadcast hub. The
// reconnect loop and heartbeat timer run as goroutines tied to one lifecycle;
// Close cancels both as a unit.
type Client struct {
	cfg    Config
	logger *zap.Logger
	dialer *websocket.Dialer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	started  bool
	state    State
	attempt  int
	conn     *websocket.Conn
	writeMu  sync.Mutex
	last     *Message
	history  []Message
	messages chan Message
}

// New constructs a Client. Call Connect to start the connection loop.
func New(cfg Config) *Client {
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:      cfg,
		logger:   logger,
		dialer:   dialer,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		state:    StateConnecting,
		messages: make(chan Message, cfg.HistorySize),
	}
}

// Connect starts the connection loop. It returns immediately; observe State
// and Messages for progress.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()
	go c.run()
}

// Close performs an intentional disconnect: it cancels any pending reconnect
// timer and the heartbeat, closes the transport, and never enters the failed
// state. It is safe to call more than once.
func (c *Client) Close() {
	c.cancel()
	c.mu.Lock()
	conn := c.conn
	started := c.started
	if !started {
		c.state = StateClosed
	}
	c.mu.Unlock()
	if !started {
		return
	}
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "intentional disconnect"),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	<-c.done
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ReconnectAttempt returns the current attempt count and the maximum, for
// rendering "reconnecting (k of max)".
func (c *Client) ReconnectAttempt() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt, c.cfg.MaxReconnectAttempts
}

// LastMessage returns the most recent inbound message, if any.
func (c *Client) LastMessage() (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Message{}, false
	}
	return *c.last, true
}

// History returns a copy of the bounded message history, oldest first.
func (c *Client) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.history))
	copy(out, c.history)
	return out
}

// Messages exposes the inbound stream. Frames are dropped when the consumer
// falls behind; the history buffer still records them.
func (c *Client) Messages() <-chan Message {
	return c.messages
}

// SendMessage marshals and sends a message over the live connection. It
// reports false, without error, when the transport is not currently open.
func (c *Client) SendMessage(payload any) bool {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateConnected
	c.mu.Unlock()
	if !open || conn == nil {
		c.logger.Debug("send skipped, transport not open")
		return false
	}
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Warn("send marshal failed", zap.Error(err))
		return false
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(sendTimeout)); err != nil {
		return false
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Warn("send failed", zap.Error(err))
		return false
	}
	return true
}

func (c *Client) run() {
	defer close(c.done)
	defer close(c.messages)
	for {
		if c.ctx.Err() != nil {
			c.setState(StateClosed)
			return
		}
		conn, _, err := c.dialer.DialContext(c.ctx, c.cfg.URL, nil)
		if err != nil {
			if c.ctx.Err() != nil {
				c.setState(StateClosed)
				return
			}
			c.logger.Warn("connect failed", zap.String("url", c.cfg.URL), zap.Error(err))
			c.setState(StateError)
			if !c.awaitReconnect() {
				return
			}
			continue
		}

		c.adoptConn(conn)
		c.logger.Info("connected", zap.String("url", c.cfg.URL))

		hbDone := make(chan struct{})
		go c.heartbeat(hbDone)
		c.readLoop(conn)
		close(hbDone)

		c.dropConn()
		if c.ctx.Err() != nil {
			c.setState(StateClosed)
			return
		}
		c.setState(StateDisconnected)
		if !c.awaitReconnect() {
			return
		}
	}
}

// awaitReconnect schedules the next attempt after the fixed interval. It
// returns false once attempts are exhausted (failed state) or the client is
// intentionally closed while waiting.
func (c *Client) awaitReconnect() bool {
	c.mu.Lock()
	c.attempt++
	attempt := c.attempt
	maxAttempts := c.cfg.MaxReconnectAttempts
	if attempt > maxAttempts {
		c.state = StateFailed
		c.mu.Unlock()
		c.logger.Error("reconnect attempts exhausted", zap.Int("attempts", maxAttempts))
		return false
	}
	c.state = StateReconnecting
	c.mu.Unlock()
	c.logger.Info("reconnecting",
		zap.Int("attempt", attempt),
		zap.Int("max_attempts", maxAttempts),
	)

	timer := time.NewTimer(c.cfg.ReconnectInterval)
	defer timer.Stop()
	select {
	case <-c.ctx.Done():
		c.setState(StateClosed)
		return false
	case <-timer.C:
		return true
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Warn("read failed", zap.Error(err))
			}
			return
		}
		c.record(Message{Data: data, ReceivedAt: time.Now().UTC()})
	}
}

func (c *Client) record(msg Message) {
	c.mu.Lock()
	c.last = &msg
	c.history = append(c.history, msg)
	if len(c.history) > c.cfg.HistorySize {
		c.history = c.history[len(c.history)-c.cfg.HistorySize:]
	}
	c.mu.Unlock()

	select {
	case c.messages <- msg:
	default:
	}
}

// heartbeat pings on a fixed period while the connection lives to keep
// intermediary infrastructure from timing out the channel. Failures are
// indistinguishable from ordinary send failures.
func (c *Client) heartbeat(connDone <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-connDone:
			return
		case <-ticker.C:
			c.SendMessage(map[string]string{
				"type":      "ping",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
		}
	}
}

func (c *Client) adoptConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.attempt = 0
	c.state = StateConnected
	c.mu.Unlock()
}

func (c *Client) dropConn() {
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
