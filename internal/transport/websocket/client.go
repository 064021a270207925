package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/quickrts/skirmish/internal/channel"
	"github.com/quickrts/skirmish/pkg/streaming"
)

var (
	ErrWrongSide = errors.New("operation not available on this side")
	ErrSendFull  = errors.New("send queue full")
	ErrClosed    = errors.New("client closed")
	ErrInboxFull = errors.New("inbox full")
)

// ClientConfig holds the mirror side configuration.
type ClientConfig struct {
	URL       string
	Secret    string
	Node      string
	InboxSize int
}

// Client is the mirror end of a websocket link. It implements
// replication.Transport. A single pump goroutine owns writes to the
// current socket; on a lost link the client redials with backoff and
// says hello again, which makes the host replay its journal.
//
// A full inbox counts as a lost link. The redial swaps in an inbox twice
// the size and the replay refills it.
type Client struct {
	cfg    ClientConfig
	dialer *ws.Dialer
	inbox  channel.Channel[streaming.Envelope]
	out    chan []byte
	acks   chan streaming.AckMessage
	done   chan struct{}
	logger *slog.Logger

	mu         sync.Mutex
	conn       *ws.Conn
	gone       chan struct{} // closed when conn is dropped
	closed     bool
	hello      []byte
	reconnects int
	overflowed bool
}

// NewClient creates a client. Call Dial before use.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InboxSize < 1 {
		cfg.InboxSize = queueSize
	}
	return &Client{
		cfg:    cfg,
		dialer: &ws.Dialer{HandshakeTimeout: helloTimeout},
		inbox:  channel.New[streaming.Envelope](cfg.InboxSize),
		out:    make(chan []byte, queueSize),
		acks:   make(chan streaming.AckMessage, ackQueueSize),
		done:   make(chan struct{}),
		logger: logger.With("component", "transport", "node", cfg.Node),
	}
}

// Dial connects to the host and waits until it acknowledges the hello.
// The host replays its journal right after the ack.
func (c *Client) Dial() error {
	hello, err := encodeNew(streaming.TypeHello, streaming.HelloPayload{Node: c.cfg.Node})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.hello = hello
	c.mu.Unlock()

	conn, err := c.connect()
	if err != nil {
		return err
	}
	c.attach(conn)

	if !c.send(hello) {
		return ErrSendFull
	}
	return c.awaitAck(streaming.TypeHello, helloTimeout)
}

func (c *Client) connect() (*ws.Conn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", c.cfg.Secret)
	u.RawQuery = q.Encode()

	conn, _, err := c.dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", c.cfg.URL, err)
	}
	return conn, nil
}

// attach makes conn current and starts its pumps.
func (c *Client) attach(conn *ws.Conn) {
	gone := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.gone = gone
	c.mu.Unlock()

	go c.writePump(conn, gone)
	go c.readPump(conn)
}

func (c *Client) writePump(conn *ws.Conn, gone <-chan struct{}) {
	for {
		select {
		case <-c.done:
			return
		case <-gone:
			return
		case data := <-c.out:
			if err := writeFrame(conn, data); err != nil {
				c.lost(conn, err)
				return
			}
		}
	}
}

func (c *Client) readPump(conn *ws.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.lost(conn, err)
			return
		}
		if err := c.handle(msg); err != nil {
			c.lost(conn, err)
			return
		}
	}
}

// handle routes acks to Dial and everything else to the inbox.
func (c *Client) handle(msg []byte) error {
	var env streaming.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		c.logger.Debug("Malformed message received", "raw", string(msg), "error", err)
		return nil
	}

	if env.Type == streaming.TypeAck {
		var ack streaming.AckMessage
		if err := json.Unmarshal(msg, &ack); err != nil {
			return nil
		}
		select {
		case c.acks <- ack:
		default:
		}
		return nil
	}

	c.mu.Lock()
	inbox := c.inbox
	c.mu.Unlock()
	if !inbox.TrySend(env) {
		return fmt.Errorf("%s seq %d: %w", env.Type, env.Seq, ErrInboxFull)
	}
	return nil
}

// lost drops conn if it is still current and starts redialing. Both pumps
// may report the same failure; only the first one counts.
func (c *Client) lost(conn *ws.Conn, err error) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	close(c.gone)
	if errors.Is(err, ErrInboxFull) {
		c.overflowed = true
	}
	c.mu.Unlock()

	_ = conn.Close()
	c.logger.Warn("Lost connection to host", "error", err)
	go c.redial()
}

func (c *Client) redial() {
	backoff := initialBackoff
	for attempt := 1; attempt <= maxRedials; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		conn, err := c.connect()
		if err != nil {
			c.logger.Warn("Redial failed", "attempt", attempt, "backoff", backoff, "error", err)
			backoff = nextBackoff(backoff)
			continue
		}

		c.mu.Lock()
		hello := c.hello
		c.mu.Unlock()
		// hello goes out before anything queued so the host accepts us
		if err := writeFrame(conn, hello); err != nil {
			c.logger.Warn("Hello after redial failed", "attempt", attempt, "error", err)
			_ = conn.Close()
			backoff = nextBackoff(backoff)
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.reconnects++
		if c.overflowed {
			c.overflowed = false
			c.cfg.InboxSize *= 2
			c.inbox = channel.New[streaming.Envelope](c.cfg.InboxSize)
		}
		c.mu.Unlock()

		c.attach(conn)
		c.logger.Info("Reconnected to host", "attempt", attempt)
		return
	}
	c.logger.Error("Giving up on host", "attempts", maxRedials)
}

// send queues data for the pump without blocking.
func (c *Client) send(data []byte) bool {
	select {
	case c.out <- data:
		return true
	default:
		return false
	}
}

func (c *Client) awaitAck(kind string, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ack := <-c.acks:
			if ack.For == kind {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", kind)
		case <-c.done:
			return ErrClosed
		}
	}
}

// Forward queues a command for the host. It does not wait for delivery.
func (c *Client) Forward(env streaming.Envelope) error {
	data, err := encode(env)
	if err != nil {
		return err
	}
	if !c.send(data) {
		c.logger.Warn("Send queue full, dropping command", "type", env.Type, "unit", env.Unit)
		return ErrSendFull
	}
	return nil
}

// Publish is not available on a mirror.
func (c *Client) Publish(streaming.Envelope) error {
	return ErrWrongSide
}

// Inbox returns the broadcasts received from the host.
func (c *Client) Inbox() channel.Receiver[streaming.Envelope] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inbox
}

// Reconnects returns how many times the link was re-established.
func (c *Client) Reconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnects
}

// Close disconnects from the host and stops redialing.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	closeFrame(conn, ws.CloseNormalClosure, "")
	return conn.Close()
}
