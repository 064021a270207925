// Package websocket links an authority and remote mirrors over websockets.
// The host runs a Hub; every mirror runs a Client.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/quickrts/skirmish/internal/channel"
	"github.com/quickrts/skirmish/internal/journal"
	"github.com/quickrts/skirmish/pkg/streaming"
)

// HubConfig holds the host side configuration.
type HubConfig struct {
	Secret    string
	InboxSize int
	// LeaveGrace is how long a dropped mirror may take to reconnect before
	// the node is told it left. A mirror that closes normally leaves at once.
	LeaveGrace time.Duration
}

// Hub accepts mirror connections, replays the journal to each new mirror
// and fans broadcasts out. It implements replication.Transport.
type Hub struct {
	cfg      HubConfig
	journal  journal.Backend
	inbox    channel.Channel[streaming.Envelope]
	upgrader ws.Upgrader
	logger   *slog.Logger

	mu       sync.Mutex
	peers    map[*peer]struct{}
	departed map[string]*time.Timer
}

type peer struct {
	conn *ws.Conn
	node string
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

// NewHub creates a hub. j may be nil, in which case joining mirrors only
// see broadcasts committed after they connect.
func NewHub(cfg HubConfig, j journal.Backend, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InboxSize < 1 {
		cfg.InboxSize = queueSize
	}
	if cfg.LeaveGrace <= 0 {
		cfg.LeaveGrace = defaultLeaveGrace
	}
	return &Hub{
		cfg:     cfg,
		journal: j,
		inbox:   channel.New[streaming.Envelope](cfg.InboxSize),
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
		logger:   logger.With("component", "transport"),
		peers:    make(map[*peer]struct{}),
		departed: make(map[string]*time.Timer),
	}
}

// ServeHTTP upgrades a mirror connection and serves it until it drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Secret != "" && r.URL.Query().Get("secret") != h.cfg.Secret {
		http.Error(w, "invalid secret", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	node, err := h.awaitHello(conn)
	if err != nil {
		h.logger.Warn("Handshake failed", "remote", r.RemoteAddr, "error", err)
		closeFrame(conn, ws.ClosePolicyViolation, "expected hello")
		_ = conn.Close()
		return
	}

	p, err := h.join(conn, node)
	if err != nil {
		h.logger.Error("Failed to replay journal", "node", node, "error", err)
		_ = conn.Close()
		return
	}
	go h.writeLoop(p)
	h.readLoop(p)
}

func (h *Hub) awaitHello(conn *ws.Conn) (string, error) {
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", err
	}
	var env streaming.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return "", fmt.Errorf("decode hello: %w", err)
	}
	if env.Type != streaming.TypeHello {
		return "", fmt.Errorf("unexpected %q before hello", env.Type)
	}
	hello, err := streaming.Decode[streaming.HelloPayload](env)
	if err != nil {
		return "", err
	}
	return hello.Node, nil
}

// join queues the ack and the journal backlog, then registers the peer
// for live broadcasts. Both happen under the hub lock so no broadcast
// falls between replay and registration.
func (h *Hub) join(conn *ws.Conn, node string) (*peer, error) {
	ack, err := json.Marshal(streaming.AckMessage{Type: streaming.TypeAck, For: streaming.TypeHello})
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var backlog []streaming.Envelope
	if h.journal != nil {
		if backlog, err = h.journal.Entries(); err != nil {
			return nil, err
		}
	}

	p := &peer{
		conn: conn,
		node: node,
		send: make(chan []byte, queueSize+len(backlog)+1),
		done: make(chan struct{}),
	}
	p.send <- ack
	for _, env := range backlog {
		data, err := encode(env)
		if err != nil {
			return nil, err
		}
		p.send <- data
	}
	h.peers[p] = struct{}{}
	if t, ok := h.departed[node]; ok {
		t.Stop()
		delete(h.departed, node)
	}

	h.logger.Info("Mirror joined", "node", node, "replayed", len(backlog), "peers", len(h.peers))
	return p, nil
}

func (h *Hub) leave(p *peer, reason error) {
	h.mu.Lock()
	_, ok := h.peers[p]
	delete(h.peers, p)
	n := len(h.peers)
	if ok && !h.connected(p.node) {
		h.depart(p.node, reason)
	}
	h.mu.Unlock()

	p.close()
	if ok {
		h.logger.Info("Mirror left", "node", p.node, "peers", n, "reason", reason)
	}
}

// connected reports whether a mirror named node is attached. Callers hold mu.
func (h *Hub) connected(node string) bool {
	for p := range h.peers {
		if p.node == node {
			return true
		}
	}
	return false
}

// depart queues a leave notice for node, at once after a normal close and
// otherwise once the grace period passes without a reconnect. Callers hold mu.
func (h *Hub) depart(node string, reason error) {
	if ws.IsCloseError(reason, ws.CloseNormalClosure) {
		h.notifyLeave(node)
		return
	}
	var t *time.Timer
	t = time.AfterFunc(h.cfg.LeaveGrace, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.departed[node] != t {
			return
		}
		delete(h.departed, node)
		if !h.connected(node) {
			h.notifyLeave(node)
		}
	})
	if old, ok := h.departed[node]; ok {
		old.Stop()
	}
	h.departed[node] = t
}

func (h *Hub) notifyLeave(node string) {
	if !h.inbox.TrySend(streaming.Leave(node)) {
		h.logger.Warn("Inbox full, dropping leave notice", "node", node)
	}
}

func (h *Hub) readLoop(p *peer) {
	for {
		_, msg, err := p.conn.ReadMessage()
		if err != nil {
			h.leave(p, err)
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			h.logger.Debug("Discarding malformed message", "node", p.node, "error", err)
			continue
		}
		if !env.Command {
			continue
		}
		env.Origin = p.node
		if !h.inbox.TrySend(env) {
			h.logger.Warn("Inbox full, dropping command", "node", p.node, "type", env.Type, "unit", env.Unit)
		}
	}
}

func (h *Hub) writeLoop(p *peer) {
	for {
		select {
		case <-p.done:
			return
		case data := <-p.send:
			if err := writeFrame(p.conn, data); err != nil {
				h.leave(p, err)
				return
			}
		}
	}
}

// Forward is not available on the host.
func (h *Hub) Forward(streaming.Envelope) error {
	return ErrWrongSide
}

// Publish sends a broadcast to every connected mirror. A mirror whose
// queue is full is disconnected; it replays the journal when it reconnects.
func (h *Hub) Publish(env streaming.Envelope) error {
	data, err := encode(env)
	if err != nil {
		return err
	}

	var slow []*peer
	h.mu.Lock()
	for p := range h.peers {
		select {
		case p.send <- data:
		default:
			slow = append(slow, p)
		}
	}
	h.mu.Unlock()

	for _, p := range slow {
		h.leave(p, ErrSendFull)
	}
	return nil
}

// Inbox returns the commands forwarded by mirrors.
func (h *Hub) Inbox() channel.Receiver[streaming.Envelope] {
	return h.inbox
}

// Peers returns the number of connected mirrors.
func (h *Hub) Peers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Close disconnects every mirror.
func (h *Hub) Close() error {
	h.mu.Lock()
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.peers = make(map[*peer]struct{})
	for node, t := range h.departed {
		t.Stop()
		delete(h.departed, node)
	}
	h.mu.Unlock()

	for _, p := range peers {
		closeFrame(p.conn, ws.CloseGoingAway, "")
		p.close()
	}
	return nil
}
