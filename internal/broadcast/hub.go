package broadcast

import (
	"sync"

	"go.uber.org/zap"
)

// Conn is one live viewer connection. Send must be safe for concurrent use;
// a non-nil error marks the connection broken and removes it from the hub.
type Conn interface {
	Send(data []byte) error
	Close() error
}

// Sink observes every published event without being a viewer connection.
// Implementations must not block the publish path.
type Sink interface {
	Observe(evt Event)
}

// Hub holds the set of currently connected viewers and fans each published
// event out to all of them. Delivery is best effort and at most once: there
// is no buffering, no replay, and a broken connection is dropped without
// aborting delivery to the rest.
type Hub struct {
	mu     sync.Mutex
	conns  map[Conn]struct{}
	sinks  []Sink
	logger *zap.Logger
}

// NewHub constructs a Hub with the given observer sinks.
func NewHub(logger *zap.Logger, sinks ...Sink) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		conns:  make(map[Conn]struct{}),
		sinks:  append([]Sink(nil), sinks...),
		logger: logger,
	}
}

// Register adds a connection after handshake completion.
func (h *Hub) Register(c Conn) {
	if c == nil {
		return
	}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	total := len(h.conns)
	h.mu.Unlock()
	h.logger.Info("viewer connected", zap.Int("viewers", total))
}

// Unregister removes a connection, typically on close or read error. It is
// safe to call for connections the hub no longer tracks.
func (h *Hub) Unregister(c Conn) {
	h.mu.Lock()
	_, tracked := h.conns[c]
	delete(h.conns, c)
	total := len(h.conns)
	h.mu.Unlock()
	if tracked {
		h.logger.Info("viewer disconnected", zap.Int("viewers", total))
	}
}

// Publish serializes the event once and attempts delivery to every connected
// viewer. The connection set is snapshotted first, so registration and
// deregistration during a broadcast are well-defined. A send failure removes
// that connection only.
func (h *Hub) Publish(evt Event) {
	if err := evt.Validate(); err != nil {
		h.logger.Warn("discarding invalid broadcast event", zap.Error(err))
		return
	}
	data, err := evt.Encode()
	if err != nil {
		h.logger.Error("broadcast encode failed", zap.Error(err))
		return
	}
	for _, sink := range h.sinks {
		sink.Observe(evt)
	}

	h.mu.Lock()
	snapshot := make([]Conn, 0, len(h.conns))
	for c := range h.conns {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	for _, c := range snapshot {
		if err := c.Send(data); err != nil {
			h.logger.Warn("broadcast send failed, dropping viewer",
				zap.String("event", string(evt.Type)), zap.Error(err))
			h.Unregister(c)
			_ = c.Close()
		}
	}
}

// ConnCount reports the number of currently connected viewers.
func (h *Hub) ConnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close drops every connection, typically at shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[Conn]struct{})
	h.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}
